package notify

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"mime"
	"net"
	"strings"
	"sync"
	"time"
)

// MockMailer records sent mails in memory
type MockMailer struct {
	mu   sync.Mutex
	sent []Email
	Err  error
}

// Send implements Mailer
func (m *MockMailer) Send(_ context.Context, email Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, email)
	return nil
}

// Sent returns a copy of the recorded mails
func (m *MockMailer) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.sent))
	copy(out, m.sent)
	return out
}

// MockQueue collects enqueued mails synchronously
type MockQueue struct {
	mu    sync.Mutex
	mails []Email
	Err   error
}

// Enqueue implements Queue
func (q *MockQueue) Enqueue(email Email) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.Err != nil {
		return q.Err
	}
	q.mails = append(q.mails, email)
	return nil
}

// Mails returns a copy of the queued mails
func (q *MockQueue) Mails() []Email {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Email, len(q.mails))
	copy(out, q.mails)
	return out
}

// MockSMTPServer is a minimal plaintext SMTP server capturing messages
type MockSMTPServer struct {
	listener net.Listener

	mu           sync.RWMutex
	messages     []CapturedEmail
	requireAuth  bool
	authUsername string
	authPassword string
	shouldFail   bool
}

// CapturedEmail represents an email captured by the mock SMTP server
type CapturedEmail struct {
	From       string
	To         []string
	Subject    string
	Raw        string
	CapturedAt time.Time
}

// NewMockSMTPServer starts a server on a random loopback port
func NewMockSMTPServer(requireAuth bool) (*MockSMTPServer, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to create listener: %w", err)
	}
	server := &MockSMTPServer{listener: listener, requireAuth: requireAuth}
	go server.serve()
	return server, nil
}

func (m *MockSMTPServer) serve() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return
		}
		go m.handleConnection(conn)
	}
}

func (m *MockSMTPServer) handleConnection(conn net.Conn) {
	defer conn.Close()
	reply := func(s string) { _, _ = io.WriteString(conn, s+"\r\n") }

	reply("220 mock-smtp-server ESMTP")
	reader := bufio.NewReader(conn)
	var from string
	var to []string
	authenticated := false

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(line)

		m.mu.RLock()
		fail := m.shouldFail
		m.mu.RUnlock()

		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			reply("250-mock-smtp-server")
			if m.requireAuth {
				reply("250-AUTH PLAIN")
			}
			reply("250 8BITMIME")
		case strings.HasPrefix(upper, "AUTH PLAIN"):
			if m.checkPlain(strings.TrimSpace(line[len("AUTH PLAIN"):])) {
				authenticated = true
				reply("235 Authentication successful")
			} else {
				reply("535 Authentication failed")
			}
		case strings.HasPrefix(upper, "MAIL FROM:"):
			if fail {
				reply("451 Temporary failure")
				continue
			}
			if m.requireAuth && !authenticated {
				reply("530 Authentication required")
				continue
			}
			from = extractEmailAddress(line)
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			to = append(to, extractEmailAddress(line))
			reply("250 OK")
		case upper == "DATA":
			reply("354 End data with <CR><LF>.<CR><LF>")
			var data bytes.Buffer
			for {
				dl, err := reader.ReadString('\n')
				if err != nil {
					return
				}
				if strings.TrimRight(dl, "\r\n") == "." {
					break
				}
				data.WriteString(strings.TrimPrefix(dl, "."))
			}
			m.capture(from, to, data.String())
			from, to = "", nil
			reply("250 OK")
		case upper == "QUIT":
			reply("221 Bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func (m *MockSMTPServer) checkPlain(encoded string) bool {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return false
	}
	parts := strings.Split(string(raw), "\x00")
	if len(parts) != 3 {
		return false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.authUsername == "" {
		return true
	}
	return parts[1] == m.authUsername && parts[2] == m.authPassword
}

func (m *MockSMTPServer) capture(from string, to []string, raw string) {
	subject := ""
	for _, line := range strings.Split(raw, "\r\n") {
		if line == "" {
			break
		}
		if strings.HasPrefix(line, "Subject:") {
			subject = strings.TrimSpace(strings.TrimPrefix(line, "Subject:"))
			if decoded, err := new(mime.WordDecoder).DecodeHeader(subject); err == nil {
				subject = decoded
			}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, CapturedEmail{
		From:       from,
		To:         to,
		Subject:    subject,
		Raw:        raw,
		CapturedAt: time.Now(),
	})
}

// GetMessages returns all captured emails
func (m *MockSMTPServer) GetMessages() []CapturedEmail {
	m.mu.RLock()
	defer m.mu.RUnlock()
	messages := make([]CapturedEmail, len(m.messages))
	copy(messages, m.messages)
	return messages
}

// SetAuthCredentials sets the expected authentication credentials
func (m *MockSMTPServer) SetAuthCredentials(username, password string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authUsername = username
	m.authPassword = password
}

// SetShouldFail makes the server reject MAIL FROM
func (m *MockSMTPServer) SetShouldFail(shouldFail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFail = shouldFail
}

// Host returns the listening host
func (m *MockSMTPServer) Host() string {
	return m.listener.Addr().(*net.TCPAddr).IP.String()
}

// Port returns the server port
func (m *MockSMTPServer) Port() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

// Close stops the mock SMTP server
func (m *MockSMTPServer) Close() error {
	return m.listener.Close()
}

func extractEmailAddress(line string) string {
	start := strings.Index(line, "<")
	end := strings.Index(line, ">")
	if start != -1 && end > start {
		return line[start+1 : end]
	}
	if idx := strings.Index(line, ":"); idx != -1 {
		return strings.TrimSpace(line[idx+1:])
	}
	return ""
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"louyass/metrics"
	"louyass/notify"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WebSocket configuration constants
const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum message size allowed from peer.
	maxMessageSize = 512

	sendChannelSize    = 64
	deliverChannelSize = 256
)

// WebSocketMessage is the frame pushed to clients
type WebSocketMessage struct {
	Type      notify.EventType `json:"type"`
	Data      interface{}      `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// client is one websocket connection of an authenticated user
type client struct {
	hub    *Hub
	conn   *websocket.Conn
	userID int64
	send   chan []byte
}

type delivery struct {
	userIDs []int64
	payload []byte
}

// Hub keeps the live connections of each user and pushes domain events to
// the users concerned. It implements notify.Publisher.
type Hub struct {
	clients map[int64]map[*client]struct{}
	count   int

	deliver    chan delivery
	register   chan *client
	unregister chan *client

	mu       sync.RWMutex
	upgrader websocket.Upgrader
	logger   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub. Browser connections are accepted from allowedOrigins
// only; clients sending no Origin header are accepted. Start must be called
// before use.
func NewHub(ctx context.Context, allowedOrigins []string, logger *zap.SugaredLogger) *Hub {
	hubCtx, cancel := context.WithCancel(ctx)
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = struct{}{}
	}
	return &Hub{
		clients:    make(map[int64]map[*client]struct{}),
		deliver:    make(chan delivery, deliverChannelSize),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				_, ok := origins[origin]
				return ok
			},
		},
		logger: logger,
		ctx:    hubCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Start runs the hub loop until Stop. Must be called exactly once.
func (h *Hub) Start() {
	defer close(h.done)

	h.logger.Info("WebSocket hub started")

	for {
		select {
		case <-h.ctx.Done():
			h.mu.Lock()
			for _, set := range h.clients {
				for c := range set {
					close(c.send)
					c.conn.Close()
				}
			}
			h.clients = make(map[int64]map[*client]struct{})
			h.count = 0
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			h.logger.Info("WebSocket hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			set, ok := h.clients[c.userID]
			if !ok {
				set = make(map[*client]struct{})
				h.clients[c.userID] = set
			}
			set[c] = struct{}{}
			h.count++
			total := h.count
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			h.logger.Debugw("WebSocket client registered", "user_id", c.userID, "total_clients", total)

		case c := <-h.unregister:
			h.mu.Lock()
			h.remove(c)
			total := h.count
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))

		case d := <-h.deliver:
			h.mu.Lock()
			for _, id := range d.userIDs {
				for c := range h.clients[id] {
					select {
					case c.send <- d.payload:
					default:
						// slow client: drop it rather than block everyone else
						h.logger.Warnw("Dropping slow WebSocket client", "user_id", c.userID)
						h.remove(c)
						c.conn.Close()
					}
				}
			}
			total := h.count
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
		}
	}
}

// remove unregisters c. Caller holds h.mu.
func (h *Hub) remove(c *client) {
	set, ok := h.clients[c.userID]
	if !ok {
		return
	}
	if _, ok := set[c]; !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.clients, c.userID)
	}
	close(c.send)
	h.count--
}

// Publish implements notify.Publisher. It never blocks: when the delivery
// queue is full the event is dropped for live clients.
func (h *Hub) Publish(_ context.Context, e notify.Event) {
	recipients := e.Recipients()
	if len(recipients) == 0 {
		return
	}

	payload, err := json.Marshal(WebSocketMessage{Type: e.Type, Data: e.Payload(), Timestamp: time.Now().UTC()})
	if err != nil {
		h.logger.Errorw("Failed to marshal WebSocket message", "type", e.Type, "error", err)
		return
	}

	select {
	case h.deliver <- delivery{userIDs: recipients, payload: payload}:
	case <-h.ctx.Done():
	default:
		h.logger.Warnw("WebSocket delivery queue full, event dropped", "type", e.Type)
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// UserClientCount returns the number of connections of one user
func (h *Hub) UserClientCount(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// Stop closes every connection and waits for the hub loop to exit
func (h *Hub) Stop() {
	h.cancel()
	<-h.done
}

// ServeUser upgrades the request and attaches the connection to userID
func (h *Hub) ServeUser(w http.ResponseWriter, r *http.Request, userID int64) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debugw("WebSocket upgrade failed", "error", err)
		return
	}

	c := &client{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendChannelSize),
	}
	select {
	case h.register <- c:
	case <-h.ctx.Done():
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only watches for disconnection and pongs; clients do not send data
func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Debugw("WebSocket unexpected close", "user_id", c.userID, "error", err)
			}
			return
		}
	}
}

// writePump sends queued events and pings until send is closed
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleWebSocket godoc
//
//	@Summary		Live notifications
//	@Description	Upgrades to a WebSocket pushing appointment, contract, payment and message events for the caller. The token may be passed as the token query parameter.
//	@Tags			realtime
//	@Param			token	query	string	false	"Access token"
//	@Success		101
//	@Failure		401	{object}	ErrorResponse
//	@Security		BearerAuth
//	@Router			/ws [get]
func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if a.hub == nil {
		writeError(w, http.StatusServiceUnavailable, "Notifications temps réel indisponibles", nil, nil)
		return
	}
	a.hub.ServeUser(w, r, currentUser(r).ID)
}

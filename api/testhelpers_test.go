package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"louyass/config"
	"louyass/core"
	"louyass/media"
	"louyass/notify"
	"louyass/service"
	"louyass/storage"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const testJWTSecret = "api-test-secret-0123456789-abcdefghijklmnop"

var testNow = time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

// testServer is a fully wired API over a temp-file database
type testServer struct {
	api    *API
	cfg    *config.Config
	clock  *clockwork.FakeClock
	tokens *TokenIssuer
	store  *MemoryTokenStore
	hub    *Hub
	users  *storage.SQLiteUserStorage
}

type serverOption func(*config.Config)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.API.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.API.RateLimit.RequestsPerSecond = 1000
	cfg.API.RateLimit.Burst = 1000
	cfg.API.RateLimit.LoginPerMinute = 1000
	cfg.API.BodyLimit = 1 << 20
	cfg.Auth.JWTSecret = testJWTSecret
	cfg.Auth.JWTExpiry = 30 * time.Minute
	cfg.Auth.UserCacheSize = 16
	cfg.Auth.UserCacheTTL = time.Minute
	cfg.Media.Backend = "local"
	cfg.Media.Dir = filepath.Join(t.TempDir(), "media")
	cfg.Media.BaseURL = "/media"
	cfg.Media.MaxSize = 1 << 10
	return cfg
}

func newTestServer(t *testing.T, opts ...serverOption) *testServer {
	t.Helper()
	cfg := testConfig(t)
	for _, opt := range opts {
		opt(cfg)
	}

	logger := zap.NewNop().Sugar()
	db, err := storage.NewSQLite(filepath.Join(t.TempDir(), "louyass_api.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clock := clockwork.NewFakeClockAt(testNow)

	users := storage.NewSQLiteUserStorage(db, logger)
	users.SetBcryptCost(bcrypt.MinCost)
	houses := storage.NewSQLiteHouseStorage(db, logger)
	rooms := storage.NewSQLiteRoomStorage(db, logger)
	appointments := storage.NewSQLiteAppointmentStorage(db, logger)
	contracts := storage.NewSQLiteContractStorage(db, logger)
	payments := storage.NewSQLitePaymentStorage(db, logger)
	medias := storage.NewSQLiteMediaStorage(db, logger)
	issues := storage.NewSQLiteIssueStorage(db, logger)
	messages := storage.NewSQLiteMessageStorage(db, logger)
	search := storage.NewSQLiteSearchStorage(db, logger)

	blobs, err := media.NewLocalStore(cfg.Media.Dir, cfg.Media.BaseURL)
	require.NoError(t, err)

	hub := NewHub(context.Background(), cfg.API.AllowedOrigins, logger)
	go hub.Start()
	t.Cleanup(hub.Stop)

	var pub notify.Publisher = hub
	services := Services{
		Users:        service.NewUserService(users, service.LockoutPolicy{Threshold: 3, Duration: 15 * time.Minute}, "Louyass", clock, logger),
		Houses:       service.NewHouseService(houses, clock, logger),
		Rooms:        service.NewRoomService(rooms, houses, contracts, clock, logger),
		Media:        service.NewMediaService(medias, rooms, blobs, cfg.Media.MaxSize, clock, logger),
		Search:       service.NewSearchService(search),
		Appointments: service.NewAppointmentService(appointments, rooms, users, pub, clock, logger),
		Contracts:    service.NewContractService(contracts, appointments, rooms, users, payments, pub, clock, logger),
		Payments:     service.NewPaymentService(payments, contracts, users, pub, clock, logger),
		Issues:       service.NewIssueService(issues, contracts, clock, logger),
		Messages:     service.NewMessageService(messages, users, pub, clock, logger),
	}

	store := NewMemoryTokenStore(clock)
	tokens := NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry, store, clock)

	a, err := NewAPI(cfg, Dependencies{
		Services: services,
		Tokens:   tokens,
		Hub:      hub,
		Clock:    clock,
		HealthChecks: map[string]HealthCheck{
			"database": db.HealthCheck,
		},
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Stop(context.Background()) })

	return &testServer{api: a, cfg: cfg, clock: clock, tokens: tokens, store: store, hub: hub, users: users}
}

// do sends a request through the router. body is JSON encoded unless it is
// already an io.Reader.
func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case io.Reader:
		reader = b
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := s.newRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.serve(req)
}

func (s *testServer) newRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "192.0.2.10:40000"
	return req
}

func (s *testServer) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.api.Handler().ServeHTTP(rec, req)
	return rec
}

var emailSeq atomic.Int64

// account registers and logs in a user, returning it with a token
func (s *testServer) account(t *testing.T, role core.Role) (*core.User, string) {
	t.Helper()
	email := fmt.Sprintf("%s%d@louyass.test", role, emailSeq.Add(1))
	rec := s.do(t, http.MethodPost, "/auth/register", "", map[string]interface{}{
		"email":    email,
		"password": "motdepasse123",
		"nom":      "Diallo",
		"prenom":   "Awa",
		"role":     role,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var u core.User
	decode(t, rec, &u)
	return &u, s.login(t, email, "motdepasse123")
}

func (s *testServer) login(t *testing.T, email, password string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var tok TokenResponse
	decode(t, rec, &tok)
	require.Equal(t, "bearer", tok.TokenType)
	return tok.AccessToken
}

// listing creates a house and a room owned by token's user
func (s *testServer) listing(t *testing.T, token string) (*core.House, *core.Room) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/maisons", token, map[string]interface{}{
		"nom":     "Villa Baobab",
		"adresse": "12 rue des Palmiers",
		"ville":   "Dakar",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var house core.House
	decode(t, rec, &house)

	rec = s.do(t, http.MethodPost, "/chambres", token, map[string]interface{}{
		"maison_id": house.ID,
		"titre":     "Chambre vue mer",
		"type":      "simple",
		"prix":      75000,
		"meublee":   true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var room core.Room
	decode(t, rec, &room)
	return &house, &room
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	decode(t, rec, &body)
	return body.Detail
}

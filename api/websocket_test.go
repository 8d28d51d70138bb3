package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"louyass/core"
	"louyass/notify"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func dialWS(t *testing.T, srv *httptest.Server, token string, header http.Header) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + token
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func waitClients(t *testing.T, hub *Hub, userID int64, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.UserClientCount(userID) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketReceivesMessages(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.api.Handler())
	defer srv.Close()

	owner, ownerToken := s.account(t, core.RoleOwner)
	_, tenantToken := s.account(t, core.RoleTenant)

	conn, _, err := dialWS(t, srv, ownerToken, nil)
	require.NoError(t, err)
	waitClients(t, s.hub, owner.ID, 1)

	rec := s.do(t, http.MethodPost, "/messages", tenantToken, map[string]interface{}{
		"destinataire_id": owner.ID,
		"contenu":         "La chambre est-elle toujours disponible ?",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame struct {
		Type notify.EventType `json:"type"`
		Data core.Message     `json:"data"`
	}
	require.NoError(t, json.Unmarshal(raw, &frame))
	assert.Equal(t, notify.EventMessageCreated, frame.Type)
	assert.Equal(t, owner.ID, frame.Data.DestinataireID)
	assert.Equal(t, "La chambre est-elle toujours disponible ?", frame.Data.Contenu)
}

func TestWebSocketAuth(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.api.Handler())
	defer srv.Close()

	_, resp, err := dialWS(t, srv, "invalide", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// the query token is only honoured on /ws
	_, token := s.account(t, core.RoleTenant)
	rec := s.do(t, http.MethodGet, "/auth/me?token="+token, "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWebSocketOrigin(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.api.Handler())
	defer srv.Close()

	u, token := s.account(t, core.RoleTenant)

	_, resp, err := dialWS(t, srv, token, http.Header{"Origin": {"https://evil.example"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	_, _, err = dialWS(t, srv, token, http.Header{"Origin": {"http://localhost:3000"}})
	require.NoError(t, err)
	waitClients(t, s.hub, u.ID, 1)
}

func TestHubRouting(t *testing.T) {
	hub := NewHub(context.Background(), nil, zap.NewNop().Sugar())
	go hub.Start()
	defer hub.Stop()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := int64(1)
		if r.URL.Query().Get("u") == "2" {
			id = 2
		}
		hub.ServeUser(w, r, id)
	}))
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http")

	one, _, err := websocket.DefaultDialer.Dial(base+"?u=1", nil)
	require.NoError(t, err)
	defer one.Close()
	two, _, err := websocket.DefaultDialer.Dial(base+"?u=2", nil)
	require.NoError(t, err)
	defer two.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	hub.Publish(context.Background(), notify.Event{
		Type:     notify.EventContractCreated,
		Tenant:   &core.User{ID: 2},
		Contract: &core.Contract{ID: 40, LocataireID: 2},
	})

	require.NoError(t, two.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := two.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"contract.created"`)

	// user 1 is not a party and receives nothing
	require.NoError(t, one.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = one.ReadMessage()
	assert.Error(t, err)

	// events without recipients are ignored
	hub.Publish(context.Background(), notify.Event{Type: notify.EventPaymentPaid})

	two.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewHub(context.Background(), nil, zap.NewNop().Sugar())
	go hub.Start()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeUser(w, r, 9)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Stop()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = conn.ReadMessage()
	assert.Error(t, err)

	// publishing after stop does not block
	hub.Publish(context.Background(), notify.Event{Type: notify.EventPaymentPaid, Tenant: &core.User{ID: 9}, Payment: &core.Payment{ID: 1}})
}

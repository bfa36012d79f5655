package realtime

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialHub(t *testing.T, srv *httptest.Server, contestID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/contests/" + contestID + "/leaderboard/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (h *Hub) subscriberCount(contestID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients[contestID])
}

func TestBroadcastDeliversToAllSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)

	router := chi.NewRouter()
	hub.Routes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	first := dialHub(t, srv, "c1")
	second := dialHub(t, srv, "c1")
	other := dialHub(t, srv, "c2")

	require.Eventually(t, func() bool {
		return hub.subscriberCount("c1") == 2 && hub.subscriberCount("c2") == 1
	}, time.Second, 10*time.Millisecond)

	hub.broadcast("c1", &LeaderboardUpdate{ContestID: "c1", Timestamp: time.Now()})

	for _, conn := range []*websocket.Conn{first, second} {
		conn.SetReadDeadline(time.Now().Add(time.Second))
		_, payload, err := conn.ReadMessage()
		require.NoError(t, err)

		var update LeaderboardUpdate
		require.NoError(t, json.Unmarshal(payload, &update))
		assert.Equal(t, "c1", update.ContestID)
	}

	// Subscribers of other contests receive nothing.
	other.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	_, _, err := other.ReadMessage()
	assert.Error(t, err)

	// Healthy subscribers stay registered after a broadcast.
	assert.Equal(t, 2, hub.subscriberCount("c1"))
}

func TestDisconnectedSubscriberIsRemoved(t *testing.T) {
	hub := NewHub(nil, nil)

	router := chi.NewRouter()
	hub.Routes(router)
	srv := httptest.NewServer(router)
	defer srv.Close()

	conn := dialHub(t, srv, "c1")
	require.Eventually(t, func() bool {
		return hub.subscriberCount("c1") == 1
	}, time.Second, 10*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return hub.subscriberCount("c1") == 0
	}, time.Second, 10*time.Millisecond)
}

package realtime

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"exam-prep-platform/internal/contest"
	"exam-prep-platform/pkg/kv"
)

// LeaderboardUpdate is pushed to websocket subscribers after grading.
type LeaderboardUpdate struct {
	ContestID string                    `json:"contest_id"`
	Rankings  []*contest.LeaderboardRow `json:"rankings"`
	Timestamp time.Time                 `json:"timestamp"`
}

// Hub fans graded-contest events out to websocket subscribers. The grading
// worker publishes contest ids on Redis pub/sub; the hub invalidates the
// leaderboard cache and pushes the fresh board to every subscriber of that
// contest.
type Hub struct {
	store *kv.Store
	cache *LeaderboardCache

	mutex   sync.RWMutex
	clients map[string]map[*websocket.Conn]bool // contest id -> connections

	upgrader websocket.Upgrader
}

// NewHub wires the realtime hub.
func NewHub(store *kv.Store, cache *LeaderboardCache) *Hub {
	return &Hub{
		store:   store,
		cache:   cache,
		clients: make(map[string]map[*websocket.Conn]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Run consumes graded-contest events until the context is cancelled.
func (h *Hub) Run(ctx context.Context) {
	log.Println("Realtime hub starting")
	sub := h.store.Client.Subscribe(ctx, kv.GradedEventsChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				log.Println("Realtime hub: pub/sub channel closed")
				return
			}
			h.onGraded(ctx, msg.Payload)
		case <-ctx.Done():
			log.Println("Realtime hub shutting down")
			return
		}
	}
}

func (h *Hub) onGraded(ctx context.Context, contestID string) {
	h.cache.Invalidate(contestID)

	h.mutex.RLock()
	subscribers := len(h.clients[contestID])
	h.mutex.RUnlock()
	if subscribers == 0 {
		return
	}

	rows, err := h.cache.Leaderboard(ctx, contestID)
	if err != nil {
		log.Printf("Realtime hub: failed to load leaderboard for %s: %v", contestID, err)
		return
	}

	h.broadcast(contestID, &LeaderboardUpdate{
		ContestID: contestID,
		Rankings:  rows,
		Timestamp: time.Now(),
	})
}

func (h *Hub) broadcast(contestID string, update *LeaderboardUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		log.Printf("Realtime hub: failed to marshal update: %v", err)
		return
	}

	// Writes happen outside the lock so a slow subscriber cannot stall
	// subscribes and unsubscribes for the whole contest.
	h.mutex.RLock()
	conns := make([]*websocket.Conn, 0, len(h.clients[contestID]))
	for conn := range h.clients[contestID] {
		conns = append(conns, conn)
	}
	h.mutex.RUnlock()

	var dead []*websocket.Conn
	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			log.Printf("Realtime hub: dropping slow subscriber for %s: %v", contestID, err)
			dead = append(dead, conn)
		}
	}
	if len(dead) == 0 {
		return
	}

	h.mutex.Lock()
	for _, conn := range dead {
		if _, ok := h.clients[contestID][conn]; ok {
			delete(h.clients[contestID], conn)
			conn.Close()
		}
	}
	h.mutex.Unlock()
}

// Routes mounts the leaderboard read and stream endpoints.
func (h *Hub) Routes(r chi.Router) {
	r.Get("/contests/{id}/leaderboard", h.getLeaderboard)
	r.Get("/contests/{id}/leaderboard/ws", h.serveWS)
}

func (h *Hub) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "id")

	rows, err := h.cache.Leaderboard(r.Context(), contestID)
	if err != nil {
		log.Printf("Failed to load leaderboard for %s: %v", contestID, err)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "could not load leaderboard"})
		return
	}
	if rows == nil {
		rows = []*contest.LeaderboardRow{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"contest_id": contestID, "rankings": rows})
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	contestID := chi.URLParam(r, "id")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("Realtime hub: websocket upgrade failed: %v", err)
		return
	}

	h.mutex.Lock()
	if h.clients[contestID] == nil {
		h.clients[contestID] = make(map[*websocket.Conn]bool)
	}
	h.clients[contestID][conn] = true
	h.mutex.Unlock()

	// Reader loop only detects disconnects; clients never send data.
	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients[contestID], conn)
			h.mutex.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

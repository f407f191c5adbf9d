// Package live fans verdict updates out to connected websocket clients, the
// Go-native rendering of the teacher's SSE broadcast hub
// (internal/realtime/sse.go) adapted to push VerdictUpdate events over
// gorilla/websocket instead of Server-Sent Events.
package live

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vjudge-orchestrator/internal/vjudge/model"
)

// VerdictUpdate is one fan-out event: a submission's verdict changed.
type VerdictUpdate struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	SubmissionID int64         `json:"submission_id"`
	OJName       string        `json:"oj_name"`
	ContestID    string        `json:"contest_id,omitempty"`
	UserID       string        `json:"user_id,omitempty"`
	Verdict      model.Verdict `json:"verdict"`
	ExeTime      *int          `json:"exe_time,omitempty"`
	ExeMem       *int          `json:"exe_mem,omitempty"`
}

// client is one connected websocket subscriber, optionally filtered to one
// OJ (ojFilter == "" means all OJs).
type client struct {
	id       string
	conn     *websocket.Conn
	send     chan VerdictUpdate
	ojFilter string
}

// Hub fans VerdictUpdate events out to every subscriber whose filter
// matches, mirroring the teacher's Hub.broadcast select-loop.
type Hub struct {
	clients    map[string]*client
	register   chan *client
	unregister chan *client
	broadcast  chan VerdictUpdate

	mu sync.RWMutex
}

// NewHub builds an idle Hub; call Run to start its event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan VerdictUpdate, 64),
	}
}

// Run drives the hub's register/unregister/broadcast loop until ctx is
// cancelled, at which point every connected client is dropped.
func (h *Hub) Run(ctx context.Context) {
	log.Println("live: hub started")
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			log.Printf("live: client %s connected, %d total", c.id, h.clientCount())

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				close(c.send)
				delete(h.clients, c.id)
			}
			h.mu.Unlock()
			log.Printf("live: client %s disconnected, %d total", c.id, h.clientCount())

		case update := <-h.broadcast:
			h.mu.RLock()
			for _, c := range h.clients {
				if c.ojFilter != "" && c.ojFilter != update.OJName {
					continue
				}
				select {
				case c.send <- update:
				default:
					log.Printf("live: client %s send buffer full, dropping update", c.id)
				}
			}
			h.mu.RUnlock()

		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			log.Println("live: hub shutting down")
			return
		}
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish broadcasts a verdict update to every matching subscriber. Safe to
// call from any goroutine (StatusCrawler's terminal commit path calls it).
func (h *Hub) Publish(update VerdictUpdate) {
	if update.ID == "" {
		update.ID = uuid.New().String()
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now()
	}
	select {
	case h.broadcast <- update:
	default:
		log.Printf("live: broadcast channel full, dropping update for submission %d", update.SubmissionID)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ServeHTTP upgrades the request to a websocket and streams verdict updates,
// optionally filtered to the oj query parameter, until the connection
// closes.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("live: upgrade failed: %v", err)
		return
	}

	c := &client{
		id:       uuid.New().String(),
		conn:     conn,
		send:     make(chan VerdictUpdate, 16),
		ojFilter: r.URL.Query().Get("oj"),
	}

	h.register <- c
	go h.readPump(c)
	h.writePump(c)
}

// readPump discards client messages but watches for the connection closing,
// which is this server's only signal to unregister (clients don't send
// anything meaningful back).
func (h *Hub) readPump(c *client) {
	defer func() { h.unregister <- c }()
	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

const pingInterval = 30 * time.Second

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case update, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			data, err := json.Marshal(update)
			if err != nil {
				log.Printf("live: marshal update: %v", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/infblueocean/newsmap/internal/feed"
	"github.com/infblueocean/newsmap/internal/otel"
	"github.com/infblueocean/newsmap/internal/ui"
)

const (
	writeWait = 10 * time.Second

	// sendBuffer is how many frames may queue for one client before it
	// is dropped as too slow.
	sendBuffer = 32
)

// Message is one websocket frame.
type Message struct {
	Type string    `json:"type"`
	Data any       `json:"data"`
	Time time.Time `json:"time"`
}

// Frame types.
const (
	TypeHello           = "hello"
	TypeRefreshStart    = "refresh.start"
	TypeSource          = "source"
	TypeRefreshComplete = "refresh.complete"
)

// SourceEvent reports one processed source.
type SourceEvent struct {
	Index    int    `json:"index"`
	Name     string `json:"name"`
	URL      string `json:"url"`
	Articles int    `json:"articles"`
	New      int    `json:"new"`
	Error    string `json:"error,omitempty"`
}

// RefreshEvent summarizes a finished pass.
type RefreshEvent struct {
	Articles int    `json:"articles"`
	New      int    `json:"new"`
	Analyzed int    `json:"analyzed"`
	Error    string `json:"error,omitempty"`
}

// client is one websocket connection. Only writePump writes to conn.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// writePump delivers queued frames until send is closed or a write fails.
func (c *client) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			for range c.send {
			}
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
}

// Hub fans refresh progress out to websocket clients. It implements
// coord.Sender, so a coordinator can drive it like the TUI.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *otel.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

// NewHub creates an empty hub.
func NewHub(l *otel.Logger) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		logger:  l,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and keeps the client registered until it
// disconnects. Incoming frames are read and discarded.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error(otel.KindError, "server", err)
		return
	}
	defer conn.Close()

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	hello, _ := json.Marshal(Message{Type: TypeHello, Data: map[string]int{"clients": h.Len() + 1}, Time: time.Now()})
	c.send <- hello

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer h.remove(c)

	go c.writePump()

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return // client disconnected
		}
	}
}

// remove unregisters c and stops its writer. Safe to call more than once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// Len returns the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Send converts coordinator messages to frames and broadcasts them.
// Unknown message types are ignored.
func (h *Hub) Send(msg tea.Msg) {
	m, ok := frame(msg)
	if !ok {
		return
	}
	h.Broadcast(m)
}

// Broadcast queues m for every client and never waits on the network.
// A client whose queue is full is dropped.
func (h *Hub) Broadcast(m Message) {
	if m.Time.IsZero() {
		m.Time = time.Now()
	}
	data, err := json.Marshal(m)
	if err != nil {
		h.logger.Error(otel.KindError, "server", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn(otel.KindError, "server", "dropping slow websocket client")
			h.removeLocked(c)
		}
	}
}

func frame(msg tea.Msg) (Message, bool) {
	switch msg := msg.(type) {
	case ui.RefreshStarted:
		sources := msg.Sources
		if sources == nil {
			sources = []feed.Source{}
		}
		return Message{Type: TypeRefreshStart, Data: map[string]any{"sources": sources}}, true
	case ui.SourceProcessed:
		r := msg.Result
		return Message{Type: TypeSource, Data: SourceEvent{
			Index:    r.Index,
			Name:     r.Source.Name,
			URL:      r.Source.URL,
			Articles: len(r.Articles),
			New:      msg.New,
			Error:    r.ErrorMessage(),
		}}, true
	case ui.RefreshComplete:
		ev := RefreshEvent{Articles: msg.Articles, New: msg.New, Analyzed: msg.Analyzed}
		if msg.Err != nil {
			ev.Error = msg.Err.Error()
		}
		return Message{Type: TypeRefreshComplete, Data: ev}, true
	}
	return Message{}, false
}

package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/a2s/internal/tasks"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	clientSendSize = 64
)

// Message is the envelope written to websocket clients.
type Message struct {
	Type   string        `json:"type"` // state or update
	State  *tasks.State  `json:"state,omitempty"`
	Update *tasks.Update `json:"update,omitempty"`
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	initial []byte
}

// Hub handles websocket clients and broadcasts.
type Hub struct {
	logger     *log.Logger
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
}

// NewHub creates a hub. It does nothing until [Hub.Run] is called.
func NewHub(logger *log.Logger) *Hub {
	return &Hub{
		logger:     logger,
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 64),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for c := range h.clients {
			close(c.send)
			delete(h.clients, c)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = true
			h.logger.Debug("websocket client connected", "clients", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.logger.Debug("websocket client disconnected", "clients", len(h.clients))
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					h.logger.Warn("dropping slow websocket client")
					delete(h.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish encodes u and broadcasts it. It returns without sending once the hub has stopped.
func (h *Hub) Publish(u tasks.Update) {
	data, err := json.Marshal(Message{Type: "update", Update: &u})
	if err != nil {
		h.logger.Error("failed to encode update", "kind", u.Kind, "err", err)
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.done:
	}
}

// attach registers conn and starts its pumps. initial is written before any broadcast.
func (h *Hub) attach(conn *websocket.Conn, initial []byte) bool {
	c := &client{conn: conn, send: make(chan []byte, clientSendSize), initial: initial}

	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return false
	}

	go c.writePump()
	go h.readPump(c)
	return true
}

func (c *client) writePump() {
	defer c.conn.Close()

	if c.initial != nil {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, c.initial); err != nil {
			return
		}
	}

	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// readPump discards client messages and unregisters the client when the connection drops.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

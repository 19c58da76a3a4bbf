// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	hubSendBuffer   = 32
	hubWriteTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// StepHub streams step events to websocket clients. A slow client loses
// messages instead of holding up the others.
type StepHub struct {
	mu      sync.Mutex
	clients map[*hubClient]struct{}

	metrics *Metrics
	log     *zap.Logger
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewStepHub creates an empty hub. metrics may be nil.
func NewStepHub(metrics *Metrics, log *zap.Logger) *StepHub {
	if log == nil {
		log = zap.NewNop()
	}
	return &StepHub{
		clients: make(map[*hubClient]struct{}),
		metrics: metrics,
		log:     log,
	}
}

// ServeHTTP upgrades the request and keeps the client registered until
// the connection closes.
func (h *StepHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws: upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	c := &hubClient{conn: conn, send: make(chan []byte, hubSendBuffer)}
	h.register(c)
	defer h.unregister(c)

	go c.writeLoop(h.log)

	// Clients only listen; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warn("ws: connection error", zap.Error(err))
			}
			return
		}
	}
}

func (c *hubClient) writeLoop(log *zap.Logger) {
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			log.Debug("ws: write error", zap.Error(err))
			c.conn.Close()
			return
		}
	}
}

func (h *StepHub) register(c *hubClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WebClients.Set(float64(n))
	}
}

func (h *StepHub) unregister(c *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.WebClients.Set(float64(n))
	}
}

// Broadcast sends v as JSON to every connected client.
func (h *StepHub) Broadcast(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		h.log.Warn("ws: marshal error", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.log.Debug("ws: client too slow, message dropped")
		}
	}
}

// Clients is the number of connected clients.
func (h *StepHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

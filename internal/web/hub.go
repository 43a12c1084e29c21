// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package web

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/inertial_activity/internal/pipeline"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	writeWait  = 5 * time.Second
	clientSend = 8
)

// Hub fans published reports out to websocket clients. A client that falls
// behind loses reports rather than slowing the inferer.
type Hub struct {
	log *zap.SugaredLogger

	mu      sync.Mutex
	clients map[*wsClient]struct{}
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub returns a hub with no clients.
func NewHub(log *zap.SugaredLogger) *Hub {
	return &Hub{log: log, clients: map[*wsClient]struct{}{}}
}

// Name implements pipeline.Observer.
func (h *Hub) Name() string { return "websocket" }

// Publish implements pipeline.Observer.
func (h *Hub) Publish(_ context.Context, r pipeline.Report) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return err
	}
	h.broadcast(payload)
	return nil
}

func (h *Hub) broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			h.log.Debugw("web: websocket client lagging, dropping report", "remote", c.conn.RemoteAddr())
		}
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Serve upgrades the request and streams reports until the client leaves.
// When initial is non-nil it is sent first.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, initial *pipeline.Report) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnw("web: websocket upgrade error", "err", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, clientSend)}
	if initial != nil {
		if payload, err := json.Marshal(initial); err == nil {
			c.send <- payload
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	done := make(chan struct{})
	go h.writePump(c, done)

	// The read side only detects the close; clients have nothing to say.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debugw("web: websocket error", "err", err)
			}
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(done)
	conn.Close()
}

func (h *Hub) writePump(c *wsClient, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.conn.Close()
				return
			}
		}
	}
}

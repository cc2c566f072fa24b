// Package realtime fans live position updates out to supervisor WebSocket
// connections.
package realtime

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bizmatters/field-sales/visit-guard/internal/models"
)

const (
	MessageSnapshot = "snapshot"
	MessagePosition = "position"
	MessageHidden   = "hidden"

	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Message is one frame sent to watchers
type Message struct {
	Type      string                `json:"type"`
	Position  *models.LivePosition  `json:"position,omitempty"`
	Positions []models.LivePosition `json:"positions,omitempty"`
}

type watcher struct {
	send chan []byte
}

// Hub tracks connected watchers. Publish never blocks: a watcher whose
// buffer is full is dropped.
type Hub struct {
	mu       sync.Mutex
	watchers map[*watcher]struct{}
	logger   *slog.Logger
}

// NewHub creates an empty hub
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		watchers: make(map[*watcher]struct{}),
		logger:   logger.With("component", "realtime"),
	}
}

// Watchers returns the number of connected watchers
func (h *Hub) Watchers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.watchers)
}

// Publish sends a live position change to every watcher. A nil position
// tells watchers to hide the agent.
func (h *Hub) Publish(lp models.LivePosition) {
	msg := Message{Type: MessagePosition, Position: &lp}
	if lp.Position == nil {
		msg.Type = MessageHidden
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal live position", "agent_id", lp.AgentID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for w := range h.watchers {
		select {
		case w.send <- payload:
		default:
			h.logger.Warn("dropping slow live feed watcher")
			delete(h.watchers, w)
			close(w.send)
		}
	}
}

func (h *Hub) register() *watcher {
	w := &watcher{send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.watchers[w] = struct{}{}
	h.mu.Unlock()
	return w
}

func (h *Hub) unregister(w *watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.watchers[w]; ok {
		delete(h.watchers, w)
		close(w.send)
	}
}

// Serve streams a snapshot followed by live updates to conn until the
// client goes away, ctx ends or the watcher is dropped. Client frames are
// read and discarded.
func (h *Hub) Serve(ctx context.Context, conn *websocket.Conn, snapshot []models.LivePosition) error {
	w := h.register()
	defer h.unregister(w)

	if snapshot == nil {
		snapshot = []models.LivePosition{}
	}
	if err := writeJSON(conn, Message{Type: MessageSnapshot, Positions: snapshot}); err != nil {
		return err
	}

	errChan := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				errChan <- err
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errChan:
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		case payload, ok := <-w.send:
			if !ok {
				conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), time.Now().Add(writeWait))
				return nil
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return err
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return err
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

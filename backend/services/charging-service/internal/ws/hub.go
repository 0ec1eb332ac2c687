package ws

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"chargeflow/backend/services/charging-service/internal/service"
)

// Subscription receives the encoded events of one session.
type Subscription struct {
	sessionID string
	C         chan []byte
}

// Hub fans session events out to websocket subscribers.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	logger *zap.Logger
}

// NewHub builds a hub. buffer is the per-subscriber queue length.
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Subscribe registers interest in sessionID.
func (h *Hub) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{sessionID: sessionID, C: make(chan []byte, h.buffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[sessionID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes sub and closes its channel. Calling it twice is safe.
func (h *Hub) Unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[sub.sessionID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.C)
	if len(set) == 0 {
		delete(h.subs, sub.sessionID)
	}
}

// Subscribers returns the number of subscribers of sessionID.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[sessionID])
}

// Publish sends event to every subscriber of its session without blocking. Slow subscribers
// lose messages.
func (h *Hub) Publish(event service.SessionEvent) {
	if event.Projection == nil || event.Projection.Session == nil {
		return
	}
	sessionID := event.Projection.Session.ID

	h.mu.RLock()
	defer h.mu.RUnlock()
	set := h.subs[sessionID]
	if len(set) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Warn("failed to encode session event", zap.String("session_id", sessionID), zap.Error(err))
		return
	}
	for sub := range set {
		select {
		case sub.C <- data:
		default:
			h.logger.Warn("dropping session event, buffer full", zap.String("session_id", sessionID))
		}
	}
}

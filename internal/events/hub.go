// internal/events/hub.go
package events

import (
	"context"
	"sync"

	evtypes "kalpla-auth/internal/domain/events"

	"go.uber.org/zap"
)

type subscription struct {
	id      uint64
	handler evtypes.Handler
}

// Hub is an in-process lifecycle event bus. Handlers for a kind are invoked
// synchronously in subscription order; a panicking handler is logged and
// does not stop delivery to the rest.
type Hub struct {
	mu       sync.RWMutex
	handlers map[evtypes.EventType][]subscription
	nextID   uint64
	logger   *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		handlers: make(map[evtypes.EventType][]subscription),
		logger:   logger,
	}
}

// Subscribe registers handler for kind and returns a func that removes it
func (h *Hub) Subscribe(kind evtypes.EventType, handler evtypes.Handler) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	h.handlers[kind] = append(h.handlers[kind], subscription{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(kind, id) })
	}
}

func (h *Hub) unsubscribe(kind evtypes.EventType, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.handlers[kind]
	for i, s := range subs {
		if s.id == id {
			h.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(h.handlers[kind]) == 0 {
		delete(h.handlers, kind)
	}
}

// Publish delivers ev to every handler subscribed to its kind
func (h *Hub) Publish(ctx context.Context, ev evtypes.Event) {
	h.mu.RLock()
	subs := append([]subscription(nil), h.handlers[ev.Type]...)
	h.mu.RUnlock()

	if len(subs) == 0 {
		h.logger.Debug("lifecycle event without subscribers", zap.String("type", string(ev.Type)))
		return
	}

	for _, s := range subs {
		h.deliver(ctx, s, ev)
	}
}

func (h *Hub) deliver(ctx context.Context, s subscription, ev evtypes.Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("lifecycle handler panicked",
				zap.String("type", string(ev.Type)),
				zap.String("event_id", ev.ID),
				zap.Any("panic", r),
			)
		}
	}()
	s.handler(ctx, ev)
}

// Subscribers returns the number of handlers registered for kind
func (h *Hub) Subscribers(kind evtypes.EventType) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[kind])
}

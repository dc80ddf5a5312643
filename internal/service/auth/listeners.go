package auth

import (
	"kalpla-auth/internal/domain/auth"

	"go.uber.org/zap"
)

// Listener receives the new snapshot after every auth state change; nil
// means signed out.
type Listener func(user *auth.UserSnapshot)

type listener struct {
	id uint64
	fn Listener
}

// AddAuthListener registers fn and returns a function that removes it.
// Calling the returned function more than once is a no-op.
func (c *Coordinator) AddAuthListener(fn Listener) func() {
	c.listenersMu.Lock()
	c.nextListener++
	id := c.nextListener
	c.listeners = append(c.listeners, listener{id: id, fn: fn})
	c.listenersMu.Unlock()

	removed := false
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()

		if removed {
			return
		}
		removed = true
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// notify calls every listener in registration order with the same snapshot.
// Listeners added or removed while a notification is running take effect
// from the next one.
func (c *Coordinator) notify(user *auth.UserSnapshot) {
	c.listenersMu.RLock()
	snapshot := make([]listener, len(c.listeners))
	copy(snapshot, c.listeners)
	c.listenersMu.RUnlock()

	for _, l := range snapshot {
		c.deliver(l, user)
	}
}

func (c *Coordinator) deliver(l listener, user *auth.UserSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("auth listener panicked",
				zap.Uint64("listener_id", l.id), zap.Any("panic", r))
		}
	}()
	l.fn(user)
}

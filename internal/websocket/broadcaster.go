// internal/websocket/broadcaster.go
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	evtypes "kalpla-auth/internal/domain/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventSource is what a Broadcaster attaches to
type EventSource interface {
	Subscribe(kind evtypes.EventType, handler evtypes.Handler) func()
}

type peer struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (p *peer) close() {
	p.once.Do(func() { close(p.send) })
}

// Broadcaster serves lifecycle events to websocket peers, the server side
// of Stream. Other processes or tabs tail it to learn about sign-in changes
// made elsewhere.
type Broadcaster struct {
	upgrader websocket.Upgrader
	logger   *zap.Logger

	mu    sync.RWMutex
	peers map[*peer]bool
}

func NewBroadcaster(logger *zap.Logger) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broadcaster{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger,
		peers:  make(map[*peer]bool),
	}
}

// Attach forwards every lifecycle event of source and returns a detach func
func (b *Broadcaster) Attach(source EventSource) func() {
	unsubscribe := make([]func(), 0, len(evtypes.LifecycleEvents))
	for _, kind := range evtypes.LifecycleEvents {
		unsubscribe = append(unsubscribe, source.Subscribe(kind, b.Broadcast))
	}
	return func() {
		for _, u := range unsubscribe {
			u()
		}
	}
}

// Broadcast queues ev for every peer. A peer whose queue is full is dropped.
func (b *Broadcaster) Broadcast(ctx context.Context, ev evtypes.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.Error("failed to marshal lifecycle event", zap.Error(err))
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for p := range b.peers {
		select {
		case p.send <- data:
		default:
			b.logger.Warn("dropping slow event stream peer")
			delete(b.peers, p)
			p.close()
		}
	}
}

// Close disconnects every peer with a normal closure
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for p := range b.peers {
		delete(b.peers, p)
		p.close()
	}
}

// Peers returns the number of connected peers
func (b *Broadcaster) Peers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("event stream upgrade failed", zap.Error(err))
		return
	}

	p := &peer{conn: conn, send: make(chan []byte, 256)}

	b.mu.Lock()
	b.peers[p] = true
	b.mu.Unlock()

	go b.writePump(p)
	b.readPump(p)
}

func (b *Broadcaster) unregister(p *peer) {
	b.mu.Lock()
	if b.peers[p] {
		delete(b.peers, p)
		p.close()
	}
	b.mu.Unlock()
}

// readPump only services control frames; peers do not send events
func (b *Broadcaster) readPump(p *peer) {
	defer func() {
		b.unregister(p)
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		p.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				b.logger.Debug("event stream peer error", zap.Error(err))
			}
			return
		}
	}
}

func (b *Broadcaster) writePump(p *peer) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case message, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := p.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

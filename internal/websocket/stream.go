// internal/websocket/stream.go
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	evtypes "kalpla-auth/internal/domain/events"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024 // 64KB
)

// Publisher receives the lifecycle events read off the wire
type Publisher interface {
	Publish(ctx context.Context, ev evtypes.Event)
}

// Stream tails a remote lifecycle feed and republishes every known event,
// in arrival order, to a local Publisher (usually an events.Hub)
type Stream struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	events Publisher
	logger *zap.Logger
}

func NewStream(url string, events Publisher, logger *zap.Logger) *Stream {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Stream{
		url:    url,
		header: http.Header{},
		dialer: websocket.DefaultDialer,
		events: events,
		logger: logger,
	}
}

// WithHeader adds a header to the handshake, e.g. Authorization
func (s *Stream) WithHeader(key, value string) *Stream {
	s.header.Add(key, value)
	return s
}

// Run connects and pumps events until ctx is cancelled (returns nil), the
// server closes normally (returns nil) or the connection fails.
func (s *Stream) Run(ctx context.Context) error {
	conn, _, err := s.dialer.DialContext(ctx, s.url, s.header)
	if err != nil {
		return fmt.Errorf("failed to dial event stream %s: %w", s.url, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go s.keepAlive(ctx, conn, done)

	s.logger.Info("event stream connected", zap.String("url", s.url))

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Info("event stream closed by server", zap.String("url", s.url))
				return nil
			}
			return fmt.Errorf("event stream read failed: %w", err)
		}

		s.handleMessage(ctx, message)
	}
}

func (s *Stream) handleMessage(ctx context.Context, data []byte) {
	ev, err := evtypes.ParseEvent(data)
	if err != nil {
		s.logger.Warn("skipping malformed event frame", zap.Error(err))
		return
	}
	if !ev.Type.Known() {
		s.logger.Debug("skipping unknown event type", zap.String("type", string(ev.Type)))
		return
	}

	s.events.Publish(ctx, ev)
}

// keepAlive pings the server and closes the connection when ctx ends.
// WriteControl is safe to use alongside the read loop.
func (s *Stream) keepAlive(ctx context.Context, conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			conn.Close()
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.logger.Debug("event stream ping failed", zap.Error(err))
				return
			}
		}
	}
}

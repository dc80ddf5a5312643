// internal/domain/events/types.go
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType is an identity provider lifecycle event
type EventType string

const (
	EventSignedIn            EventType = "signedIn"
	EventSignedOut           EventType = "signedOut"
	EventTokenRefresh        EventType = "tokenRefresh"
	EventTokenRefreshFailure EventType = "tokenRefresh_failure"
)

// LifecycleEvents are the kinds a session coordinator subscribes to
var LifecycleEvents = []EventType{
	EventSignedIn,
	EventSignedOut,
	EventTokenRefresh,
	EventTokenRefreshFailure,
}

// Event is the universal lifecycle message, both in-process and on the wire
type Event struct {
	Type      EventType              `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	ID        string                 `json:"id,omitempty"`
}

// NewEvent stamps a lifecycle event with an id and the current time
func NewEvent(eventType EventType, data map[string]interface{}) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		ID:        ulid.Make().String(),
	}
}

// Known reports whether t is one of the lifecycle kinds
func (t EventType) Known() bool {
	for _, k := range LifecycleEvents {
		if t == k {
			return true
		}
	}
	return false
}

// ParseEvent decodes a wire frame into an Event
func ParseEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to decode lifecycle event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("lifecycle event has no type")
	}
	return ev, nil
}

// Handler reacts to a lifecycle event
type Handler func(ctx context.Context, ev Event)

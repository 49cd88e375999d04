package bus

import (
	"context"
	"time"
)

// Default envelope values applied during normalization.
const (
	// DefaultChannel is assigned when an emitted event carries no channel.
	DefaultChannel = "system"

	// DefaultSession is assigned when an emitted event carries no session id.
	DefaultSession = "default"
)

// Wildcard subscribes a handler to every event type. Wildcard handlers run
// after the type-specific handlers for each event.
const Wildcard = "*"

// Event is the envelope that moves through the bus. Producers fill in Type
// and Content; Channel, SessionID, and Timestamp are normalized on emit when
// absent. ClientID identifies the gateway connection an event originated
// from (or is addressed to) and is left empty for internal events.
type Event struct {
	Type      string         `json:"type"`
	Content   map[string]any `json:"content,omitempty"`
	Channel   string         `json:"channel,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	ClientID  string         `json:"clientId,omitempty"`
	Timestamp int64          `json:"timestamp,omitempty"`

	// Consumed marks the envelope as claimed by an earlier handler so later
	// handlers skip it. It never crosses the wire. The flag is the only
	// mutation handlers may perform on a delivered envelope.
	Consumed bool `json:"-"`
}

// Handler processes one event. Dispatch is serialized: the bus waits for each
// handler to return before invoking the next, and a returned error is logged
// without stopping later handlers.
type Handler func(ctx context.Context, ev *Event) error

// normalize applies envelope defaults in place.
func (e *Event) normalize() {
	if e.Channel == "" {
		e.Channel = DefaultChannel
	}
	if e.SessionID == "" {
		e.SessionID = DefaultSession
	}
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}
}

// Package ws holds WebSocket message types and the Hub implementation.
// messages.go defines the frames pushed to connected clients.
package ws

import (
	"time"

	"github.com/evetabi/settlement/internal/domain"
	"github.com/google/uuid"
)

// MsgType identifies the kind of WS message so clients can switch on it.
// Event frames reuse the domain event type names.
type MsgType string

const (
	MsgTypeTradeExecuted   = MsgType(domain.EventTradeExecuted)
	MsgTypePoolUpdated     = MsgType(domain.EventPoolUpdated)
	MsgTypeOptionResolved  = MsgType(domain.EventOptionResolved)
	MsgTypeDisputeFiled    = MsgType(domain.EventDisputeFiled)
	MsgTypeDisputeReviewed = MsgType(domain.EventDisputeReviewed)
	MsgTypeError           MsgType = "error"
)

// ──────────────────────────────────────────────────────────────────────────────
// EventMessage: one committed domain event.
// ──────────────────────────────────────────────────────────────────────────────

// EventMessage is the frame for every domain event. Data is the event
// payload unchanged.
type EventMessage struct {
	Type      MsgType     `json:"type"`
	EventID   uuid.UUID   `json:"event_id"`
	MarketID  uuid.UUID   `json:"market_id"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewEventMessage wraps ev for the wire.
func NewEventMessage(ev domain.Event) EventMessage {
	return EventMessage{
		Type:      MsgType(ev.Type),
		EventID:   ev.ID,
		MarketID:  ev.MarketID,
		Data:      ev.Payload,
		Timestamp: ev.Timestamp,
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// ErrorMessage: sent to a single client on a non-fatal error.
// ──────────────────────────────────────────────────────────────────────────────

// ErrorMessage is sent directly to one client (not broadcast).
type ErrorMessage struct {
	Type    MsgType `json:"type"`
	Code    string  `json:"code"`
	Message string  `json:"message"`
}

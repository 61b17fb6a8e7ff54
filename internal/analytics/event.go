// Package analytics records product events on a best-effort basis. Nothing
// here returns a failure to the request path: overload and storage errors
// are logged and the event is dropped.
package analytics

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownEvent is returned by Validate for names outside the catalogue.
var ErrUnknownEvent = errors.New("unknown analytics event")

// Name identifies an event type.
type Name string

// Client-reported events.
const (
	AssistantOpened      Name = "assistant_opened"
	AssistantMessageSent Name = "assistant_message_sent"
	IntentResolved       Name = "intent_resolved"
	PortalRedirect       Name = "portal_redirect"
	FlowCompleted        Name = "flow_completed"
	EscalationRequested  Name = "escalation_requested"
	IntentUnknown        Name = "intent_unknown"
)

// Server-emitted events.
const (
	GuardrailsTriggered Name = "guardrails_triggered"
	ResponseSent        Name = "response_sent"
)

// ClientNames lists the events accepted from POST /api/analytics.
var ClientNames = []Name{
	AssistantOpened,
	AssistantMessageSent,
	IntentResolved,
	PortalRedirect,
	FlowCompleted,
	EscalationRequested,
	IntentUnknown,
}

// Validate returns ErrUnknownEvent unless n may be posted by a client.
func Validate(n Name) error {
	for _, c := range ClientNames {
		if c == n {
			return nil
		}
	}
	return ErrUnknownEvent
}

// Event is one recorded occurrence. TS is Unix milliseconds.
type Event struct {
	ID      string         `json:"id"`
	Name    Name           `json:"name"`
	TS      int64          `json:"ts"`
	Payload map[string]any `json:"payload,omitempty"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(name Name, payload map[string]any) Event {
	return Event{
		ID:      uuid.New().String(),
		Name:    name,
		TS:      time.Now().UnixMilli(),
		Payload: payload,
	}
}

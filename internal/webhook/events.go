package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrUnknownEventType = errors.New("webhook: unknown event type")
	ErrMalformedEvent   = errors.New("webhook: malformed event")
)

// EventType is the closed set of call-lifecycle notifications the dialer
// provider posts back. Anything outside this set is rejected at the boundary.
type EventType string

const (
	EventCallStarted  EventType = "call_started"
	EventCallEnded    EventType = "call_ended"
	EventCallAnalyzed EventType = "call_analyzed"
)

// DisconnectReason values the provider reports on call_ended.
type DisconnectReason string

const (
	ReasonUserHangup      DisconnectReason = "user_hangup"
	ReasonAgentHangup     DisconnectReason = "agent_hangup"
	ReasonDialNoAnswer    DisconnectReason = "dial_no_answer"
	ReasonDialBusy        DisconnectReason = "dial_busy"
	ReasonDialFailed      DisconnectReason = "dial_failed"
	ReasonVoicemail       DisconnectReason = "voicemail_reached"
	ReasonMachineDetected DisconnectReason = "machine_detected"
	ReasonCallTransfer    DisconnectReason = "call_transfer"
	ReasonInactivity      DisconnectReason = "inactivity"
	ReasonError           DisconnectReason = "error"
)

// CallPayload is the provider's call object, reduced to the fields the
// ingester consumes.
type CallPayload struct {
	CallID           string           `json:"call_id"`
	AgentID          string           `json:"agent_id"`
	FromNumber       string           `json:"from_number"`
	ToNumber         string           `json:"to_number"`
	DisconnectReason DisconnectReason `json:"disconnection_reason,omitempty"`
	Transcript       string           `json:"transcript,omitempty"`
}

// Event is one validated lifecycle notification.
type Event struct {
	Type EventType   `json:"event"`
	Call CallPayload `json:"call"`
}

// ParseEvent decodes and validates a raw webhook body. The event type must be
// one of the known variants and the call id must be present; payload shapes
// from the provider SDK are duck-typed, so everything is checked here rather
// than trusted downstream.
func ParseEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	switch ev.Type {
	case EventCallStarted, EventCallEnded, EventCallAnalyzed:
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}
	if ev.Call.CallID == "" {
		return Event{}, fmt.Errorf("%w: missing call_id", ErrMalformedEvent)
	}
	return ev, nil
}

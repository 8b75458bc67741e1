package dialer

import (
	"context"
	"errors"
)

var (
	ErrInvalidRequest = errors.New("dialer: invalid request")
	ErrProvider       = errors.New("dialer: provider error")
)

// Dialer is the provider-agnostic interface for placing outbound calls.
//
// Protocol rule: RegisterCall must precede PlaceCall for the same attempt.
// No provider SDK calls outside dialer adapters.
type Dialer interface {
	Name() string
	HealthCheck(ctx context.Context) error

	RegisterCall(ctx context.Context, req RegisterCallRequest) (RegisterCallResult, error)
	PlaceCall(ctx context.Context, req PlaceCallRequest) (PlaceCallResult, error)
}

// DynamicVars are per-call templating values handed to the receiving agent
// for a personalized conversation.
type DynamicVars map[string]string

// RegisterCallRequest announces an upcoming call attempt to the provider.
type RegisterCallRequest struct {
	AgentID    string      `json:"agent_id"`
	FromNumber string      `json:"from_number"`
	ToNumber   string      `json:"to_number"`
	Vars       DynamicVars `json:"vars,omitempty"`
}

type RegisterCallResult struct {
	Registered bool `json:"registered"`
}

// PlaceCallRequest creates the phone call after registration.
type PlaceCallRequest struct {
	FromNumber string `json:"from_number"`
	ToNumber   string `json:"to_number"`

	// OverrideAgentID routes the call to a specific agent instead of the
	// number's default.
	OverrideAgentID string `json:"override_agent_id,omitempty"`

	Vars DynamicVars `json:"vars,omitempty"`
}

type PlaceCallResult struct {
	// CallID is the provider's unique identifier for the placed call.
	CallID string `json:"call_id"`
}

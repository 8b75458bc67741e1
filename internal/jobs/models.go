package jobs

import "time"

// Job represents one scheduling batch of outbound calls.
//
// State machine: queued -> on_call -> {called, canceled}. called and canceled
// are terminal.
//
// ShouldContinue is a one-way kill switch: it flips true -> false exactly
// once (at completion, cancellation or cutoff) and never back. The executor
// polls it between dispatches; cancellation is cooperative, not preemptive.
type Job struct {
	ID      string `json:"id" db:"id"`
	AgentID string `json:"agent_id" db:"agent_id"`

	Status Status `json:"status" db:"status"`

	// ScheduledAt is a wall-clock instant in the campaign timezone.
	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`

	ShouldContinue bool `json:"should_continue" db:"should_continue"`

	// Tag is the segmentation filter used at reservation time (lowercase).
	Tag string `json:"tag,omitempty" db:"tag"`

	// Limit caps how many contacts the scheduler reserves.
	Limit int `json:"limit" db:"contact_limit"`

	FromNumber string `json:"from_number" db:"from_number"`

	ProcessedContacts int     `json:"processed_contacts" db:"processed_contacts"`
	TotalToProcess    int     `json:"total_to_process" db:"total_to_process"`
	CompletedPercent  float64 `json:"completed_percent" db:"completed_percent"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusQueued   Status = "queued"
	StatusOnCall   Status = "on_call"
	StatusCalled   Status = "called"
	StatusCanceled Status = "canceled"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusQueued, StatusOnCall, StatusCalled, StatusCanceled:
		return true
	default:
		return false
	}
}

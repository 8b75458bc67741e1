package audit

import "time"

// Event is an immutable, append-only audit log record for campaign actions.
//
// Invariants:
// - Events are never updated or deleted.
// - Actor and ip capture are best-effort; do not block the dispatch path on
//   audit failures.
//
// Storage recommendation (Postgres):
// - Table audit_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the business category of the audit record.
	Type EventType `json:"type" db:"type"`

	AgentID string `json:"agent_id,omitempty" db:"agent_id"`
	JobID   string `json:"job_id,omitempty" db:"job_id"`

	// IPAddress should capture the original client IP when available.
	// Prefer X-Forwarded-For processing at the edge; store the resolved client IP here.
	IPAddress string `json:"ip_address,omitempty" db:"ip_address"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeJobScheduled EventType = "job_scheduled"
	EventTypeJobCanceled  EventType = "job_canceled"
	EventTypeJobRecovered EventType = "job_recovered"
)

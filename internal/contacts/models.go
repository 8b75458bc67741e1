package contacts

import "time"

// Contact represents a dialable lead.
//
// Reservation invariant: a contact with Taken=true is owned by exactly one
// in-flight job. Reservation and release are bulk conditional updates over
// the filtered set, never per-row fetch-then-write.
//
// Contacts are soft-deleted only; rows are never physically removed.
type Contact struct {
	ID          string `json:"id" db:"id"`
	AgentID     string `json:"agent_id" db:"agent_id"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`

	FirstName string `json:"first_name,omitempty" db:"first_name"`
	LastName  string `json:"last_name,omitempty" db:"last_name"`
	Email     string `json:"email,omitempty" db:"email"`
	Address   string `json:"address,omitempty" db:"address"`

	// Tag is the campaign segmentation label, stored lowercase.
	Tag string `json:"tag,omitempty" db:"tag"`

	DialStatus DialStatus `json:"dial_status" db:"dial_status"`

	Taken     bool `json:"taken" db:"taken"`
	OnDNCList bool `json:"on_dnc_list" db:"on_dnc_list"`
	Deleted   bool `json:"deleted" db:"deleted"`

	// JobIDs lists the scheduling batches this contact has been dialed under.
	JobIDs []string `json:"job_ids,omitempty" db:"job_ids"`

	// LastCallID is the dialer's identifier for the most recent call attempt.
	LastCallID string `json:"last_call_id,omitempty" db:"last_call_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type DialStatus string

const (
	DialStatusNotCalled  DialStatus = "not_called"
	DialStatusInProgress DialStatus = "in_progress"

	// Terminal connected outcomes, set from transcript classification.
	DialStatusConnectedInterested    DialStatus = "connected_interested"
	DialStatusConnectedNotInterested DialStatus = "connected_not_interested"
	DialStatusConnectedVoicemail     DialStatus = "connected_voicemail"

	DialStatusTransferred DialStatus = "transferred"
	DialStatusFailed      DialStatus = "failed"
	DialStatusNoAnswer    DialStatus = "no_answer"
	DialStatusCanceled    DialStatus = "canceled"
)

// ValidDialStatus reports whether s is a known status value.
func ValidDialStatus(s DialStatus) bool {
	switch s {
	case DialStatusNotCalled, DialStatusInProgress,
		DialStatusConnectedInterested, DialStatusConnectedNotInterested,
		DialStatusConnectedVoicemail, DialStatusTransferred,
		DialStatusFailed, DialStatusNoAnswer, DialStatusCanceled:
		return true
	default:
		return false
	}
}

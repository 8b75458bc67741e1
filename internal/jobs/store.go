package jobs

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("jobs: not found")
	ErrInvalidArgument = errors.New("jobs: invalid argument")
)

// Store abstracts job persistence.
//
// SetStatus is conditional on the current status and returns rows affected so
// callers can detect a state that diverged underneath them (the executor
// treats anything other than exactly one row as fatal).
//
// IncrementProgress recomputes completed_percent inside the store so
// concurrent readers never observe a processed count and percent from
// different points in time.
type Store interface {
	Create(ctx context.Context, j Job) (Job, error)
	FindByID(ctx context.Context, id string) (*Job, error)

	// FindActiveByAgent returns a job with status in {queued, on_call} and
	// should_continue = true, or nil when the agent has no active job.
	FindActiveByAgent(ctx context.Context, agentID string) (*Job, error)

	SetStatus(ctx context.Context, id string, from, to Status) (int64, error)
	SetContinuation(ctx context.Context, id string, cont bool) error

	SetTotalToProcess(ctx context.Context, id string, total int) error
	IncrementProgress(ctx context.Context, id string, delta, total int) error

	// ListRecoverable returns queued jobs with should_continue = true whose
	// scheduled time is still in the future relative to now.
	ListRecoverable(ctx context.Context, now time.Time) ([]Job, error)

	// Delete removes a job row. Only the scheduler uses this, to roll back a
	// creation that could not reserve any contacts.
	Delete(ctx context.Context, id string) error
}

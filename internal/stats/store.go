package stats

import (
	"context"
	"errors"
)

var ErrInvalidArgument = errors.New("stats: invalid argument")

// Store abstracts per-day statistics persistence.
type Store interface {
	// EnsureDay creates the zeroed row for (day, agentID, jobID) if absent.
	// Idempotent.
	EnsureDay(ctx context.Context, day, agentID, jobID string) error

	// Increment bumps one counter on the row for (day, agentID, jobID).
	// The row is created on demand so late webhook events never drop counts.
	Increment(ctx context.Context, day, agentID, jobID string, counter Counter, delta int) error

	Get(ctx context.Context, day, agentID, jobID string) (*DayStats, error)
}

package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to API callers.
// - Callers should treat audit logging as best-effort.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogJobScheduled records a new campaign batch being armed.
func (s *Service) LogJobScheduled(ctx context.Context, agentID, jobID, ip, metadata string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeJobScheduled,
		AgentID:   agentID,
		JobID:     jobID,
		IPAddress: ip,
		Message:   "campaign job scheduled",
		Metadata:  metadata,
	})
}

// LogJobCanceled records an operator-requested cancellation.
func (s *Service) LogJobCanceled(ctx context.Context, agentID, jobID, ip string) error {
	return s.Append(ctx, Event{
		Type:      EventTypeJobCanceled,
		AgentID:   agentID,
		JobID:     jobID,
		IPAddress: ip,
		Message:   "campaign job canceled",
	})
}

// LogJobRecovered records a queued job resumed at startup.
func (s *Service) LogJobRecovered(ctx context.Context, agentID, jobID string) error {
	return s.Append(ctx, Event{
		Type:    EventTypeJobRecovered,
		AgentID: agentID,
		JobID:   jobID,
		Message: "campaign job recovered after restart",
	})
}

package stats

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory stats store for tests and early development.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]*DayStats

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]*DayStats{}, clock: time.Now}
}

func key(day, agentID, jobID string) string {
	return day + "|" + agentID + "|" + jobID
}

func (r *MemoryRepo) ensureLocked(day, agentID, jobID string) *DayStats {
	k := key(day, agentID, jobID)
	row, ok := r.rows[k]
	if !ok {
		row = &DayStats{Day: day, AgentID: agentID, JobID: jobID, UpdatedAt: r.clock()}
		r.rows[k] = row
	}
	return row
}

func (r *MemoryRepo) EnsureDay(ctx context.Context, day, agentID, jobID string) error {
	if day == "" || agentID == "" || jobID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureLocked(day, agentID, jobID)
	return nil
}

func (r *MemoryRepo) Increment(ctx context.Context, day, agentID, jobID string, counter Counter, delta int) error {
	if day == "" || agentID == "" || jobID == "" || delta == 0 || !ValidCounter(counter) {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row := r.ensureLocked(day, agentID, jobID)
	switch counter {
	case CounterTotalCalls:
		row.TotalCalls += delta
	case CounterAnswered:
		row.Answered += delta
	case CounterVoicemail:
		row.Voicemail += delta
	case CounterIVR:
		row.IVR += delta
	case CounterFailed:
		row.Failed += delta
	case CounterTransferred:
		row.Transferred += delta
	case CounterNoAnswer:
		row.NoAnswer += delta
	case CounterInactivity:
		row.Inactivity += delta
	case CounterScheduled:
		row.Scheduled += delta
	}
	row.UpdatedAt = r.clock()
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, day, agentID, jobID string) (*DayStats, error) {
	if day == "" || agentID == "" || jobID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[key(day, agentID, jobID)]
	if !ok {
		return nil, nil
	}
	cp := *row
	return &cp, nil
}

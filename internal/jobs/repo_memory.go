package jobs

import (
	"context"
	"sync"
	"time"
)

// MemoryRepo is an in-memory job store for tests and early development.
// Conditional updates mirror the Postgres repo semantics.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]*Job

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]*Job{}, clock: time.Now}
}

// Snapshot returns a copy of a row for assertions.
func (r *MemoryRepo) Snapshot(id string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.rows[id]
	if !ok {
		return Job{}, false
	}
	return *j, true
}

func (r *MemoryRepo) Create(ctx context.Context, j Job) (Job, error) {
	if j.ID == "" || j.AgentID == "" {
		return Job{}, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now
	cp := j
	r.rows[j.ID] = &cp
	return j, nil
}

func (r *MemoryRepo) FindByID(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (r *MemoryRepo) FindActiveByAgent(ctx context.Context, agentID string) (*Job, error) {
	if agentID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, j := range r.rows {
		if j.AgentID != agentID || !j.ShouldContinue {
			continue
		}
		if j.Status == StatusQueued || j.Status == StatusOnCall {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *MemoryRepo) SetStatus(ctx context.Context, id string, from, to Status) (int64, error) {
	if id == "" || !ValidStatus(from) || !ValidStatus(to) {
		return 0, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.rows[id]
	if !ok || j.Status != from {
		return 0, nil
	}
	j.Status = to
	j.UpdatedAt = r.clock()
	return 1, nil
}

func (r *MemoryRepo) SetContinuation(ctx context.Context, id string, cont bool) error {
	if id == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	// One-way flag: never resurrect a stopped job.
	if cont && !j.ShouldContinue {
		return nil
	}
	j.ShouldContinue = cont
	j.UpdatedAt = r.clock()
	return nil
}

func (r *MemoryRepo) SetTotalToProcess(ctx context.Context, id string, total int) error {
	if id == "" || total < 0 {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	j.TotalToProcess = total
	j.UpdatedAt = r.clock()
	return nil
}

func (r *MemoryRepo) IncrementProgress(ctx context.Context, id string, delta, total int) error {
	if id == "" || delta <= 0 || total <= 0 {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	j.ProcessedContacts += delta
	j.CompletedPercent = float64(j.ProcessedContacts) / float64(total) * 100
	j.UpdatedAt = r.clock()
	return nil
}

func (r *MemoryRepo) ListRecoverable(ctx context.Context, now time.Time) ([]Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Job, 0)
	for _, j := range r.rows {
		if j.Status == StatusQueued && j.ShouldContinue && j.ScheduledAt.After(now) {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (r *MemoryRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[id]; !ok {
		return ErrNotFound
	}
	delete(r.rows, id)
	return nil
}

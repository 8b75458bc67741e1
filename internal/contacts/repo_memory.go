package contacts

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory contact store for tests and early development.
// It mirrors the conditional-update semantics of the Postgres repo: Reserve
// and Release only flip rows that still satisfy the guard condition.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]*Contact

	clock func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{rows: map[string]*Contact{}, clock: time.Now}
}

// Put inserts or replaces a contact. Test seeding helper.
func (r *MemoryRepo) Put(c Contact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = r.clock()
	}
	cp := c
	r.rows[c.ID] = &cp
}

// Snapshot returns a copy of a row for assertions.
func (r *MemoryRepo) Snapshot(id string) (Contact, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return Contact{}, false
	}
	return *c, true
}

func matchesBase(c *Contact, agentID, tag string) bool {
	if c.AgentID != agentID {
		return false
	}
	if tag != "" && c.Tag != tag {
		return false
	}
	if c.DialStatus != DialStatusNotCalled {
		return false
	}
	if c.OnDNCList || c.Deleted {
		return false
	}
	return true
}

func (r *MemoryRepo) FindReservable(ctx context.Context, agentID, tag string, limit int) ([]Contact, error) {
	if agentID == "" || limit <= 0 {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Contact, 0, limit)
	for _, c := range r.rows {
		if c.Taken {
			continue
		}
		if matchesBase(c, agentID, tag) {
			out = append(out, *c)
		}
	}
	// Newest-first, matching the Postgres ORDER BY created_at DESC.
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) Reserve(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, id := range ids {
		c, ok := r.rows[id]
		if !ok || c.Taken || c.Deleted {
			continue
		}
		c.Taken = true
		c.UpdatedAt = r.clock()
		n++
	}
	return n, nil
}

func (r *MemoryRepo) Release(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, id := range ids {
		c, ok := r.rows[id]
		if !ok || !c.Taken {
			continue
		}
		c.Taken = false
		c.UpdatedAt = r.clock()
		n++
	}
	return n, nil
}

func (r *MemoryRepo) FindDialable(ctx context.Context, agentID, tag string, limit int) ([]Contact, error) {
	if agentID == "" || limit <= 0 {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Contact, 0, limit)
	for _, c := range r.rows {
		if !c.Taken {
			continue
		}
		if matchesBase(c, agentID, tag) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) CountDialable(ctx context.Context, agentID, tag string) (int, error) {
	if agentID == "" {
		return 0, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, c := range r.rows {
		if c.Taken && matchesBase(c, agentID, tag) {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) RecordCallPlaced(ctx context.Context, id, callID, jobID string) error {
	if id == "" || callID == "" || jobID == "" {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	c.LastCallID = callID
	c.JobIDs = append(c.JobIDs, jobID)
	c.DialStatus = DialStatusInProgress
	c.UpdatedAt = r.clock()
	return nil
}

func (r *MemoryRepo) SetDialStatus(ctx context.Context, id string, status DialStatus) error {
	if id == "" || !ValidDialStatus(status) {
		return ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return ErrNotFound
	}
	c.DialStatus = status
	c.UpdatedAt = r.clock()
	return nil
}

func (r *MemoryRepo) FindByID(ctx context.Context, id string) (*Contact, error) {
	if id == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryRepo) FindByCallID(ctx context.Context, callID string) (*Contact, error) {
	if callID == "" {
		return nil, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.rows {
		if c.LastCallID == callID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

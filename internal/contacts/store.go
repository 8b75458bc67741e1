package contacts

import (
	"context"
	"errors"
)

var (
	ErrNotFound        = errors.New("contacts: not found")
	ErrInvalidArgument = errors.New("contacts: invalid argument")
)

// Store abstracts contact persistence.
//
// Selection filter (shared by FindReservable and CountDialable):
// agent match, optional tag match, dial_status = not_called,
// on_dnc_list = false, deleted = false. FindReservable additionally requires
// taken = false; CountDialable requires taken = true (it sizes a batch that
// has already been reserved).
//
// Reserve and Release must be single bulk operations scoped to exactly the
// given id set; other processes share this store.
type Store interface {
	FindReservable(ctx context.Context, agentID, tag string, limit int) ([]Contact, error)
	Reserve(ctx context.Context, ids []string) (int, error)
	Release(ctx context.Context, ids []string) (int, error)

	CountDialable(ctx context.Context, agentID, tag string) (int, error)

	// FindDialable returns already-reserved contacts still waiting for their
	// first dial (taken = true filter). Recovery re-derives a job's batch from
	// this query rather than a stored id snapshot.
	FindDialable(ctx context.Context, agentID, tag string, limit int) ([]Contact, error)

	// RecordCallPlaced marks a successful dispatch: stores the dialer call id,
	// appends jobID to the contact's job history, and leaves Taken as-is.
	RecordCallPlaced(ctx context.Context, id, callID, jobID string) error

	SetDialStatus(ctx context.Context, id string, status DialStatus) error

	FindByID(ctx context.Context, id string) (*Contact, error)
	FindByCallID(ctx context.Context, callID string) (*Contact, error)
}

package contacts

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// PostgresRepo stores contacts in a single `contacts` table.
//
// Assumed schema:
//   id TEXT PRIMARY KEY, agent_id TEXT, phone_number TEXT,
//   first_name TEXT, last_name TEXT, email TEXT, address TEXT,
//   tag TEXT, dial_status TEXT, taken BOOL, on_dnc_list BOOL, deleted BOOL,
//   job_ids TEXT[] DEFAULT '{}', last_call_id TEXT,
//   created_at TIMESTAMPTZ, updated_at TIMESTAMPTZ
//
// All state flips are conditional bulk updates ("set X where Y still holds");
// the webhook ingester and concurrently recovered jobs share these rows, so
// read-modify-write in memory would lose updates.
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const contactColumns = `
id, agent_id, phone_number, first_name, last_name, email, address,
tag, dial_status, taken, on_dnc_list, deleted,
array_to_json(job_ids)::text, COALESCE(last_call_id, ''), created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (*Contact, error) {
	var c Contact
	var jobIDs string
	if err := row.Scan(
		&c.ID, &c.AgentID, &c.PhoneNumber, &c.FirstName, &c.LastName, &c.Email, &c.Address,
		&c.Tag, &c.DialStatus, &c.Taken, &c.OnDNCList, &c.Deleted,
		&jobIDs, &c.LastCallID, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if jobIDs != "" {
		if err := json.Unmarshal([]byte(jobIDs), &c.JobIDs); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func (r *PostgresRepo) FindReservable(ctx context.Context, agentID, tag string, limit int) ([]Contact, error) {
	if agentID == "" || limit <= 0 {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT ` + contactColumns + `
FROM contacts
WHERE agent_id = $1
  AND ($2 = '' OR tag = $2)
  AND dial_status = $3
  AND taken = FALSE
  AND on_dnc_list = FALSE
  AND deleted = FALSE
ORDER BY created_at DESC
LIMIT $4
`
	rows, err := r.db.QueryContext(ctx, q, agentID, tag, DialStatusNotCalled, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Contact, 0, limit)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Reserve(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrInvalidArgument
	}
	const q = `
UPDATE contacts
SET taken = TRUE, updated_at = $2
WHERE id = ANY($1) AND taken = FALSE AND deleted = FALSE
`
	res, err := r.db.ExecContext(ctx, q, ids, r.clock().UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *PostgresRepo) Release(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrInvalidArgument
	}
	const q = `
UPDATE contacts
SET taken = FALSE, updated_at = $2
WHERE id = ANY($1) AND taken = TRUE
`
	res, err := r.db.ExecContext(ctx, q, ids, r.clock().UTC())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *PostgresRepo) FindDialable(ctx context.Context, agentID, tag string, limit int) ([]Contact, error) {
	if agentID == "" || limit <= 0 {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT ` + contactColumns + `
FROM contacts
WHERE agent_id = $1
  AND ($2 = '' OR tag = $2)
  AND dial_status = $3
  AND taken = TRUE
  AND on_dnc_list = FALSE
  AND deleted = FALSE
ORDER BY created_at DESC
LIMIT $4
`
	rows, err := r.db.QueryContext(ctx, q, agentID, tag, DialStatusNotCalled, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Contact, 0, limit)
	for rows.Next() {
		c, err := scanContact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) CountDialable(ctx context.Context, agentID, tag string) (int, error) {
	if agentID == "" {
		return 0, ErrInvalidArgument
	}
	const q = `
SELECT COUNT(*)
FROM contacts
WHERE agent_id = $1
  AND ($2 = '' OR tag = $2)
  AND dial_status = $3
  AND taken = TRUE
  AND on_dnc_list = FALSE
  AND deleted = FALSE
`
	var n int
	if err := r.db.QueryRowContext(ctx, q, agentID, tag, DialStatusNotCalled).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (r *PostgresRepo) RecordCallPlaced(ctx context.Context, id, callID, jobID string) error {
	if id == "" || callID == "" || jobID == "" {
		return ErrInvalidArgument
	}
	const q = `
UPDATE contacts
SET last_call_id = $2,
    job_ids = array_append(job_ids, $3),
    dial_status = $4,
    updated_at = $5
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, callID, jobID, DialStatusInProgress, r.clock().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) SetDialStatus(ctx context.Context, id string, status DialStatus) error {
	if id == "" || !ValidDialStatus(status) {
		return ErrInvalidArgument
	}
	const q = `
UPDATE contacts
SET dial_status = $2, updated_at = $3
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, status, r.clock().UTC())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) FindByID(ctx context.Context, id string) (*Contact, error) {
	if id == "" {
		return nil, ErrInvalidArgument
	}
	const q = `SELECT ` + contactColumns + ` FROM contacts WHERE id = $1`
	return scanContact(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) FindByCallID(ctx context.Context, callID string) (*Contact, error) {
	if callID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `SELECT ` + contactColumns + ` FROM contacts WHERE last_call_id = $1`
	return scanContact(r.db.QueryRowContext(ctx, q, callID))
}

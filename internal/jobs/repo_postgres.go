package jobs

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresRepo stores jobs in a single `jobs` table.
//
// Assumed schema:
//   id TEXT PRIMARY KEY, agent_id TEXT, status TEXT,
//   scheduled_at TIMESTAMPTZ, should_continue BOOL,
//   tag TEXT, contact_limit INT, from_number TEXT,
//   processed_contacts INT, total_to_process INT, completed_percent DOUBLE PRECISION,
//   created_at TIMESTAMPTZ, updated_at TIMESTAMPTZ
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

const jobColumns = `
id, agent_id, status, scheduled_at, should_continue,
COALESCE(tag, ''), contact_limit, from_number,
processed_contacts, total_to_process, completed_percent, created_at, updated_at`

func scanJob(row interface{ Scan(...any) error }) (*Job, error) {
	var j Job
	if err := row.Scan(
		&j.ID, &j.AgentID, &j.Status, &j.ScheduledAt, &j.ShouldContinue,
		&j.Tag, &j.Limit, &j.FromNumber,
		&j.ProcessedContacts, &j.TotalToProcess, &j.CompletedPercent, &j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

func (r *PostgresRepo) Create(ctx context.Context, j Job) (Job, error) {
	if j.ID == "" || j.AgentID == "" {
		return Job{}, ErrInvalidArgument
	}
	now := r.clock().UTC()
	if j.CreatedAt.IsZero() {
		j.CreatedAt = now
	}
	j.UpdatedAt = now

	const q = `
INSERT INTO jobs (
  id, agent_id, status, scheduled_at, should_continue,
  tag, contact_limit, from_number,
  processed_contacts, total_to_process, completed_percent, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`
	_, err := r.db.ExecContext(ctx, q,
		j.ID, j.AgentID, j.Status, j.ScheduledAt, j.ShouldContinue,
		j.Tag, j.Limit, j.FromNumber,
		j.ProcessedContacts, j.TotalToProcess, j.CompletedPercent, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		return Job{}, err
	}
	return j, nil
}

func (r *PostgresRepo) FindByID(ctx context.Context, id string) (*Job, error) {
	if id == "" {
		return nil, ErrInvalidArgument
	}
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	return scanJob(r.db.QueryRowContext(ctx, q, id))
}

func (r *PostgresRepo) FindActiveByAgent(ctx context.Context, agentID string) (*Job, error) {
	if agentID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT ` + jobColumns + `
FROM jobs
WHERE agent_id = $1
  AND status IN ($2, $3)
  AND should_continue = TRUE
ORDER BY created_at DESC
LIMIT 1
`
	j, err := scanJob(r.db.QueryRowContext(ctx, q, agentID, StatusQueued, StatusOnCall))
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return j, err
}

func (r *PostgresRepo) SetStatus(ctx context.Context, id string, from, to Status) (int64, error) {
	if id == "" || !ValidStatus(from) || !ValidStatus(to) {
		return 0, ErrInvalidArgument
	}
	const q = `
UPDATE jobs
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2
`
	res, err := r.db.ExecContext(ctx, q, id, from, to, r.clock().UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepo) SetContinuation(ctx context.Context, id string, cont bool) error {
	if id == "" {
		return ErrInvalidArgument
	}
	// One-way flag: a stopped job is never resurrected.
	const q = `
UPDATE jobs
SET should_continue = $2, updated_at = $3
WHERE id = $1 AND ($2 = FALSE OR should_continue = TRUE)
`
	res, err := r.db.ExecContext(ctx, q, id, cont, r.clock().UTC())
	if err != nil {
		return err
	}
	if _, err := res.RowsAffected(); err != nil {
		return err
	}
	return nil
}

func (r *PostgresRepo) SetTotalToProcess(ctx context.Context, id string, total int) error {
	if id == "" || total < 0 {
		return ErrInvalidArgument
	}
	const q = `
UPDATE jobs
SET total_to_process = $2, updated_at = $3
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, total, r.clock().UTC())
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

func (r *PostgresRepo) IncrementProgress(ctx context.Context, id string, delta, total int) error {
	if id == "" || delta <= 0 || total <= 0 {
		return ErrInvalidArgument
	}
	// Percent is derived in the same statement so count and percent can never
	// be observed out of sync.
	const q = `
UPDATE jobs
SET processed_contacts = processed_contacts + $2,
    completed_percent = (processed_contacts + $2)::double precision / $3 * 100,
    updated_at = $4
WHERE id = $1
`
	res, err := r.db.ExecContext(ctx, q, id, delta, total, r.clock().UTC())
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

func (r *PostgresRepo) ListRecoverable(ctx context.Context, now time.Time) ([]Job, error) {
	const q = `
SELECT ` + jobColumns + `
FROM jobs
WHERE status = $1 AND should_continue = TRUE AND scheduled_at > $2
ORDER BY scheduled_at ASC
`
	rows, err := r.db.QueryContext(ctx, q, StatusQueued, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *j)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Delete(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidArgument
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = $1`, id)
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

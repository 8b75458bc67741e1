package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to the audit_events table. INSERT-only; there are no
// update or delete paths.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, agent_id, job_id, ip_address, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.Type, e.AgentID, e.JobID, e.IPAddress, e.Message, e.Metadata, e.CreatedAt)
	return err
}

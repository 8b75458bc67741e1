package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// PostgresRepo stores per-day stats in a `day_stats` table.
//
// Assumed schema (counters must never be NULL; Increment's `x = x + $4`
// and Get's int scan both rely on that):
//   day TEXT, agent_id TEXT, job_id TEXT,
//   total_calls INT NOT NULL DEFAULT 0, answered INT NOT NULL DEFAULT 0,
//   voicemail INT NOT NULL DEFAULT 0, ivr INT NOT NULL DEFAULT 0,
//   failed INT NOT NULL DEFAULT 0, transferred INT NOT NULL DEFAULT 0,
//   no_answer INT NOT NULL DEFAULT 0, inactivity INT NOT NULL DEFAULT 0,
//   scheduled INT NOT NULL DEFAULT 0,
//   updated_at TIMESTAMPTZ,
//   PRIMARY KEY (day, agent_id, job_id)
type PostgresRepo struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, clock: time.Now}
}

func (r *PostgresRepo) EnsureDay(ctx context.Context, day, agentID, jobID string) error {
	if day == "" || agentID == "" || jobID == "" {
		return ErrInvalidArgument
	}
	// Zeroes written explicitly so the row is well-formed even on a schema
	// without column defaults.
	const q = `
INSERT INTO day_stats (
  day, agent_id, job_id,
  total_calls, answered, voicemail, ivr, failed,
  transferred, no_answer, inactivity, scheduled, updated_at
)
VALUES ($1, $2, $3, 0, 0, 0, 0, 0, 0, 0, 0, 0, $4)
ON CONFLICT (day, agent_id, job_id) DO NOTHING
`
	_, err := r.db.ExecContext(ctx, q, day, agentID, jobID, r.clock().UTC())
	return err
}

func (r *PostgresRepo) Increment(ctx context.Context, day, agentID, jobID string, counter Counter, delta int) error {
	if day == "" || agentID == "" || jobID == "" || delta == 0 || !ValidCounter(counter) {
		return ErrInvalidArgument
	}
	// counter is validated against the closed Counter set above, so the
	// column name interpolation cannot carry user input.
	q := fmt.Sprintf(`
INSERT INTO day_stats (day, agent_id, job_id, %[1]s, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (day, agent_id, job_id)
DO UPDATE SET %[1]s = day_stats.%[1]s + $4, updated_at = $5
`, string(counter))
	_, err := r.db.ExecContext(ctx, q, day, agentID, jobID, delta, r.clock().UTC())
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, day, agentID, jobID string) (*DayStats, error) {
	if day == "" || agentID == "" || jobID == "" {
		return nil, ErrInvalidArgument
	}
	const q = `
SELECT day, agent_id, job_id,
       total_calls, answered, voicemail, ivr, failed,
       transferred, no_answer, inactivity, scheduled, updated_at
FROM day_stats
WHERE day = $1 AND agent_id = $2 AND job_id = $3
`
	var s DayStats
	err := r.db.QueryRowContext(ctx, q, day, agentID, jobID).Scan(
		&s.Day, &s.AgentID, &s.JobID,
		&s.TotalCalls, &s.Answered, &s.Voicemail, &s.IVR, &s.Failed,
		&s.Transferred, &s.NoAnswer, &s.Inactivity, &s.Scheduled, &s.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

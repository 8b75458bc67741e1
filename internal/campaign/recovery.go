package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campaign-dialer/internal/audit"
	"campaign-dialer/internal/contacts"
	"campaign-dialer/internal/jobs"
)

// Recovery re-runs jobs that were queued with a reserved batch when the
// process died. It re-derives each job's batch from the taken-contact filter
// instead of a stored snapshot; contacts that were already dialed have left
// the not_called status and drop out of the query, so nothing is dispatched
// twice.
//
// Only queued jobs whose scheduled time is still ahead are picked up. A job
// that was mid-run (on_call) stays where it is; its undialed contacts remain
// reserved until operator action.
type Recovery struct {
	contacts contacts.Store
	jobs     jobs.Store
	exec     *Executor
	audit    *audit.Service
	log      *slog.Logger

	clock func() time.Time
}

func NewRecovery(cs contacts.Store, js jobs.Store, exec *Executor, log *slog.Logger) *Recovery {
	if log == nil {
		log = slog.Default()
	}
	return &Recovery{contacts: cs, jobs: js, exec: exec, log: log, clock: time.Now}
}

// WithAudit enables best-effort audit records for resumed jobs.
func (r *Recovery) WithAudit(a *audit.Service) *Recovery {
	r.audit = a
	return r
}

// RecoverPendingJobs runs every recoverable job to completion, one at a time,
// immediately: the original schedule instants are gone with the dead process,
// so the jobs run now rather than re-arming timers.
func (r *Recovery) RecoverPendingJobs(ctx context.Context) error {
	pending, err := r.jobs.ListRecoverable(ctx, r.clock())
	if err != nil {
		return fmt.Errorf("recovery: list jobs: %w", err)
	}
	if len(pending) == 0 {
		r.log.Info("recovery: no pending jobs")
		return nil
	}
	r.log.Info("recovery: resuming pending jobs", "count", len(pending))

	for _, job := range pending {
		batch, err := r.contacts.FindDialable(ctx, job.AgentID, job.Tag, job.Limit)
		if err != nil {
			r.log.Error("recovery: batch lookup failed", "job_id", job.ID, "err", err)
			continue
		}
		if len(batch) == 0 {
			r.log.Warn("recovery: no reserved contacts remain, skipping", "job_id", job.ID)
			continue
		}

		in := RunInput{
			JobID:      job.ID,
			AgentID:    job.AgentID,
			FromNumber: job.FromNumber,
			Tag:        job.Tag,
			Contacts:   batch,
		}
		if r.audit != nil {
			if aerr := r.audit.LogJobRecovered(ctx, job.AgentID, job.ID); aerr != nil {
				r.log.Error("recovery: audit append failed", "job_id", job.ID, "err", aerr)
			}
		}
		if err := r.exec.Run(ctx, in); err != nil {
			r.log.Error("recovery: job run failed", "job_id", job.ID, "err", err)
		}
	}
	return nil
}

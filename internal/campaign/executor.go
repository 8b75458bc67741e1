package campaign

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"campaign-dialer/internal/contacts"
	"campaign-dialer/internal/dialer"
	"campaign-dialer/internal/jobs"
)

// Executor drives one job's dispatch loop.
//
// State machine: queued -> on_call -> {called, canceled}. Within one run the
// loop is strictly sequential, one dial at a time: the dialer has a
// throughput ceiling and the progress math assumes a single writer per job.
//
// Cancellation and cutoff are polled at the top of each iteration; they are
// cooperative checkpoints, not preemption. A cancellation requested while one
// contact is mid-dial takes effect before the next contact, never sooner.
type Executor struct {
	contacts contacts.Store
	jobs     jobs.Store
	dialer   dialer.Dialer
	log      *slog.Logger

	loc          *time.Location
	cutoffHour   int
	cutoffMinute int

	dispatchDelay time.Duration

	// clock and sleep are injectable for deterministic tests.
	clock func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// ExecutorConfig carries the wall-clock policy for the dispatch loop.
type ExecutorConfig struct {
	Location      *time.Location
	CutoffHour    int
	CutoffMinute  int
	DispatchDelay time.Duration
}

func NewExecutor(cs contacts.Store, js jobs.Store, d dialer.Dialer, cfg ExecutorConfig, log *slog.Logger) *Executor {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DispatchDelay <= 0 {
		cfg.DispatchDelay = 3 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Executor{
		contacts:      cs,
		jobs:          js,
		dialer:        d,
		log:           log,
		loc:           cfg.Location,
		cutoffHour:    cfg.CutoffHour,
		cutoffMinute:  cfg.CutoffMinute,
		dispatchDelay: cfg.DispatchDelay,
		clock:         time.Now,
		sleep:         sleepCtx,
	}
}

// RunInput is everything the loop needs for one job. Contacts are dialed in
// the order given (the order they were reserved).
type RunInput struct {
	JobID      string
	AgentID    string
	FromNumber string
	Tag        string
	Contacts   []contacts.Contact
}

// Run executes the dispatch loop to a terminal state. The returned error is
// always a fatal consistency violation; per-contact failures are soft and
// only logged. Callers run this in the background and log the error — there
// is no retry, recovery resumes from persisted state at next startup.
func (e *Executor) Run(ctx context.Context, in RunInput) error {
	log := e.log.With("job_id", in.JobID, "agent_id", in.AgentID)

	n, err := e.jobs.SetStatus(ctx, in.JobID, jobs.StatusQueued, jobs.StatusOnCall)
	if err != nil {
		return fmt.Errorf("job %s: queued->on_call: %w", in.JobID, err)
	}
	if n != 1 {
		// Someone else moved the job; persisted state no longer matches our
		// assumptions, so stop before any dial.
		return fmt.Errorf("job %s: queued->on_call affected %d rows", in.JobID, n)
	}

	// Recompute the batch size from the store, not the reservation snapshot:
	// the webhook ingester may have mutated dial_status during the gap between
	// reservation and execution.
	total, err := e.contacts.CountDialable(ctx, in.AgentID, in.Tag)
	if err != nil {
		return fmt.Errorf("job %s: count dialable: %w", in.JobID, err)
	}
	if err := e.jobs.SetTotalToProcess(ctx, in.JobID, total); err != nil {
		return fmt.Errorf("job %s: set total: %w", in.JobID, err)
	}
	log.Info("job started", "total_to_process", total, "reserved", len(in.Contacts))

	for i := range in.Contacts {
		c := in.Contacts[i]

		job, err := e.jobs.FindByID(ctx, in.JobID)
		if err != nil {
			return fmt.Errorf("job %s: refetch: %w", in.JobID, err)
		}

		if !job.ShouldContinue {
			released := e.releaseRemaining(ctx, log, in.Contacts[i:])
			log.Info("job stopped by cancellation", "dispatched", i, "released", released)
			return nil
		}

		if e.pastCutoff() {
			// Cutoff cancels the job and frees the tail, but the contact
			// already in hand still gets dialed; the loop exits on the next
			// iteration's continuation check.
			if _, serr := e.jobs.SetStatus(ctx, in.JobID, jobs.StatusOnCall, jobs.StatusCanceled); serr != nil {
				log.Error("cutoff: status update failed", "err", serr)
			}
			if serr := e.jobs.SetContinuation(ctx, in.JobID, false); serr != nil {
				log.Error("cutoff: continuation update failed", "err", serr)
			}
			released := e.releaseRemaining(ctx, log, in.Contacts[i:])
			log.Warn("daily cutoff reached, job canceled", "dispatched", i, "released", released)
		}

		e.dispatch(ctx, log, in, c)

		if total > 0 {
			if perr := e.jobs.IncrementProgress(ctx, in.JobID, 1, total); perr != nil {
				log.Error("progress update failed", "contact_id", c.ID, "err", perr)
			}
		}

		if i < len(in.Contacts)-1 {
			e.sleep(ctx, e.dispatchDelay)
			if ctx.Err() != nil {
				log.Warn("run context canceled", "dispatched", i+1)
				return nil
			}
		}
	}

	// Clean exhaustion. The conditional transition keeps a cutoff-canceled
	// job canceled when the cutoff hit on the final contact.
	n, err = e.jobs.SetStatus(ctx, in.JobID, jobs.StatusOnCall, jobs.StatusCalled)
	if err != nil {
		return fmt.Errorf("job %s: on_call->called: %w", in.JobID, err)
	}
	if n == 1 {
		if err := e.jobs.SetContinuation(ctx, in.JobID, false); err != nil {
			log.Error("completion: continuation update failed", "err", err)
		}
		log.Info("job completed", "dispatched", len(in.Contacts))
	}
	return nil
}

// dispatch places one call. Every failure here is soft: logged, and the loop
// moves on to the next contact.
func (e *Executor) dispatch(ctx context.Context, log *slog.Logger, in RunInput, c contacts.Contact) {
	to := dialer.NormalizePhone(c.PhoneNumber)
	if to == "" {
		log.Error("dispatch skipped: unusable phone number", "contact_id", c.ID)
		return
	}

	vars := dialer.DynamicVars{
		"first_name": c.FirstName,
		"last_name":  c.LastName,
		"email":      c.Email,
		"address":    c.Address,
		"job_id":     in.JobID,
	}

	if _, err := e.dialer.RegisterCall(ctx, dialer.RegisterCallRequest{
		AgentID:    in.AgentID,
		FromNumber: in.FromNumber,
		ToNumber:   to,
		Vars:       vars,
	}); err != nil {
		log.Error("register call failed", "contact_id", c.ID, "err", err)
		return
	}

	res, err := e.dialer.PlaceCall(ctx, dialer.PlaceCallRequest{
		FromNumber:      in.FromNumber,
		ToNumber:        to,
		OverrideAgentID: in.AgentID,
		Vars:            vars,
	})
	if err != nil {
		log.Error("place call failed", "contact_id", c.ID, "err", err)
		return
	}

	if err := e.contacts.RecordCallPlaced(ctx, c.ID, res.CallID, in.JobID); err != nil {
		log.Error("record call failed", "contact_id", c.ID, "call_id", res.CallID, "err", err)
	}
}

// releaseRemaining frees the undialed tail of the batch in one bulk update
// scoped to exactly those ids.
func (e *Executor) releaseRemaining(ctx context.Context, log *slog.Logger, tail []contacts.Contact) int {
	if len(tail) == 0 {
		return 0
	}
	ids := make([]string, len(tail))
	for i, c := range tail {
		ids[i] = c.ID
	}
	n, err := e.contacts.Release(ctx, ids)
	if err != nil {
		log.Error("release failed", "count", len(ids), "err", err)
		return 0
	}
	return n
}

func (e *Executor) pastCutoff() bool {
	now := e.clock().In(e.loc)
	cutoff := time.Date(now.Year(), now.Month(), now.Day(), e.cutoffHour, e.cutoffMinute, 0, 0, e.loc)
	return !now.Before(cutoff)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

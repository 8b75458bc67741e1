package campaign

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"campaign-dialer/internal/contacts"
	"campaign-dialer/internal/jobs"
	"campaign-dialer/internal/stats"
)

var (
	// ErrNoContacts means the selection filter matched nothing; no job row is
	// created in that case.
	ErrNoContacts = errors.New("campaign: no contacts match the selection")

	ErrInvalidRequest = errors.New("campaign: invalid schedule request")
	ErrJobNotFound    = errors.New("campaign: job not found")
)

// Scheduler owns job creation, contact reservation and the in-process timer
// registry that fires executors at their scheduled instant.
//
// The registry is instance state, not process-global: each armed job carries
// its own timer and reserved batch, and Stop drains them all. After a crash
// the registry is empty; Recovery rebuilds pending work from the stores.
type Scheduler struct {
	contacts contacts.Store
	jobs     jobs.Store
	stats    stats.Store
	exec     *Executor
	locker   AgentLocker
	log      *slog.Logger

	loc   *time.Location
	clock func() time.Time

	mu    sync.Mutex
	armed map[string]*armedJob
	wg    sync.WaitGroup
}

type armedJob struct {
	timer    *time.Timer
	job      jobs.Job
	contacts []contacts.Contact
}

func NewScheduler(cs contacts.Store, js jobs.Store, ss stats.Store, exec *Executor, locker AgentLocker, loc *time.Location, log *slog.Logger) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	if locker == nil {
		locker = NewMemoryAgentLocker()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		contacts: cs,
		jobs:     js,
		stats:    ss,
		exec:     exec,
		locker:   locker,
		log:      log,
		loc:      loc,
		clock:    time.Now,
		armed:    map[string]*armedJob{},
	}
}

// ScheduleRequest describes one campaign batch.
type ScheduleRequest struct {
	AgentID    string
	At         time.Time
	Limit      int
	FromNumber string
	Tag        string
}

// ScheduleResult reports either a newly armed job or, when the agent already
// has an active one, that job's id with AlreadyRunning set. A conflict is a
// normal outcome, not an error.
type ScheduleResult struct {
	JobID          string
	ScheduledAt    time.Time
	Reserved       int
	AlreadyRunning bool
}

// Schedule validates, guards against a concurrent active job for the agent,
// creates the job row, reserves its contact batch and arms the dispatch timer.
// The reservation and job row roll back together when either half fails.
func (s *Scheduler) Schedule(ctx context.Context, req ScheduleRequest) (ScheduleResult, error) {
	req.AgentID = strings.TrimSpace(req.AgentID)
	req.FromNumber = strings.TrimSpace(req.FromNumber)
	req.Tag = strings.ToLower(strings.TrimSpace(req.Tag))

	if req.AgentID == "" || req.FromNumber == "" {
		return ScheduleResult{}, fmt.Errorf("%w: agent_id and from_number are required", ErrInvalidRequest)
	}
	if req.Limit <= 0 {
		return ScheduleResult{}, fmt.Errorf("%w: limit must be positive", ErrInvalidRequest)
	}
	at := req.At.In(s.loc)
	now := s.clock()
	if !at.After(now) {
		return ScheduleResult{}, fmt.Errorf("%w: scheduled_at must be in the future", ErrInvalidRequest)
	}

	release, ok, err := s.locker.Acquire(ctx, req.AgentID)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("schedule lock: %w", err)
	}
	if !ok {
		// Another schedule call for this agent is mid-flight. Surface the
		// agent's active job when one exists so the caller has an id to poll;
		// the id stays empty only in the narrow window before the competing
		// call commits its row.
		if active, aerr := s.jobs.FindActiveByAgent(ctx, req.AgentID); aerr == nil && active != nil {
			return ScheduleResult{
				JobID:          active.ID,
				ScheduledAt:    active.ScheduledAt,
				AlreadyRunning: true,
			}, nil
		}
		return ScheduleResult{AlreadyRunning: true}, nil
	}
	defer release()

	// The guard is scoped to the agent alone, not (agent, tag): one agent never
	// dials two batches at once regardless of segment.
	if active, err := s.jobs.FindActiveByAgent(ctx, req.AgentID); err != nil {
		return ScheduleResult{}, fmt.Errorf("active job lookup: %w", err)
	} else if active != nil {
		return ScheduleResult{
			JobID:          active.ID,
			ScheduledAt:    active.ScheduledAt,
			AlreadyRunning: true,
		}, nil
	}

	batch, err := s.contacts.FindReservable(ctx, req.AgentID, req.Tag, req.Limit)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("find reservable: %w", err)
	}
	if len(batch) == 0 {
		return ScheduleResult{}, ErrNoContacts
	}

	job, err := s.jobs.Create(ctx, jobs.Job{
		ID:             uuid.NewString(),
		AgentID:        req.AgentID,
		Status:         jobs.StatusQueued,
		ScheduledAt:    at,
		ShouldContinue: true,
		Tag:            req.Tag,
		Limit:          req.Limit,
		FromNumber:     req.FromNumber,
	})
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("create job: %w", err)
	}

	if err := s.stats.EnsureDay(ctx, stats.DayKey(at), req.AgentID, job.ID); err != nil {
		s.log.Error("stats row create failed", "job_id", job.ID, "err", err)
	}

	ids := make([]string, len(batch))
	for i, c := range batch {
		ids[i] = c.ID
	}
	reserved, err := s.contacts.Reserve(ctx, ids)
	if err != nil {
		s.rollback(ctx, job.ID, ids)
		return ScheduleResult{}, fmt.Errorf("reserve contacts: %w", err)
	}
	if reserved == 0 {
		// The whole batch was grabbed between selection and reservation.
		s.rollback(ctx, job.ID, nil)
		return ScheduleResult{}, ErrNoContacts
	}

	s.arm(job, batch)
	s.log.Info("job scheduled",
		"job_id", job.ID, "agent_id", req.AgentID,
		"scheduled_at", at, "reserved", reserved, "tag", req.Tag)

	return ScheduleResult{JobID: job.ID, ScheduledAt: at, Reserved: reserved}, nil
}

func (s *Scheduler) rollback(ctx context.Context, jobID string, ids []string) {
	if len(ids) > 0 {
		if _, err := s.contacts.Release(ctx, ids); err != nil {
			s.log.Error("rollback release failed", "job_id", jobID, "err", err)
		}
	}
	if err := s.jobs.Delete(ctx, jobID); err != nil {
		s.log.Error("rollback delete failed", "job_id", jobID, "err", err)
	}
}

// arm registers a one-shot timer that fires the executor at the job's
// scheduled instant. Firing removes the entry before running so Cancel can no
// longer stop it; from then on cancellation is the executor's cooperative
// check.
func (s *Scheduler) arm(job jobs.Job, batch []contacts.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := &armedJob{job: job, contacts: batch}
	delay := job.ScheduledAt.Sub(s.clock())
	if delay < 0 {
		delay = 0
	}
	a.timer = time.AfterFunc(delay, func() { s.fire(job.ID) })
	s.armed[job.ID] = a
}

func (s *Scheduler) fire(jobID string) {
	s.mu.Lock()
	a, ok := s.armed[jobID]
	if ok {
		delete(s.armed, jobID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		in := RunInput{
			JobID:      a.job.ID,
			AgentID:    a.job.AgentID,
			FromNumber: a.job.FromNumber,
			Tag:        a.job.Tag,
			Contacts:   a.contacts,
		}
		if err := s.exec.Run(context.Background(), in); err != nil {
			s.log.Error("job run failed", "job_id", a.job.ID, "err", err)
		}
	}()
}

// Cancel flips the job's continuation flag off and marks it canceled. For a
// job still waiting on its timer the reserved batch is released here; a
// running job's executor releases its own tail at the next checkpoint.
func (s *Scheduler) Cancel(ctx context.Context, jobID string) error {
	job, err := s.jobs.FindByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			return ErrJobNotFound
		}
		return fmt.Errorf("cancel: %w", err)
	}

	// called and canceled are terminal; a finished job never transitions
	// again, so a late cancel is a no-op.
	if job.Status != jobs.StatusQueued && job.Status != jobs.StatusOnCall {
		s.log.Info("cancel ignored: job already finished", "job_id", jobID, "status", job.Status)
		return nil
	}

	if err := s.jobs.SetContinuation(ctx, jobID, false); err != nil {
		return fmt.Errorf("cancel continuation: %w", err)
	}
	if _, err := s.jobs.SetStatus(ctx, jobID, job.Status, jobs.StatusCanceled); err != nil {
		return fmt.Errorf("cancel status: %w", err)
	}

	s.mu.Lock()
	a, armed := s.armed[jobID]
	if armed {
		a.timer.Stop()
		delete(s.armed, jobID)
	}
	s.mu.Unlock()

	switch {
	case armed:
		ids := make([]string, len(a.contacts))
		for i, c := range a.contacts {
			ids[i] = c.ID
		}
		released, rerr := s.contacts.Release(ctx, ids)
		if rerr != nil {
			s.log.Error("cancel release failed", "job_id", jobID, "err", rerr)
		}
		s.log.Info("queued job canceled", "job_id", jobID, "released", released)
	case job.Status == jobs.StatusQueued:
		// Queued with no timer: reserved by a process that died before the
		// timer fired. The batch is still taken, so re-derive it the way
		// recovery does and free it; otherwise those contacts stay reserved
		// forever.
		batch, berr := s.contacts.FindDialable(ctx, job.AgentID, job.Tag, job.Limit)
		if berr != nil {
			s.log.Error("cancel batch lookup failed", "job_id", jobID, "err", berr)
			break
		}
		if len(batch) > 0 {
			ids := make([]string, len(batch))
			for i, c := range batch {
				ids[i] = c.ID
			}
			released, rerr := s.contacts.Release(ctx, ids)
			if rerr != nil {
				s.log.Error("cancel release failed", "job_id", jobID, "err", rerr)
			}
			s.log.Info("orphaned queued job canceled", "job_id", jobID, "released", released)
		}
	default:
		// Running; the executor releases its own undialed tail at the next
		// continuation checkpoint.
		s.log.Info("job cancellation requested", "job_id", jobID, "status", job.Status)
	}
	return nil
}

// Armed reports whether a job still has a pending timer. Test hook.
func (s *Scheduler) Armed(jobID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.armed[jobID]
	return ok
}

// Stop halts all pending timers and waits for in-flight executor runs to
// return. Queued jobs stay queued in the store; recovery picks them up on the
// next boot.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for id, a := range s.armed {
		a.timer.Stop()
		delete(s.armed, id)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

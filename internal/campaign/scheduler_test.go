package campaign

import (
	"context"
	"errors"
	"testing"
	"time"

	"campaign-dialer/internal/contacts"
	"campaign-dialer/internal/jobs"
	"campaign-dialer/internal/stats"
)

func newTestScheduler(t *testing.T, cs *contacts.MemoryRepo, js *jobs.MemoryRepo, d *fakeDialer, now time.Time) (*Scheduler, *stats.MemoryRepo) {
	t.Helper()
	loc := laLoc(t)
	ss := stats.NewMemoryRepo()
	e := newTestExecutor(cs, js, d, loc, now)
	s := NewScheduler(cs, js, ss, e, NewMemoryAgentLocker(), loc, nil)
	s.clock = func() time.Time { return now }
	return s, ss
}

func reservable(repo *contacts.MemoryRepo, id, agentID, phone, tag string, createdAt time.Time) {
	repo.Put(contacts.Contact{
		ID:          id,
		AgentID:     agentID,
		PhoneNumber: phone,
		Tag:         tag,
		DialStatus:  contacts.DialStatusNotCalled,
		CreatedAt:   createdAt,
	})
}

func TestScheduleValidation(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	now := morning(laLoc(t))
	s, _ := newTestScheduler(t, cs, js, newFakeDialer(), now)

	cases := []struct {
		name string
		req  ScheduleRequest
	}{
		{"missing agent", ScheduleRequest{At: now.Add(time.Hour), Limit: 5, FromNumber: "+15550000000"}},
		{"missing from number", ScheduleRequest{AgentID: "a", At: now.Add(time.Hour), Limit: 5}},
		{"zero limit", ScheduleRequest{AgentID: "a", At: now.Add(time.Hour), FromNumber: "+15550000000"}},
		{"past instant", ScheduleRequest{AgentID: "a", At: now.Add(-time.Minute), Limit: 5, FromNumber: "+15550000000"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := s.Schedule(context.Background(), tc.req)
			if !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestScheduleNoContactsLeavesNoJob(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	now := morning(laLoc(t))
	s, _ := newTestScheduler(t, cs, js, newFakeDialer(), now)

	_, err := s.Schedule(context.Background(), ScheduleRequest{
		AgentID: "agent-1", At: now.Add(time.Hour), Limit: 5, FromNumber: "+15550000000",
	})
	if !errors.Is(err, ErrNoContacts) {
		t.Fatalf("err = %v, want ErrNoContacts", err)
	}
	if active, _ := js.FindActiveByAgent(context.Background(), "agent-1"); active != nil {
		t.Fatalf("job row %s left behind after empty selection", active.ID)
	}
}

func TestScheduleReservesBatchAndArmsTimer(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	now := morning(laLoc(t))
	s, ss := newTestScheduler(t, cs, js, newFakeDialer(), now)

	reservable(cs, "c1", "agent-1", "4155550001", "warm", now)
	reservable(cs, "c2", "agent-1", "4155550002", "warm", now.Add(time.Minute))
	reservable(cs, "c3", "agent-1", "4155550003", "cold", now.Add(2*time.Minute))
	reservable(cs, "c4", "agent-2", "4155550004", "warm", now)

	res, err := s.Schedule(context.Background(), ScheduleRequest{
		AgentID: "agent-1", At: now.Add(time.Hour), Limit: 10,
		FromNumber: "+15550000000", Tag: "  WARM ",
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if res.AlreadyRunning {
		t.Fatal("fresh schedule reported already running")
	}
	if res.Reserved != 2 {
		t.Fatalf("reserved = %d, want the 2 warm agent-1 contacts", res.Reserved)
	}
	if !s.Armed(res.JobID) {
		t.Fatal("job has no pending timer")
	}

	for id, wantTaken := range map[string]bool{"c1": true, "c2": true, "c3": false, "c4": false} {
		c, _ := cs.Snapshot(id)
		if c.Taken != wantTaken {
			t.Fatalf("contact %s taken = %v, want %v", id, c.Taken, wantTaken)
		}
	}

	job, ok := js.Snapshot(res.JobID)
	if !ok || job.Status != jobs.StatusQueued || !job.ShouldContinue {
		t.Fatalf("job state = %+v", job)
	}
	if job.Tag != "warm" {
		t.Fatalf("tag = %q, want normalized %q", job.Tag, "warm")
	}

	row, err := ss.Get(context.Background(), stats.DayKey(res.ScheduledAt), "agent-1", res.JobID)
	if err != nil || row == nil {
		t.Fatalf("stats row missing: %v", err)
	}
	if row.TotalCalls != 0 {
		t.Fatalf("stats row not zeroed: %+v", row)
	}

	s.Stop()
}

func TestScheduleConflictReturnsExistingJob(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	now := morning(laLoc(t))
	s, _ := newTestScheduler(t, cs, js, newFakeDialer(), now)

	reservable(cs, "c1", "agent-1", "4155550001", "", now)
	reservable(cs, "c2", "agent-1", "4155550002", "", now.Add(time.Minute))

	first, err := s.Schedule(context.Background(), ScheduleRequest{
		AgentID: "agent-1", At: now.Add(time.Hour), Limit: 1, FromNumber: "+15550000000",
	})
	if err != nil {
		t.Fatalf("first schedule: %v", err)
	}

	// Same agent, different tag: the guard is agent-scoped.
	second, err := s.Schedule(context.Background(), ScheduleRequest{
		AgentID: "agent-1", At: now.Add(2 * time.Hour), Limit: 1,
		FromNumber: "+15550000000", Tag: "other",
	})
	if err != nil {
		t.Fatalf("second schedule: %v", err)
	}
	if !second.AlreadyRunning || second.JobID != first.JobID {
		t.Fatalf("second = %+v, want AlreadyRunning with job %s", second, first.JobID)
	}
	if second.Reserved != 0 {
		t.Fatalf("conflicting schedule reserved %d contacts", second.Reserved)
	}

	s.Stop()
}

func TestCancelQueuedJobReleasesBatch(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	now := morning(laLoc(t))
	s, _ := newTestScheduler(t, cs, js, newFakeDialer(), now)

	reservable(cs, "c1", "agent-1", "4155550001", "", now)
	reservable(cs, "c2", "agent-1", "4155550002", "", now.Add(time.Minute))

	res, err := s.Schedule(context.Background(), ScheduleRequest{
		AgentID: "agent-1", At: now.Add(time.Hour), Limit: 10, FromNumber: "+15550000000",
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if err := s.Cancel(context.Background(), res.JobID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if s.Armed(res.JobID) {
		t.Fatal("timer still armed after cancel")
	}

	job, _ := js.Snapshot(res.JobID)
	if job.Status != jobs.StatusCanceled || job.ShouldContinue {
		t.Fatalf("job after cancel = %+v", job)
	}
	for _, id := range []string{"c1", "c2"} {
		c, _ := cs.Snapshot(id)
		if c.Taken {
			t.Fatalf("contact %s still reserved after cancel", id)
		}
	}

	// The agent is free again.
	if active, _ := js.FindActiveByAgent(context.Background(), "agent-1"); active != nil {
		t.Fatalf("agent still reported active on job %s", active.ID)
	}
}

func TestCancelFinishedJobStaysTerminal(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	now := morning(laLoc(t))
	s, _ := newTestScheduler(t, cs, js, newFakeDialer(), now)

	for _, status := range []jobs.Status{jobs.StatusCalled, jobs.StatusCanceled} {
		id := "job-" + string(status)
		if _, err := js.Create(context.Background(), jobs.Job{
			ID: id, AgentID: "agent-1", Status: status,
			ShouldContinue: false, FromNumber: "+15550000000",
			ScheduledAt: now.Add(-time.Hour),
		}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}

		if err := s.Cancel(context.Background(), id); err != nil {
			t.Fatalf("Cancel(%s): %v", id, err)
		}
		job, _ := js.Snapshot(id)
		if job.Status != status {
			t.Fatalf("job %s transitioned %s -> %s after late cancel", id, status, job.Status)
		}
	}
}

func TestCancelOrphanedQueuedJobReleasesBatch(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	now := morning(laLoc(t))
	s, _ := newTestScheduler(t, cs, js, newFakeDialer(), now)

	// Reserved batch left behind by a dead process: taken contacts and a
	// queued job, but no armed timer in this scheduler instance.
	seedContact(cs, "c1", "agent-1", "4155550001", now)
	seedContact(cs, "c2", "agent-1", "4155550002", now.Add(time.Minute))
	if _, err := js.Create(context.Background(), jobs.Job{
		ID: "job-1", AgentID: "agent-1", Status: jobs.StatusQueued,
		ShouldContinue: true, Tag: "warm", Limit: 10,
		FromNumber: "+15550000000", ScheduledAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	if err := s.Cancel(context.Background(), "job-1"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	job, _ := js.Snapshot("job-1")
	if job.Status != jobs.StatusCanceled || job.ShouldContinue {
		t.Fatalf("job after cancel = %+v", job)
	}
	for _, id := range []string{"c1", "c2"} {
		c, _ := cs.Snapshot(id)
		if c.Taken {
			t.Fatalf("contact %s still reserved after cancel of unarmed queued job", id)
		}
	}
}

func TestScheduleLockContentionReturnsActiveJob(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	loc := laLoc(t)
	now := morning(loc)

	locker := NewMemoryAgentLocker()
	e := newTestExecutor(cs, js, newFakeDialer(), loc, now)
	s := NewScheduler(cs, js, stats.NewMemoryRepo(), e, locker, loc, nil)
	s.clock = func() time.Time { return now }

	if _, err := js.Create(context.Background(), jobs.Job{
		ID: "job-1", AgentID: "agent-1", Status: jobs.StatusQueued,
		ShouldContinue: true, FromNumber: "+15550000000",
		ScheduledAt: now.Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	// Hold the agent lock as a competing schedule call would.
	release, ok, err := locker.Acquire(context.Background(), "agent-1")
	if err != nil || !ok {
		t.Fatalf("acquire: ok=%v err=%v", ok, err)
	}
	defer release()

	res, err := s.Schedule(context.Background(), ScheduleRequest{
		AgentID: "agent-1", At: now.Add(time.Hour), Limit: 5, FromNumber: "+15550000000",
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	if !res.AlreadyRunning || res.JobID != "job-1" {
		t.Fatalf("contended schedule = %+v, want AlreadyRunning with job-1", res)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	s, _ := newTestScheduler(t, cs, js, newFakeDialer(), morning(laLoc(t)))

	if err := s.Cancel(context.Background(), "nope"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("err = %v, want ErrJobNotFound", err)
	}
}

func TestScheduleRunsToCompletionEndToEnd(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	d := newFakeDialer()
	loc := laLoc(t)
	fixed := morning(loc)

	ss := stats.NewMemoryRepo()
	e := newTestExecutor(cs, js, d, loc, fixed)
	s := NewScheduler(cs, js, ss, e, NewMemoryAgentLocker(), loc, nil)
	// Real clock here so the timer actually fires.

	now := time.Now()
	reservable(cs, "c1", "agent-1", "4155550001", "", now.Add(-2*time.Minute))
	reservable(cs, "c2", "agent-1", "4155550002", "", now.Add(-time.Minute))

	res, err := s.Schedule(context.Background(), ScheduleRequest{
		AgentID: "agent-1", At: now.Add(20 * time.Millisecond), Limit: 10,
		FromNumber: "+15550000000",
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		job, _ := js.Snapshot(res.JobID)
		if job.Status == jobs.StatusCalled {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never completed, status = %s", job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if n := len(d.placedNumbers()); n != 2 {
		t.Fatalf("placed %d calls, want 2", n)
	}
	job, _ := js.Snapshot(res.JobID)
	if job.CompletedPercent != 100 || job.ProcessedContacts != 2 {
		t.Fatalf("progress = %+v", job)
	}
}

func TestCancelDuringRunStopsRemainingDials(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	d := newFakeDialer()
	loc := laLoc(t)
	fixed := morning(loc)

	ss := stats.NewMemoryRepo()
	e := newTestExecutor(cs, js, d, loc, fixed)
	s := NewScheduler(cs, js, ss, e, NewMemoryAgentLocker(), loc, nil)

	now := time.Now()
	reservable(cs, "c1", "agent-1", "4155550001", "", now.Add(-2*time.Minute))
	reservable(cs, "c2", "agent-1", "4155550002", "", now.Add(-time.Minute))

	jobID := make(chan string, 1)
	d.afterPlace = func(string) {
		if err := s.Cancel(context.Background(), <-jobID); err != nil {
			t.Errorf("cancel mid-run: %v", err)
		}
	}

	res, err := s.Schedule(context.Background(), ScheduleRequest{
		AgentID: "agent-1", At: now.Add(20 * time.Millisecond), Limit: 10,
		FromNumber: "+15550000000",
	})
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}
	jobID <- res.JobID

	deadline := time.Now().Add(2 * time.Second)
	for {
		job, _ := js.Snapshot(res.JobID)
		if job.Status == jobs.StatusCanceled && !job.ShouldContinue {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("job never canceled, status = %s", job.Status)
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if n := len(d.placedNumbers()); n != 1 {
		t.Fatalf("placed %d calls after mid-run cancel, want 1", n)
	}
	c2, _ := cs.Snapshot("c2")
	if c2.Taken {
		t.Fatal("second contact still reserved after mid-run cancel")
	}
}

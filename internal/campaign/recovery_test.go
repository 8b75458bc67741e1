package campaign

import (
	"context"
	"testing"
	"time"

	"campaign-dialer/internal/contacts"
	"campaign-dialer/internal/jobs"
)

func TestRecoveryResumesQueuedJob(t *testing.T) {
	loc := laLoc(t)
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	d := newFakeDialer()

	base := morning(loc)
	seedContact(cs, "c1", "agent-1", "4155550001", base)
	seedContact(cs, "c2", "agent-1", "4155550002", base.Add(time.Minute))

	// A queued job with a future scheduled time, as left behind by a crash
	// between reservation and timer fire.
	if _, err := js.Create(context.Background(), jobs.Job{
		ID: "job-1", AgentID: "agent-1", Status: jobs.StatusQueued,
		ShouldContinue: true, Tag: "warm", Limit: 10,
		FromNumber: "+15550000000", ScheduledAt: base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	e := newTestExecutor(cs, js, d, loc, base)
	r := NewRecovery(cs, js, e, nil)
	r.clock = func() time.Time { return base }

	if err := r.RecoverPendingJobs(context.Background()); err != nil {
		t.Fatalf("RecoverPendingJobs: %v", err)
	}

	job, _ := js.Snapshot("job-1")
	if job.Status != jobs.StatusCalled {
		t.Fatalf("status = %s, want called", job.Status)
	}
	if n := len(d.placedNumbers()); n != 2 {
		t.Fatalf("placed %d calls, want 2", n)
	}
}

func TestRecoverySkipsAlreadyDialedContacts(t *testing.T) {
	loc := laLoc(t)
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	d := newFakeDialer()

	base := morning(loc)
	// c1 was dialed before the crash: in_progress drops it from the
	// taken-filter query, so recovery never dials it again.
	dialed := seedContact(cs, "c1", "agent-1", "4155550001", base)
	dialed.DialStatus = contacts.DialStatusInProgress
	dialed.LastCallID = "call-old"
	cs.Put(dialed)
	seedContact(cs, "c2", "agent-1", "4155550002", base.Add(time.Minute))

	if _, err := js.Create(context.Background(), jobs.Job{
		ID: "job-1", AgentID: "agent-1", Status: jobs.StatusQueued,
		ShouldContinue: true, Tag: "warm", Limit: 10,
		FromNumber: "+15550000000", ScheduledAt: base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	e := newTestExecutor(cs, js, d, loc, base)
	r := NewRecovery(cs, js, e, nil)
	r.clock = func() time.Time { return base }

	if err := r.RecoverPendingJobs(context.Background()); err != nil {
		t.Fatalf("RecoverPendingJobs: %v", err)
	}

	nums := d.placedNumbers()
	if len(nums) != 1 || nums[0] != "+14155550002" {
		t.Fatalf("placed = %v, want only the undialed contact", nums)
	}
	c1, _ := cs.Snapshot("c1")
	if c1.LastCallID != "call-old" {
		t.Fatalf("pre-crash call id overwritten: %q", c1.LastCallID)
	}
}

func TestRecoveryIgnoresNonRecoverableJobs(t *testing.T) {
	loc := laLoc(t)
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	d := newFakeDialer()

	base := morning(loc)
	seedContact(cs, "c1", "agent-1", "4155550001", base)

	seed := func(id string, status jobs.Status, cont bool, at time.Time) {
		t.Helper()
		if _, err := js.Create(context.Background(), jobs.Job{
			ID: id, AgentID: "agent-1", Status: status, ShouldContinue: cont,
			Tag: "warm", Limit: 10, FromNumber: "+15550000000", ScheduledAt: at,
		}); err != nil {
			t.Fatalf("seed %s: %v", id, err)
		}
	}
	seed("job-past", jobs.StatusQueued, true, base.Add(-time.Hour))
	seed("job-canceled", jobs.StatusCanceled, false, base.Add(time.Hour))
	seed("job-running", jobs.StatusOnCall, true, base.Add(time.Hour))

	e := newTestExecutor(cs, js, d, loc, base)
	r := NewRecovery(cs, js, e, nil)
	r.clock = func() time.Time { return base }

	if err := r.RecoverPendingJobs(context.Background()); err != nil {
		t.Fatalf("RecoverPendingJobs: %v", err)
	}

	if n := len(d.placedNumbers()); n != 0 {
		t.Fatalf("placed %d calls for non-recoverable jobs", n)
	}
	for id, want := range map[string]jobs.Status{
		"job-past":     jobs.StatusQueued,
		"job-canceled": jobs.StatusCanceled,
		"job-running":  jobs.StatusOnCall,
	} {
		j, _ := js.Snapshot(id)
		if j.Status != want {
			t.Fatalf("job %s status = %s, want %s", id, j.Status, want)
		}
	}
}

func TestRecoverySkipsJobWithNoReservedContacts(t *testing.T) {
	loc := laLoc(t)
	cs := contacts.NewMemoryRepo()
	js := jobs.NewMemoryRepo()
	d := newFakeDialer()

	base := morning(loc)
	if _, err := js.Create(context.Background(), jobs.Job{
		ID: "job-1", AgentID: "agent-1", Status: jobs.StatusQueued,
		ShouldContinue: true, Tag: "warm", Limit: 10,
		FromNumber: "+15550000000", ScheduledAt: base.Add(time.Hour),
	}); err != nil {
		t.Fatalf("seed job: %v", err)
	}

	e := newTestExecutor(cs, js, d, loc, base)
	r := NewRecovery(cs, js, e, nil)
	r.clock = func() time.Time { return base }

	if err := r.RecoverPendingJobs(context.Background()); err != nil {
		t.Fatalf("RecoverPendingJobs: %v", err)
	}

	job, _ := js.Snapshot("job-1")
	if job.Status != jobs.StatusQueued {
		t.Fatalf("status = %s, want queued left untouched", job.Status)
	}
	if n := len(d.placedNumbers()); n != 0 {
		t.Fatalf("placed %d calls with no reserved batch", n)
	}
}

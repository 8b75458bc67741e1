package webhook

import (
	"context"
	"errors"
	"testing"
	"time"

	"campaign-dialer/internal/contacts"
	"campaign-dialer/internal/stats"
)

type fixedClassifier struct {
	category Category
	err      error
	gotText  string
}

func (f *fixedClassifier) Classify(ctx context.Context, transcript string) (Category, error) {
	f.gotText = transcript
	return f.category, f.err
}

func seedDialedContact(repo *contacts.MemoryRepo) contacts.Contact {
	c := contacts.Contact{
		ID:          "c1",
		AgentID:     "agent-1",
		PhoneNumber: "+14155550001",
		DialStatus:  contacts.DialStatusInProgress,
		Taken:       true,
		JobIDs:      []string{"job-0", "job-1"},
		LastCallID:  "call-1",
		CreatedAt:   time.Now(),
	}
	repo.Put(c)
	return c
}

func newTestIngester(cs *contacts.MemoryRepo, ss *stats.MemoryRepo, tc TranscriptClassifier) *Ingester {
	i := NewIngester(cs, ss, tc, time.UTC, nil)
	i.clock = func() time.Time { return time.Date(2026, 3, 10, 18, 0, 0, 0, time.UTC) }
	return i
}

func TestIngestCallStarted(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	ss := stats.NewMemoryRepo()
	seedDialedContact(cs)
	i := newTestIngester(cs, ss, nil)

	ev := Event{Type: EventCallStarted, Call: CallPayload{CallID: "call-1"}}
	if err := i.Ingest(context.Background(), ev); err != nil {
		t.Fatalf("Ingest: %v", err)
	}

	// Counters land on the most recent job in the contact's history.
	row, err := ss.Get(context.Background(), "2026-03-10", "agent-1", "job-1")
	if err != nil || row == nil {
		t.Fatalf("stats row: %v", err)
	}
	if row.TotalCalls != 1 {
		t.Fatalf("total_calls = %d, want 1", row.TotalCalls)
	}
}

func TestIngestCallEndedReasonMapping(t *testing.T) {
	cases := []struct {
		reason     DisconnectReason
		wantStatus contacts.DialStatus // "" means unchanged
		check      func(*stats.DayStats) int
		counter    string
	}{
		{ReasonDialNoAnswer, contacts.DialStatusNoAnswer, func(s *stats.DayStats) int { return s.NoAnswer }, "no_answer"},
		{ReasonDialBusy, contacts.DialStatusNoAnswer, func(s *stats.DayStats) int { return s.NoAnswer }, "no_answer"},
		{ReasonDialFailed, contacts.DialStatusFailed, func(s *stats.DayStats) int { return s.Failed }, "failed"},
		{ReasonError, contacts.DialStatusFailed, func(s *stats.DayStats) int { return s.Failed }, "failed"},
		{ReasonVoicemail, contacts.DialStatusConnectedVoicemail, func(s *stats.DayStats) int { return s.Voicemail }, "voicemail"},
		{ReasonMachineDetected, contacts.DialStatusConnectedVoicemail, func(s *stats.DayStats) int { return s.IVR }, "ivr"},
		{ReasonCallTransfer, contacts.DialStatusTransferred, func(s *stats.DayStats) int { return s.Transferred }, "transferred"},
		{ReasonUserHangup, "", func(s *stats.DayStats) int { return s.Answered }, "answered"},
		{ReasonInactivity, "", func(s *stats.DayStats) int { return s.Inactivity }, "inactivity"},
	}

	for _, tc := range cases {
		t.Run(string(tc.reason), func(t *testing.T) {
			cs := contacts.NewMemoryRepo()
			ss := stats.NewMemoryRepo()
			seedDialedContact(cs)
			i := newTestIngester(cs, ss, nil)

			ev := Event{Type: EventCallEnded, Call: CallPayload{CallID: "call-1", DisconnectReason: tc.reason}}
			if err := i.Ingest(context.Background(), ev); err != nil {
				t.Fatalf("Ingest: %v", err)
			}

			c, _ := cs.Snapshot("c1")
			want := tc.wantStatus
			if want == "" {
				want = contacts.DialStatusInProgress
			}
			if c.DialStatus != want {
				t.Fatalf("dial_status = %s, want %s", c.DialStatus, want)
			}

			row, _ := ss.Get(context.Background(), "2026-03-10", "agent-1", "job-1")
			if row == nil || tc.check(row) != 1 {
				t.Fatalf("counter %s not incremented: %+v", tc.counter, row)
			}
		})
	}
}

func TestIngestCallAnalyzed(t *testing.T) {
	cases := []struct {
		category   Category
		wantStatus contacts.DialStatus
		wantSched  int
	}{
		{CategoryInterested, contacts.DialStatusConnectedInterested, 0},
		{CategoryNotInterested, contacts.DialStatusConnectedNotInterested, 0},
		{CategoryVoicemail, contacts.DialStatusConnectedVoicemail, 0},
		{CategoryScheduled, contacts.DialStatusConnectedInterested, 1},
	}

	for _, tc := range cases {
		t.Run(string(tc.category), func(t *testing.T) {
			cs := contacts.NewMemoryRepo()
			ss := stats.NewMemoryRepo()
			seedDialedContact(cs)
			cl := &fixedClassifier{category: tc.category}
			i := newTestIngester(cs, ss, cl)

			ev := Event{Type: EventCallAnalyzed, Call: CallPayload{CallID: "call-1", Transcript: "hello"}}
			if err := i.Ingest(context.Background(), ev); err != nil {
				t.Fatalf("Ingest: %v", err)
			}
			if cl.gotText != "hello" {
				t.Fatalf("classifier transcript = %q", cl.gotText)
			}

			c, _ := cs.Snapshot("c1")
			if c.DialStatus != tc.wantStatus {
				t.Fatalf("dial_status = %s, want %s", c.DialStatus, tc.wantStatus)
			}
			row, _ := ss.Get(context.Background(), "2026-03-10", "agent-1", "job-1")
			sched := 0
			if row != nil {
				sched = row.Scheduled
			}
			if sched != tc.wantSched {
				t.Fatalf("scheduled = %d, want %d", sched, tc.wantSched)
			}
		})
	}
}

func TestIngestClassifierFailure(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	ss := stats.NewMemoryRepo()
	seedDialedContact(cs)
	i := newTestIngester(cs, ss, &fixedClassifier{err: errors.New("model unavailable")})

	ev := Event{Type: EventCallAnalyzed, Call: CallPayload{CallID: "call-1", Transcript: "x"}}
	if err := i.Ingest(context.Background(), ev); err == nil {
		t.Fatal("want error when classifier fails")
	}
	c, _ := cs.Snapshot("c1")
	if c.DialStatus != contacts.DialStatusInProgress {
		t.Fatalf("dial_status changed to %s on classifier failure", c.DialStatus)
	}
}

func TestIngestUnknownCallDropped(t *testing.T) {
	cs := contacts.NewMemoryRepo()
	ss := stats.NewMemoryRepo()
	i := newTestIngester(cs, ss, nil)

	ev := Event{Type: EventCallStarted, Call: CallPayload{CallID: "call-elsewhere"}}
	if err := i.Ingest(context.Background(), ev); err != nil {
		t.Fatalf("unknown call should be dropped, got %v", err)
	}
}

func TestParseEvent(t *testing.T) {
	if _, err := ParseEvent([]byte(`{"event":"call_started","call":{"call_id":"c"}}`)); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}
	if _, err := ParseEvent([]byte(`{"event":"call_teleported","call":{"call_id":"c"}}`)); !errors.Is(err, ErrUnknownEventType) {
		t.Fatalf("err = %v, want ErrUnknownEventType", err)
	}
	if _, err := ParseEvent([]byte(`{"event":"call_started","call":{}}`)); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("err = %v, want ErrMalformedEvent for missing call_id", err)
	}
	if _, err := ParseEvent([]byte(`{not json`)); !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("err = %v, want ErrMalformedEvent", err)
	}
}

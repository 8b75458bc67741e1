package webhook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"campaign-dialer/internal/contacts"
	"campaign-dialer/internal/stats"
)

// Category is the transcript reviewer's verdict on an analyzed call.
type Category string

const (
	CategoryInterested    Category = "interested"
	CategoryNotInterested Category = "not_interested"
	CategoryVoicemail     Category = "voicemail"
	CategoryScheduled     Category = "scheduled"
	CategoryUnknown       Category = "unknown"
)

// TranscriptClassifier reviews a call transcript and returns an outcome
// category. The classification logic lives outside this service; the ingester
// only maps the category onto contact state and counters.
type TranscriptClassifier interface {
	Classify(ctx context.Context, transcript string) (Category, error)
}

// Ingester applies call-lifecycle events to contact state and per-day stats.
// It runs fully decoupled from the dispatch loop: events arrive whenever the
// provider sends them, including after the originating job has finished.
type Ingester struct {
	contacts   contacts.Store
	stats      stats.Store
	classifier TranscriptClassifier
	log        *slog.Logger

	loc   *time.Location
	clock func() time.Time
}

func NewIngester(cs contacts.Store, ss stats.Store, tc TranscriptClassifier, loc *time.Location, log *slog.Logger) *Ingester {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{
		contacts:   cs,
		stats:      ss,
		classifier: tc,
		log:        log,
		loc:        loc,
		clock:      time.Now,
	}
}

// Ingest applies one validated event. Events for calls this service never
// placed are dropped with a log line; the provider shares one webhook
// endpoint across all traffic on the account.
func (i *Ingester) Ingest(ctx context.Context, ev Event) error {
	contact, err := i.contacts.FindByCallID(ctx, ev.Call.CallID)
	if err != nil {
		if errors.Is(err, contacts.ErrNotFound) {
			i.log.Warn("event for unknown call dropped", "call_id", ev.Call.CallID, "event", ev.Type)
			return nil
		}
		return fmt.Errorf("ingest %s: %w", ev.Type, err)
	}

	jobID := ""
	if n := len(contact.JobIDs); n > 0 {
		jobID = contact.JobIDs[n-1]
	}
	day := stats.DayKey(i.clock().In(i.loc))

	switch ev.Type {
	case EventCallStarted:
		return i.onStarted(ctx, contact, day, jobID)
	case EventCallEnded:
		return i.onEnded(ctx, contact, day, jobID, ev.Call.DisconnectReason)
	case EventCallAnalyzed:
		return i.onAnalyzed(ctx, contact, day, jobID, ev.Call.Transcript)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEventType, ev.Type)
	}
}

func (i *Ingester) onStarted(ctx context.Context, c *contacts.Contact, day, jobID string) error {
	if err := i.contacts.SetDialStatus(ctx, c.ID, contacts.DialStatusInProgress); err != nil {
		return fmt.Errorf("call_started: %w", err)
	}
	i.bump(ctx, day, c.AgentID, jobID, stats.CounterTotalCalls)
	return nil
}

// onEnded maps the provider's disconnect reason to contact state and the
// matching counter. Hangups after a live conversation keep in_progress; the
// terminal connected_* status comes from the later call_analyzed event.
func (i *Ingester) onEnded(ctx context.Context, c *contacts.Contact, day, jobID string, reason DisconnectReason) error {
	var (
		status  contacts.DialStatus
		counter stats.Counter
	)
	switch reason {
	case ReasonUserHangup, ReasonAgentHangup:
		counter = stats.CounterAnswered
	case ReasonDialNoAnswer, ReasonDialBusy:
		status, counter = contacts.DialStatusNoAnswer, stats.CounterNoAnswer
	case ReasonDialFailed, ReasonError:
		status, counter = contacts.DialStatusFailed, stats.CounterFailed
	case ReasonVoicemail:
		status, counter = contacts.DialStatusConnectedVoicemail, stats.CounterVoicemail
	case ReasonMachineDetected:
		status, counter = contacts.DialStatusConnectedVoicemail, stats.CounterIVR
	case ReasonCallTransfer:
		status, counter = contacts.DialStatusTransferred, stats.CounterTransferred
	case ReasonInactivity:
		counter = stats.CounterInactivity
	default:
		i.log.Warn("unmapped disconnect reason", "reason", reason, "contact_id", c.ID)
		return nil
	}

	if status != "" {
		if err := i.contacts.SetDialStatus(ctx, c.ID, status); err != nil {
			return fmt.Errorf("call_ended: %w", err)
		}
	}
	i.bump(ctx, day, c.AgentID, jobID, counter)
	return nil
}

func (i *Ingester) onAnalyzed(ctx context.Context, c *contacts.Contact, day, jobID, transcript string) error {
	if i.classifier == nil {
		i.log.Warn("call_analyzed without classifier, dropped", "contact_id", c.ID)
		return nil
	}
	category, err := i.classifier.Classify(ctx, transcript)
	if err != nil {
		return fmt.Errorf("call_analyzed: classify: %w", err)
	}

	var status contacts.DialStatus
	switch category {
	case CategoryInterested:
		status = contacts.DialStatusConnectedInterested
	case CategoryNotInterested:
		status = contacts.DialStatusConnectedNotInterested
	case CategoryVoicemail:
		status = contacts.DialStatusConnectedVoicemail
	case CategoryScheduled:
		// A booked appointment counts separately on top of the interest status.
		status = contacts.DialStatusConnectedInterested
		i.bump(ctx, day, c.AgentID, jobID, stats.CounterScheduled)
	default:
		i.log.Warn("unmapped transcript category", "category", category, "contact_id", c.ID)
		return nil
	}

	if err := i.contacts.SetDialStatus(ctx, c.ID, status); err != nil {
		return fmt.Errorf("call_analyzed: %w", err)
	}
	return nil
}

// bump is best-effort: a lost counter never fails the webhook.
func (i *Ingester) bump(ctx context.Context, day, agentID, jobID string, counter stats.Counter) {
	if jobID == "" {
		i.log.Warn("stats skipped: contact has no job history", "agent_id", agentID)
		return
	}
	if err := i.stats.Increment(ctx, day, agentID, jobID, counter, 1); err != nil {
		i.log.Error("stats increment failed", "counter", counter, "err", err)
	}
}

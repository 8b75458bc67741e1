package stats

import "time"

// DayStats aggregates call outcomes per (day, agent, job).
//
// The scheduler creates the zeroed row when a job is created; the webhook
// ingester increments counters as call lifecycle events arrive. Dashboards
// read these rows; nothing in the dispatch path does.
type DayStats struct {
	Day     string `json:"day" db:"day"` // YYYY-MM-DD in the campaign timezone
	AgentID string `json:"agent_id" db:"agent_id"`
	JobID   string `json:"job_id" db:"job_id"`

	TotalCalls  int `json:"total_calls" db:"total_calls"`
	Answered    int `json:"answered" db:"answered"`
	Voicemail   int `json:"voicemail" db:"voicemail"`
	IVR         int `json:"ivr" db:"ivr"`
	Failed      int `json:"failed" db:"failed"`
	Transferred int `json:"transferred" db:"transferred"`
	NoAnswer    int `json:"no_answer" db:"no_answer"`
	Inactivity  int `json:"inactivity" db:"inactivity"`
	Scheduled   int `json:"scheduled" db:"scheduled"`

	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Counter names accepted by Store.Increment.
type Counter string

const (
	CounterTotalCalls  Counter = "total_calls"
	CounterAnswered    Counter = "answered"
	CounterVoicemail   Counter = "voicemail"
	CounterIVR         Counter = "ivr"
	CounterFailed      Counter = "failed"
	CounterTransferred Counter = "transferred"
	CounterNoAnswer    Counter = "no_answer"
	CounterInactivity  Counter = "inactivity"
	CounterScheduled   Counter = "scheduled"
)

func ValidCounter(c Counter) bool {
	switch c {
	case CounterTotalCalls, CounterAnswered, CounterVoicemail, CounterIVR,
		CounterFailed, CounterTransferred, CounterNoAnswer,
		CounterInactivity, CounterScheduled:
		return true
	default:
		return false
	}
}

// DayKey formats t as the canonical day string.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

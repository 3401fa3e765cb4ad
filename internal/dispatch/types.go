package dispatch

import (
	"context"
	"time"

	"campbot/internal/campaign"
)

// Outcome classifies one recorded dispatch attempt.
type Outcome string

const (
	OutcomeSent           Outcome = "sent"
	OutcomeRejected       Outcome = "rejected"
	OutcomeFailed         Outcome = "failed"
	OutcomeRetryScheduled Outcome = "retry_scheduled"
)

// Attempt is one recorded try (successful or not) to deliver a campaign's
// message to one target. Records are immutable once written; the attempt
// log is append-only, one record per attempt including retries.
type Attempt struct {
	CampaignID    string
	Platform      string
	TargetID      string
	At            time.Time
	Outcome       Outcome
	Reason        string
	AttemptNumber int
}

// Adapter is the external platform boundary. It must be treated as
// unreliable and slow; the dispatcher wraps every call in a timeout.
// Implementations signal retryability with Transient()/Permanent() errors;
// an unclassified error counts as transient.
type Adapter interface {
	Send(ctx context.Context, platform, targetID, text string) error
}

// Log receives every attempt record. Implemented by internal/storage.
type Log interface {
	AppendAttempt(ctx context.Context, a Attempt) error
}

// Job is one (campaign, target) dispatch submitted by the scheduler.
// Campaign is a snapshot from schedule time; the worker re-reads live
// state before calling the adapter.
type Job struct {
	Campaign campaign.Campaign
	Target   string
}

// Config controls retries, backoff, and the adapter timeout.
type Config struct {
	RetryMax       int           // max attempts per job (default 3)
	RetryBase      time.Duration // default 500ms
	RetryMaxDelay  time.Duration // default 15s
	RetryJitter    float64       // 0.2 = 20%
	AdapterTimeout time.Duration // default 10s
	QueueDepth     int           // per-platform queue (default 64)
}

func (c Config) withDefaults() Config {
	if c.RetryMax <= 0 {
		c.RetryMax = 3
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 15 * time.Second
	}
	if c.RetryJitter <= 0 {
		c.RetryJitter = 0.2
	}
	if c.AdapterTimeout <= 0 {
		c.AdapterTimeout = 10 * time.Second
	}
	if c.QueueDepth <= 0 {
		c.QueueDepth = 64
	}
	return c
}

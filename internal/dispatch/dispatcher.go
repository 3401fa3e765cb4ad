package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"campbot/internal/campaign"
	"campbot/internal/policy"
	"campbot/internal/ratelimit"
	logx "campbot/pkg/logx"
)

// CampaignStore is the slice of campaign state the dispatcher needs.
type CampaignStore interface {
	Get(id string) (campaign.Campaign, error)
	RecordOutcome(ctx context.Context, id string, sent, failed int) error
	DisableTarget(ctx context.Context, id, target, reason string) error
}

// ConsentChecker answers the approval question at send time.
type ConsentChecker interface {
	IsApproved(platform, targetID string) bool
}

// Validator gates message content.
type Validator interface {
	Validate(text string) policy.Result
}

// Limiter hands out per-platform send slots.
type Limiter interface {
	TryAcquire(platform string, spacing time.Duration, now time.Time) ratelimit.Decision
}

// QuotaGate tracks the per-day send budget.
type QuotaGate interface {
	Remaining(platform, campaignID string, limit int, now time.Time) int
	TryConsume(ctx context.Context, platform, campaignID string, limit int, now time.Time) (bool, error)
}

// Deps are the dispatcher's collaborators.
type Deps struct {
	Adapter   Adapter
	Validator Validator
	Consent   ConsentChecker
	Limiter   Limiter
	Quota     QuotaGate
	Campaigns CampaignStore
	Log       Log

	// OnSent is invoked after a successful send has been recorded.
	// The scheduler uses it to track last-sent times per target.
	OnSent func(campaignID, target string, at time.Time)

	// Clock defaults to time.Now; tests inject a fixed clock.
	Clock func() time.Time
}

// execOne runs one dispatch job end to end. It never returns an error:
// every failure mode is recorded (attempt log, campaign counters) or
// deferred, and must not take down the worker.
func (s *Service) execOne(ctx context.Context, job Job) {
	now := s.clock()

	// Live state: pausing or cancelling mid-tick prevents jobs that have
	// not yet reached the adapter.
	c, err := s.deps.Campaigns.Get(job.Campaign.ID)
	if err != nil {
		s.log.Warn("dispatch dropped: campaign vanished", logx.String("campaign", job.Campaign.ID), logx.Err(err))
		return
	}
	if c.Status != campaign.StatusActive {
		s.log.Debug("dispatch dropped: campaign no longer active",
			logx.String("campaign", c.ID), logx.String("status", string(c.Status)))
		return
	}
	if c.TargetDisabled(job.Target) {
		return
	}

	// Consent re-check just before the send path: a revocation that landed
	// after scheduling still blocks here, with no quota effect.
	if !s.deps.Consent.IsApproved(c.Platform, job.Target) {
		s.record(ctx, Attempt{
			CampaignID:    c.ID,
			Platform:      c.Platform,
			TargetID:      job.Target,
			At:            now,
			Outcome:       OutcomeRejected,
			Reason:        "consent: target not approved or revoked",
			AttemptNumber: 1,
		})
		return
	}

	// Content policy runs before quota and before the adapter.
	text := c.Render(job.Target)
	if res := s.deps.Validator.Validate(text); !res.OK {
		s.record(ctx, Attempt{
			CampaignID:    c.ID,
			Platform:      c.Platform,
			TargetID:      job.Target,
			At:            now,
			Outcome:       OutcomeRejected,
			Reason:        "policy: " + string(res.Reason),
			AttemptNumber: 1,
		})
		return
	}

	// Rate and quota denials are deferrals, not failures: nothing is
	// recorded in the attempt log and the scheduler re-offers the pair on
	// a later tick.
	if d := s.deps.Limiter.TryAcquire(c.Platform, c.RateLimit, now); !d.Allowed {
		s.log.Debug("dispatch deferred: rate limit",
			logx.String("campaign", c.ID),
			logx.String("platform", c.Platform),
			logx.String("target", job.Target),
			logx.Duration("retry_after", d.RetryAfter))
		return
	}
	if s.deps.Quota.Remaining(c.Platform, c.ID, c.DailyLimit, now) <= 0 {
		s.log.Debug("dispatch deferred: daily quota exhausted",
			logx.String("campaign", c.ID),
			logx.String("platform", c.Platform),
			logx.String("target", job.Target))
		return
	}

	s.send(ctx, c, job.Target, text)
}

// send drives the adapter call with retry/backoff for transient failures.
func (s *Service) send(ctx context.Context, c campaign.Campaign, target, text string) {
	maxAttempts := s.cfg.RetryMax

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		at := s.clock()

		sctx, cancel := context.WithTimeout(ctx, s.cfg.AdapterTimeout)
		err := s.deps.Adapter.Send(sctx, c.Platform, target, text)
		cancel()

		if err == nil {
			// Attempt log first, quota after.
			s.record(ctx, Attempt{
				CampaignID:    c.ID,
				Platform:      c.Platform,
				TargetID:      target,
				At:            at,
				Outcome:       OutcomeSent,
				AttemptNumber: attempt,
			})
			ok, qerr := s.deps.Quota.TryConsume(ctx, c.Platform, c.ID, c.DailyLimit, at)
			if qerr != nil {
				s.log.Error("quota persist failed", logx.String("campaign", c.ID), logx.Err(qerr))
			} else if !ok {
				// The worker serializes this platform, so the gate check
				// should have caught exhaustion already.
				s.log.Error("quota consume denied after send", logx.String("campaign", c.ID))
			}
			if err := s.deps.Campaigns.RecordOutcome(ctx, c.ID, 1, 0); err != nil {
				s.log.Error("campaign counter update failed", logx.String("campaign", c.ID), logx.Err(err))
			}
			if s.deps.OnSent != nil {
				s.deps.OnSent(c.ID, target, at)
			}
			return
		}

		if IsPermanent(err) {
			s.record(ctx, Attempt{
				CampaignID:    c.ID,
				Platform:      c.Platform,
				TargetID:      target,
				At:            at,
				Outcome:       OutcomeFailed,
				Reason:        "permanent: " + err.Error(),
				AttemptNumber: attempt,
			})
			if derr := s.deps.Campaigns.DisableTarget(ctx, c.ID, target, err.Error()); derr != nil {
				s.log.Error("disable target failed", logx.String("campaign", c.ID), logx.Err(derr))
			}
			if rerr := s.deps.Campaigns.RecordOutcome(ctx, c.ID, 0, 1); rerr != nil {
				s.log.Error("campaign counter update failed", logx.String("campaign", c.ID), logx.Err(rerr))
			}
			return
		}

		// Transient: either schedule another attempt or give up for this
		// tick. The target stays eligible either way.
		if attempt < maxAttempts {
			s.record(ctx, Attempt{
				CampaignID:    c.ID,
				Platform:      c.Platform,
				TargetID:      target,
				At:            at,
				Outcome:       OutcomeRetryScheduled,
				Reason:        err.Error(),
				AttemptNumber: attempt,
			})
			delay := backoffDelay(s.cfg, attempt)
			tmr := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				if !tmr.Stop() {
					<-tmr.C
				}
				return
			case <-tmr.C:
			}
			continue
		}

		s.record(ctx, Attempt{
			CampaignID:    c.ID,
			Platform:      c.Platform,
			TargetID:      target,
			At:            at,
			Outcome:       OutcomeFailed,
			Reason:        err.Error(),
			AttemptNumber: attempt,
		})
		if rerr := s.deps.Campaigns.RecordOutcome(ctx, c.ID, 0, 1); rerr != nil {
			s.log.Error("campaign counter update failed", logx.String("campaign", c.ID), logx.Err(rerr))
		}
		return
	}
}

// record appends to the durable attempt log and mirrors the attempt into
// the structured log stream (the feed the external dashboard reads).
func (s *Service) record(ctx context.Context, a Attempt) {
	if s.deps.Log == nil {
		s.logAttempt(a)
		return
	}
	if err := s.deps.Log.AppendAttempt(ctx, a); err != nil {
		// Persistence failure of the append-only log is surfaced loudly;
		// the process owner decides whether to keep running.
		s.log.Error("attempt log append failed",
			logx.String("campaign", a.CampaignID),
			logx.String("target", a.TargetID),
			logx.Err(err))
	}
	s.logAttempt(a)
}

func (s *Service) logAttempt(a Attempt) {
	s.log.Info("dispatch attempt",
		logx.String("campaign", a.CampaignID),
		logx.String("platform", a.Platform),
		logx.String("target", a.TargetID),
		logx.String("outcome", string(a.Outcome)),
		logx.String("reason", a.Reason),
		logx.Int("attempt", a.AttemptNumber),
		logx.Time("at", a.At))
}

func backoffDelay(cfg Config, retry int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < retry; i++ {
		d *= 2
		if d > cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	if j := cfg.RetryJitter; j > 0 {
		r := (randFloat64()*2 - 1) * j
		d = time.Duration(float64(d) * (1 + r))
		if d < 0 {
			d = 0
		}
	}
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}

var rngMu sync.Mutex

func randFloat64() float64 {
	rngMu.Lock()
	defer rngMu.Unlock()
	return rand.Float64()
}

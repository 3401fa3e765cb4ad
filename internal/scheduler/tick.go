package scheduler

import (
	"context"
	"errors"
	"time"

	"campbot/internal/campaign"
	"campbot/internal/dispatch"
	logx "campbot/pkg/logx"
)

// tick runs one scheduler pass. It is also called directly by tests.
func (s *Service) tick(ctx context.Context) {
	now := s.clock()

	s.lastMu.Lock()
	s.lastTick = now
	s.lastMu.Unlock()

	s.promote(ctx, now)
	for _, c := range s.deps.Campaigns.List(campaign.Filter{Status: campaign.StatusActive}) {
		if ctx.Err() != nil {
			return
		}
		s.drive(ctx, c, now)
	}
}

// promote moves scheduled campaigns whose start condition holds to active.
func (s *Service) promote(ctx context.Context, now time.Time) {
	for _, c := range s.deps.Campaigns.List(campaign.Filter{Status: campaign.StatusScheduled}) {
		if !c.Schedule.StartReached(now) {
			continue
		}
		if _, err := s.deps.Campaigns.Transition(ctx, c.ID, campaign.StatusActive); err != nil {
			s.log.Warn("campaign activation failed", logx.String("campaign", c.ID), logx.Err(err))
			continue
		}
		s.log.Info("campaign activated",
			logx.String("campaign", c.ID),
			logx.String("schedule", c.Schedule.String()))
	}
}

// drive offers due targets of one active campaign to the dispatcher and
// re-evaluates completion.
func (s *Service) drive(ctx context.Context, c campaign.Campaign, now time.Time) {
	if c.Schedule.Elapsed(now) {
		if s.deps.Dispatch.InFlight(c.ID) == 0 {
			s.complete(ctx, c, "window elapsed")
		}
		return
	}

	// Screen the template once per pass so policy violations surface as a
	// single warning instead of a rejected attempt per target.
	if res := s.deps.Validator.Validate(c.Template); !res.OK {
		s.log.Warn("campaign template blocked",
			logx.String("campaign", c.ID),
			logx.String("reason", string(res.Reason)),
			logx.String("keyword", res.Keyword))
		return
	}

	due := 0
	for _, target := range c.Targets {
		if c.TargetDisabled(target) {
			continue
		}
		if !s.deps.Consent.IsApproved(c.Platform, target) {
			continue
		}
		if !c.Schedule.DueSince(s.lastSentAt(c.ID, target), now) {
			continue
		}
		due++

		err := s.deps.Dispatch.Submit(dispatch.Job{Campaign: c, Target: target})
		switch {
		case err == nil:
		case errors.Is(err, dispatch.ErrDuplicate):
			// already queued or in flight
		case errors.Is(err, dispatch.ErrQueueFull):
			s.log.Debug("dispatch queue full",
				logx.String("campaign", c.ID),
				logx.String("platform", c.Platform))
		default:
			s.log.Warn("dispatch submit failed",
				logx.String("campaign", c.ID),
				logx.String("target", target),
				logx.Err(err))
		}
	}

	// One-shot campaigns finish once every target is handled: sent,
	// disabled, or never approved. Recurring campaigns run until paused or
	// cancelled.
	if !c.Schedule.Recurring() && due == 0 && s.deps.Dispatch.InFlight(c.ID) == 0 {
		s.complete(ctx, c, "targets exhausted")
	}
}

func (s *Service) complete(ctx context.Context, c campaign.Campaign, why string) {
	if _, err := s.deps.Campaigns.Transition(ctx, c.ID, campaign.StatusCompleted); err != nil {
		s.log.Warn("campaign completion failed", logx.String("campaign", c.ID), logx.Err(err))
		return
	}
	s.log.Info("campaign completed",
		logx.String("campaign", c.ID),
		logx.String("why", why),
		logx.Int("sent", c.SentCount),
		logx.Int("failed", c.FailedCount))
}

// Package analytics derives campaign statistics from the append-only
// dispatch attempt log. Nothing here keeps its own counters: every number
// is recomputed from the log, so it stays correct across restarts and
// never drifts from what actually happened.
package analytics

import (
	"context"
	"sort"
	"time"

	"campbot/internal/campaign"
	"campbot/internal/dispatch"
	logx "campbot/pkg/logx"
)

// Source reads the persisted attempt log. An empty campaignID matches all
// campaigns; zero from/to leave that bound open.
type Source interface {
	ListAttempts(ctx context.Context, campaignID string, from, to time.Time) ([]dispatch.Attempt, error)
}

// CampaignLister provides campaign rows for the global totals.
type CampaignLister interface {
	List(f campaign.Filter) []campaign.Campaign
}

// Summary aggregates one campaign's attempts over a time range.
type Summary struct {
	CampaignID string
	From       time.Time
	To         time.Time

	Sent     int
	Failed   int
	Rejected int
	Retries  int

	// SuccessRate is Sent over terminal send attempts (Sent+Failed).
	// Rejections never reached the platform and do not count against it.
	SuccessRate float64

	FirstAttempt time.Time
	LastAttempt  time.Time
}

// Totals is the cross-campaign view for the status surface.
type Totals struct {
	Campaigns   int
	Active      int
	Completed   int
	Sent        int
	Failed      int
	SuccessRate float64
	Platforms   []string
}

type Aggregator struct {
	source    Source
	campaigns CampaignLister
	log       logx.Logger
}

func New(source Source, campaigns CampaignLister, log logx.Logger) *Aggregator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{source: source, campaigns: campaigns, log: log}
}

// Summarize folds the attempt log for one campaign into a Summary.
func (a *Aggregator) Summarize(ctx context.Context, campaignID string, from, to time.Time) (Summary, error) {
	attempts, err := a.source.ListAttempts(ctx, campaignID, from, to)
	if err != nil {
		return Summary{}, err
	}

	s := Summary{CampaignID: campaignID, From: from, To: to}
	for _, at := range attempts {
		switch at.Outcome {
		case dispatch.OutcomeSent:
			s.Sent++
		case dispatch.OutcomeFailed:
			s.Failed++
		case dispatch.OutcomeRejected:
			s.Rejected++
		case dispatch.OutcomeRetryScheduled:
			s.Retries++
		}
		if s.FirstAttempt.IsZero() || at.At.Before(s.FirstAttempt) {
			s.FirstAttempt = at.At
		}
		if at.At.After(s.LastAttempt) {
			s.LastAttempt = at.At
		}
	}
	s.SuccessRate = rate(s.Sent, s.Failed)
	return s, nil
}

// GlobalTotals aggregates every campaign's terminal attempts plus the
// campaign census.
func (a *Aggregator) GlobalTotals(ctx context.Context) (Totals, error) {
	attempts, err := a.source.ListAttempts(ctx, "", time.Time{}, time.Time{})
	if err != nil {
		return Totals{}, err
	}

	t := Totals{}
	platforms := map[string]struct{}{}
	for _, at := range attempts {
		switch at.Outcome {
		case dispatch.OutcomeSent:
			t.Sent++
		case dispatch.OutcomeFailed:
			t.Failed++
		}
	}
	t.SuccessRate = rate(t.Sent, t.Failed)

	for _, c := range a.campaigns.List(campaign.Filter{}) {
		t.Campaigns++
		switch c.Status {
		case campaign.StatusActive:
			t.Active++
		case campaign.StatusCompleted:
			t.Completed++
		}
		platforms[c.Platform] = struct{}{}
	}
	t.Platforms = make([]string, 0, len(platforms))
	for p := range platforms {
		t.Platforms = append(t.Platforms, p)
	}
	sort.Strings(t.Platforms)
	return t, nil
}

func rate(sent, failed int) float64 {
	if sent+failed == 0 {
		return 0
	}
	return float64(sent) / float64(sent+failed)
}

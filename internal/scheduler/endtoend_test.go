package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campbot/internal/campaign"
	"campbot/internal/consent"
	"campbot/internal/dispatch"
	"campbot/internal/policy"
	"campbot/internal/quota"
	"campbot/internal/ratelimit"
	logx "campbot/pkg/logx"
)

type recordingAdapter struct {
	mu    sync.Mutex
	calls []string
	at    []time.Time
}

func (a *recordingAdapter) Send(_ context.Context, _, targetID, _ string) error {
	a.mu.Lock()
	a.calls = append(a.calls, targetID)
	a.at = append(a.at, time.Now())
	a.mu.Unlock()
	return nil
}

func (a *recordingAdapter) snapshot() ([]string, []time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...), append([]time.Time(nil), a.at...)
}

type recordingLog struct {
	mu       sync.Mutex
	attempts []dispatch.Attempt
}

func (l *recordingLog) AppendAttempt(_ context.Context, a dispatch.Attempt) error {
	l.mu.Lock()
	l.attempts = append(l.attempts, a)
	l.mu.Unlock()
	return nil
}

func (l *recordingLog) all() []dispatch.Attempt {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]dispatch.Attempt(nil), l.attempts...)
}

// pipeline wires a real dispatcher behind the scheduler, the way the app
// assembles them.
type pipeline struct {
	sched     *Service
	disp      *dispatch.Service
	adapter   *recordingAdapter
	attempts  *recordingLog
	campaigns *campaign.Store
	registry  *consent.Registry
}

func newPipeline(t *testing.T, tick time.Duration) *pipeline {
	t.Helper()
	p := &pipeline{
		adapter:   &recordingAdapter{},
		attempts:  &recordingLog{},
		campaigns: campaign.NewStore(nil, logx.Nop()),
		registry:  consent.NewRegistry(nil, logx.Nop()),
	}

	var sched *Service
	p.disp = dispatch.New(dispatch.Config{}, dispatch.Deps{
		Adapter:   p.adapter,
		Validator: policy.New(policy.Config{}),
		Consent:   p.registry,
		Limiter:   ratelimit.New(),
		Quota:     quota.NewTracker(time.UTC, nil, logx.Nop()),
		Campaigns: p.campaigns,
		Log:       p.attempts,
		OnSent: func(campaignID, target string, at time.Time) {
			sched.MarkSent(campaignID, target, at)
		},
	}, logx.Nop())

	sched = New(Config{Enabled: true, Tick: tick}, Deps{
		Campaigns: p.campaigns,
		Consent:   p.registry,
		Validator: policy.New(policy.Config{}),
		Dispatch:  p.disp,
	}, logx.Nop())
	p.sched = sched

	ctx := context.Background()
	p.disp.Start(ctx)
	p.sched.Start(ctx)
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p.sched.Stop(stopCtx)
		p.disp.Stop(stopCtx)
	})
	return p
}

func (p *pipeline) activeCampaign(t *testing.T, rate time.Duration, daily int, targets ...string) campaign.Campaign {
	t.Helper()
	ctx := context.Background()
	now := time.Now()

	for _, target := range targets {
		_, err := p.registry.Approve(ctx, "telegram", target, "@admin", now)
		require.NoError(t, err)
	}

	c, err := p.campaigns.Create(ctx, campaign.Campaign{
		Platform:   "telegram",
		Targets:    targets,
		Template:   "hi {{target}}",
		RateLimit:  rate,
		DailyLimit: daily,
	}, now)
	require.NoError(t, err)
	c, err = p.campaigns.Transition(ctx, c.ID, campaign.StatusScheduled)
	require.NoError(t, err)
	c, err = p.campaigns.Transition(ctx, c.ID, campaign.StatusActive)
	require.NoError(t, err)
	return c
}

// Two targets with per-platform spacing: the second send must wait out the
// rate limit and land on a later tick.
func TestPipelineRateLimitSpacesSends(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, 10*time.Millisecond)

	const spacing = 80 * time.Millisecond
	c := p.activeCampaign(t, spacing, 0, "g1", "g2")

	require.Eventually(t, func() bool {
		calls, _ := p.adapter.snapshot()
		return len(calls) == 2
	}, 3*time.Second, 5*time.Millisecond)

	calls, at := p.adapter.snapshot()
	require.ElementsMatch(t, []string{"g1", "g2"}, calls)
	gap := at[1].Sub(at[0])
	require.GreaterOrEqual(t, gap, spacing-5*time.Millisecond, "second send arrived before the rate window")

	require.Eventually(t, func() bool {
		got, err := p.campaigns.Get(c.ID)
		return err == nil && got.Status == campaign.StatusCompleted
	}, 3*time.Second, 5*time.Millisecond)

	got, err := p.campaigns.Get(c.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.SentCount)
	require.Equal(t, 0, got.FailedCount)
}

// Daily quota of one: the second target stays deferred with no attempt
// record, and the one-shot campaign stays open for the next quota day.
func TestPipelineDailyQuotaDefersSecondTarget(t *testing.T) {
	t.Parallel()
	p := newPipeline(t, 10*time.Millisecond)

	c := p.activeCampaign(t, 0, 1, "g1", "g2")

	require.Eventually(t, func() bool {
		calls, _ := p.adapter.snapshot()
		return len(calls) == 1
	}, 3*time.Second, 5*time.Millisecond)

	// Give the loop room to (wrongly) send the second target.
	time.Sleep(100 * time.Millisecond)

	calls, _ := p.adapter.snapshot()
	require.Len(t, calls, 1)

	attempts := p.attempts.all()
	require.Len(t, attempts, 1)
	require.Equal(t, dispatch.OutcomeSent, attempts[0].Outcome)

	got, err := p.campaigns.Get(c.ID)
	require.NoError(t, err)
	require.Equal(t, campaign.StatusActive, got.Status)
	require.Equal(t, 1, got.SentCount)
}

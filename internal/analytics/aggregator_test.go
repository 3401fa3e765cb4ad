package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campbot/internal/campaign"
	"campbot/internal/dispatch"
	logx "campbot/pkg/logx"
)

type memSource struct {
	attempts []dispatch.Attempt
}

func (m *memSource) ListAttempts(_ context.Context, campaignID string, from, to time.Time) ([]dispatch.Attempt, error) {
	var out []dispatch.Attempt
	for _, a := range m.attempts {
		if campaignID != "" && a.CampaignID != campaignID {
			continue
		}
		if !from.IsZero() && a.At.Before(from) {
			continue
		}
		if !to.IsZero() && !a.At.Before(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func at(campaignID string, outcome dispatch.Outcome, when time.Time) dispatch.Attempt {
	return dispatch.Attempt{
		CampaignID: campaignID,
		Platform:   "telegram",
		TargetID:   "g1",
		At:         when,
		Outcome:    outcome,
	}
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	src := &memSource{attempts: []dispatch.Attempt{
		at("c1", dispatch.OutcomeSent, t0),
		at("c1", dispatch.OutcomeRetryScheduled, t0.Add(time.Minute)),
		at("c1", dispatch.OutcomeFailed, t0.Add(2*time.Minute)),
		at("c1", dispatch.OutcomeRejected, t0.Add(3*time.Minute)),
		at("c1", dispatch.OutcomeSent, t0.Add(4*time.Minute)),
		at("c2", dispatch.OutcomeSent, t0), // other campaign
	}}
	agg := New(src, campaign.NewStore(nil, logx.Nop()), logx.Nop())

	s, err := agg.Summarize(context.Background(), "c1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Equal(t, 2, s.Sent)
	require.Equal(t, 1, s.Failed)
	require.Equal(t, 1, s.Rejected)
	require.Equal(t, 1, s.Retries)
	require.InDelta(t, 2.0/3.0, s.SuccessRate, 1e-9)
	require.Equal(t, t0, s.FirstAttempt)
	require.Equal(t, t0.Add(4*time.Minute), s.LastAttempt)
}

func TestSummarizeWindow(t *testing.T) {
	t.Parallel()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	src := &memSource{attempts: []dispatch.Attempt{
		at("c1", dispatch.OutcomeSent, t0),
		at("c1", dispatch.OutcomeSent, t0.Add(time.Hour)),
		at("c1", dispatch.OutcomeFailed, t0.Add(2*time.Hour)),
	}}
	agg := New(src, campaign.NewStore(nil, logx.Nop()), logx.Nop())

	s, err := agg.Summarize(context.Background(), "c1", t0.Add(30*time.Minute), t0.Add(90*time.Minute))
	require.NoError(t, err)
	require.Equal(t, 1, s.Sent)
	require.Equal(t, 0, s.Failed)
	require.Equal(t, 1.0, s.SuccessRate)
}

func TestSummarizeEmpty(t *testing.T) {
	t.Parallel()
	agg := New(&memSource{}, campaign.NewStore(nil, logx.Nop()), logx.Nop())

	s, err := agg.Summarize(context.Background(), "missing", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Zero(t, s.Sent)
	require.Zero(t, s.SuccessRate)
	require.True(t, s.FirstAttempt.IsZero())
}

func TestGlobalTotals(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	store := campaign.NewStore(nil, logx.Nop())
	mk := func(platform string, status campaign.Status) {
		c, err := store.Create(ctx, campaign.Campaign{
			Platform: platform,
			Targets:  []string{"g1"},
			Template: "hi",
		}, t0)
		require.NoError(t, err)
		for _, to := range []campaign.Status{campaign.StatusScheduled, campaign.StatusActive, campaign.StatusCompleted} {
			if c.Status == status {
				break
			}
			c, err = store.Transition(ctx, c.ID, to)
			require.NoError(t, err)
		}
	}
	mk("telegram", campaign.StatusActive)
	mk("telegram", campaign.StatusCompleted)
	mk("facebook", campaign.StatusDraft)

	src := &memSource{attempts: []dispatch.Attempt{
		at("c1", dispatch.OutcomeSent, t0),
		at("c2", dispatch.OutcomeSent, t0),
		at("c2", dispatch.OutcomeFailed, t0),
	}}
	agg := New(src, store, logx.Nop())

	totals, err := agg.GlobalTotals(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, totals.Campaigns)
	require.Equal(t, 1, totals.Active)
	require.Equal(t, 1, totals.Completed)
	require.Equal(t, 2, totals.Sent)
	require.Equal(t, 1, totals.Failed)
	require.InDelta(t, 2.0/3.0, totals.SuccessRate, 1e-9)
	require.Equal(t, []string{"facebook", "telegram"}, totals.Platforms)
}

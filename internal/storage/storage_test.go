package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"campbot/internal/campaign"
	"campbot/internal/consent"
	"campbot/internal/dispatch"
	"campbot/internal/quota"
	logx "campbot/pkg/logx"
)

// openStores returns one store per driver so every test runs against both
// backends.
func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "campbot.db")}, logx.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })
	return map[string]Store{
		"sqlite": sq,
		"memory": NewMemory(),
	}
}

func TestOpenDisabled(t *testing.T) {
	t.Parallel()
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		require.NoError(t, err)
		require.Nil(t, st)
	}
	_, err := Open(Config{Driver: "bogus"}, logx.Nop())
	require.Error(t, err)
}

func TestApprovalRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			a := consent.Approval{
				Platform:     "telegram",
				TargetID:     "group-1",
				AdminContact: "@admin",
				ApprovedAt:   now,
			}
			require.NoError(t, st.UpsertApproval(ctx, a))

			// Revocation overwrites the same row.
			a.Revoked = true
			require.NoError(t, st.UpsertApproval(ctx, a))

			got, err := st.ListApprovals(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			require.Equal(t, "group-1", got[0].TargetID)
			require.Equal(t, "@admin", got[0].AdminContact)
			require.True(t, got[0].Revoked)
			require.True(t, got[0].ApprovedAt.Equal(now))
		})
	}
}

func TestCampaignRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	sched, err := campaign.ParseSchedule("every:30m")
	require.NoError(t, err)

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			c := campaign.Campaign{
				ID:         "c1",
				Platform:   "telegram",
				Targets:    []string{"g1", "g2"},
				Template:   "hi {{target}}",
				RateLimit:  90 * time.Second,
				DailyLimit: 25,
				Schedule:   sched,
				Status:     campaign.StatusActive,
				CreatedAt:  now,
				SentCount:  3,
				Disabled:   map[string]string{"g2": "chat not found"},
			}
			require.NoError(t, st.PutCampaign(ctx, c))

			got, err := st.ListCampaigns(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			g := got[0]
			require.Equal(t, c.Targets, g.Targets)
			require.Equal(t, 90*time.Second, g.RateLimit)
			require.Equal(t, 25, g.DailyLimit)
			require.Equal(t, "every:30m0s", g.Schedule.String())
			require.True(t, g.Schedule.Recurring())
			require.Equal(t, campaign.StatusActive, g.Status)
			require.Equal(t, 3, g.SentCount)
			require.Equal(t, "chat not found", g.Disabled["g2"])
			require.True(t, g.CreatedAt.Equal(now))
		})
	}
}

func TestAttemptLogAndLastSent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			put := func(campaignID, target string, outcome dispatch.Outcome, at time.Time) {
				require.NoError(t, st.AppendAttempt(ctx, dispatch.Attempt{
					CampaignID:    campaignID,
					Platform:      "telegram",
					TargetID:      target,
					At:            at,
					Outcome:       outcome,
					AttemptNumber: 1,
				}))
			}
			put("c1", "g1", dispatch.OutcomeSent, t0)
			put("c1", "g1", dispatch.OutcomeSent, t0.Add(time.Hour))
			put("c1", "g2", dispatch.OutcomeFailed, t0.Add(time.Minute))
			put("c2", "g1", dispatch.OutcomeSent, t0.Add(2*time.Hour))

			all, err := st.ListAttempts(ctx, "c1", time.Time{}, time.Time{})
			require.NoError(t, err)
			require.Len(t, all, 3)

			// Half-open range: [t0+1m, t0+1h) keeps only the failure.
			ranged, err := st.ListAttempts(ctx, "c1", t0.Add(time.Minute), t0.Add(time.Hour))
			require.NoError(t, err)
			require.Len(t, ranged, 1)
			require.Equal(t, dispatch.OutcomeFailed, ranged[0].Outcome)

			last, err := st.LastSent(ctx)
			require.NoError(t, err)
			require.Len(t, last, 2)
			byKey := map[string]time.Time{}
			for _, r := range last {
				byKey[r.CampaignID+"/"+r.Target] = r.At
			}
			require.True(t, byKey["c1/g1"].Equal(t0.Add(time.Hour)))
			require.True(t, byKey["c2/g1"].Equal(t0.Add(2*time.Hour)))
		})
	}
}

func TestQuotaCountersRoundTripAndPrune(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	for name, st := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			put := func(day string, count int) {
				require.NoError(t, st.PutQuota(ctx, quota.Counter{
					Platform:   "telegram",
					CampaignID: "c1",
					Day:        day,
					Count:      count,
				}))
			}
			put("2026-02-27", 50)
			put("2026-02-28", 12)
			put("2026-03-01", 1)
			put("2026-03-01", 2) // upsert same day

			got, err := st.ListQuota(ctx)
			require.NoError(t, err)
			require.Len(t, got, 3)

			n, err := st.PruneQuota(ctx, "2026-03-01")
			require.NoError(t, err)
			require.EqualValues(t, 2, n)

			got, err = st.ListQuota(ctx)
			require.NoError(t, err)
			require.Len(t, got, 1)
			require.Equal(t, "2026-03-01", got[0].Day)
			require.Equal(t, 2, got[0].Count)
		})
	}
}

func TestSqliteSurvivesReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "campbot.db")
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	st, err := Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	require.NoError(t, st.UpsertApproval(ctx, consent.Approval{
		Platform: "telegram", TargetID: "g1", ApprovedAt: now,
	}))
	require.NoError(t, st.Close())

	st, err = Open(Config{Driver: "sqlite", Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()

	got, err := st.ListApprovals(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "g1", got[0].TargetID)
}

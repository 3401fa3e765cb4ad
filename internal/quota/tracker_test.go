package quota

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "campbot/pkg/logx"
)

func TestTryConsumeUpToLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := NewTracker(time.UTC, nil, logx.Nop())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		ok, err := tr.TryConsume(ctx, "telegram", "c1", 3, now)
		require.NoError(t, err)
		require.True(t, ok, "consume %d", i)
	}

	ok, err := tr.TryConsume(ctx, "telegram", "c1", 3, now)
	require.NoError(t, err)
	require.False(t, ok, "limit exceeded")
	require.Equal(t, 0, tr.Remaining("telegram", "c1", 3, now))
}

func TestCountersKeyedPerCampaignAndPlatform(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := NewTracker(time.UTC, nil, logx.Nop())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	ok, err := tr.TryConsume(ctx, "telegram", "c1", 1, now)
	require.NoError(t, err)
	require.True(t, ok)

	// Other campaign and other platform have their own budgets.
	require.Equal(t, 1, tr.Remaining("telegram", "c2", 1, now))
	require.Equal(t, 1, tr.Remaining("facebook", "c1", 1, now))
	require.Equal(t, 0, tr.Remaining("telegram", "c1", 1, now))
}

func TestLazyDayRollover(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tr := NewTracker(time.UTC, nil, logx.Nop())

	day1 := time.Date(2026, 3, 1, 23, 59, 0, 0, time.UTC)
	day2 := time.Date(2026, 3, 2, 0, 1, 0, 0, time.UTC)

	ok, err := tr.TryConsume(ctx, "telegram", "c1", 1, day1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, tr.Remaining("telegram", "c1", 1, day1))

	// First touch of the new day starts a fresh zero counter.
	require.Equal(t, 1, tr.Remaining("telegram", "c1", 1, day2))
	ok, err = tr.TryConsume(ctx, "telegram", "c1", 1, day2)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestDayBoundaryUsesReferenceTimezone(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+5", 5*3600)

	// 22:00 UTC is already the next day at UTC+5.
	at := time.Date(2026, 3, 1, 22, 0, 0, 0, time.UTC)
	require.Equal(t, "2026-03-02", DayKey(at, loc))
	require.Equal(t, "2026-03-01", DayKey(at, time.UTC))
}

func TestRestoreSurvivesRestart(t *testing.T) {
	t.Parallel()
	tr := NewTracker(time.UTC, nil, logx.Nop())
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tr.Restore([]Counter{{Platform: "telegram", CampaignID: "c1", Day: "2026-03-01", Count: 2}})
	require.Equal(t, 1, tr.Remaining("telegram", "c1", 3, now))
}

func TestDropBefore(t *testing.T) {
	t.Parallel()
	tr := NewTracker(time.UTC, nil, logx.Nop())
	tr.Restore([]Counter{
		{Platform: "telegram", CampaignID: "c1", Day: "2026-02-20", Count: 5},
		{Platform: "telegram", CampaignID: "c1", Day: "2026-03-01", Count: 1},
	})

	require.Equal(t, 1, tr.DropBefore("2026-03-01"))
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	require.Equal(t, 2, tr.Remaining("telegram", "c1", 3, now))
}

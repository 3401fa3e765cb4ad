package consent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	logx "campbot/pkg/logx"
)

type recordingStore struct {
	upserts []Approval
}

func (s *recordingStore) UpsertApproval(_ context.Context, a Approval) error {
	s.upserts = append(s.upserts, a)
	return nil
}

func TestApproveIdempotent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := &recordingStore{}
	r := NewRegistry(store, logx.Nop())

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	first, err := r.Approve(ctx, "telegram", "g1", "@admin", t0)
	require.NoError(t, err)

	// Second approval is a no-op returning the original record.
	second, err := r.Approve(ctx, "telegram", "g1", "@someone-else", t0.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Len(t, store.upserts, 1)

	require.Len(t, r.List(), 1)
	require.True(t, r.IsApproved("telegram", "g1"))
}

func TestRevokeAndReapprove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewRegistry(&recordingStore{}, logx.Nop())

	t0 := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, err := r.Approve(ctx, "telegram", "g1", "@admin", t0)
	require.NoError(t, err)

	require.NoError(t, r.Revoke(ctx, "telegram", "g1"))
	require.False(t, r.IsApproved("telegram", "g1"))

	// Record is retained for audit, flagged revoked.
	all := r.List()
	require.Len(t, all, 1)
	require.True(t, all[0].Revoked)

	// Approving a revoked target un-revokes with a fresh record.
	again, err := r.Approve(ctx, "telegram", "g1", "@admin2", t0.Add(2*time.Hour))
	require.NoError(t, err)
	require.False(t, again.Revoked)
	require.Equal(t, "@admin2", again.AdminContact)
	require.True(t, r.IsApproved("telegram", "g1"))
}

func TestRevokeUnknownTarget(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	err := r.Revoke(context.Background(), "telegram", "nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestIsApprovedKeyedByPlatform(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	r := NewRegistry(nil, logx.Nop())

	_, err := r.Approve(ctx, "telegram", "g1", "@admin", time.Now())
	require.NoError(t, err)

	require.True(t, r.IsApproved("telegram", "g1"))
	require.False(t, r.IsApproved("facebook", "g1"))
	require.False(t, r.IsApproved("telegram", "g2"))
}

func TestRestore(t *testing.T) {
	t.Parallel()
	r := NewRegistry(nil, logx.Nop())
	r.Restore([]Approval{
		{Platform: "telegram", TargetID: "g1", ApprovedAt: time.Now()},
		{Platform: "facebook", TargetID: "g2", Revoked: true},
	})

	require.True(t, r.IsApproved("telegram", "g1"))
	require.False(t, r.IsApproved("facebook", "g2"))
}

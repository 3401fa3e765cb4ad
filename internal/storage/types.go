package storage

import (
	"context"
	"errors"
	"time"

	"campbot/internal/campaign"
	"campbot/internal/consent"
	"campbot/internal/dispatch"
	"campbot/internal/quota"
	"campbot/internal/scheduler"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "sqlite": SQLite database file
//   - "memory": in-process only, lost on exit (tests, dry runs)
//
// If Driver is empty or "none", storage is disabled and the engine runs
// purely in memory.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the persistence API. It satisfies the write-through interfaces
// of the domain packages (consent.Store, campaign.Persister, dispatch.Log,
// quota.Store, analytics.Source) plus the restore reads used at startup.
type Store interface {
	UpsertApproval(ctx context.Context, a consent.Approval) error
	ListApprovals(ctx context.Context) ([]consent.Approval, error)

	PutCampaign(ctx context.Context, c campaign.Campaign) error
	ListCampaigns(ctx context.Context) ([]campaign.Campaign, error)

	AppendAttempt(ctx context.Context, a dispatch.Attempt) error
	// ListAttempts filters by campaign (empty means all) and the
	// half-open range [from, to); zero bounds are open.
	ListAttempts(ctx context.Context, campaignID string, from, to time.Time) ([]dispatch.Attempt, error)
	// LastSent returns the newest successful-send time per
	// (campaign, target) pair, for scheduler restore.
	LastSent(ctx context.Context) ([]scheduler.SentRecord, error)

	PutQuota(ctx context.Context, c quota.Counter) error
	ListQuota(ctx context.Context) ([]quota.Counter, error)
	// PruneQuota deletes counters for days before the given day key.
	PruneQuota(ctx context.Context, beforeDay string) (int64, error)

	Close() error
}

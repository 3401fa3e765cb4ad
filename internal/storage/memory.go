package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"campbot/internal/campaign"
	"campbot/internal/consent"
	"campbot/internal/dispatch"
	"campbot/internal/quota"
	"campbot/internal/scheduler"
)

type approvalKey struct {
	platform string
	target   string
}

type quotaKey struct {
	platform   string
	campaignID string
	day        string
}

// memoryStore keeps everything in process. It mirrors the sqlite store's
// semantics so the rest of the engine cannot tell them apart.
type memoryStore struct {
	mu        sync.Mutex
	approvals map[approvalKey]consent.Approval
	campaigns map[string]campaign.Campaign
	attempts  []dispatch.Attempt
	quotas    map[quotaKey]quota.Counter
}

func NewMemory() Store {
	return &memoryStore{
		approvals: map[approvalKey]consent.Approval{},
		campaigns: map[string]campaign.Campaign{},
		quotas:    map[quotaKey]quota.Counter{},
	}
}

func (m *memoryStore) Close() error { return nil }

func (m *memoryStore) UpsertApproval(_ context.Context, a consent.Approval) error {
	m.mu.Lock()
	m.approvals[approvalKey{a.Platform, a.TargetID}] = a
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) ListApprovals(_ context.Context) ([]consent.Approval, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]consent.Approval, 0, len(m.approvals))
	for _, a := range m.approvals {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out, nil
}

func (m *memoryStore) PutCampaign(_ context.Context, c campaign.Campaign) error {
	m.mu.Lock()
	m.campaigns[c.ID] = c
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) ListCampaigns(_ context.Context) ([]campaign.Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]campaign.Campaign, 0, len(m.campaigns))
	for _, c := range m.campaigns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *memoryStore) AppendAttempt(_ context.Context, a dispatch.Attempt) error {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	m.mu.Lock()
	m.attempts = append(m.attempts, a)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) ListAttempts(_ context.Context, campaignID string, from, to time.Time) ([]dispatch.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *memoryStore) LastSent(_ context.Context) ([]scheduler.SentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	type pair struct{ campaignID, target string }
	latest := map[pair]time.Time{}
	for _, a := range m.attempts {
		if a.Outcome != dispatch.OutcomeSent {
			continue
		}
		k := pair{a.CampaignID, a.TargetID}
		if a.At.After(latest[k]) {
			latest[k] = a.At
		}
	}
	out := make([]scheduler.SentRecord, 0, len(latest))
	for k, at := range latest {
		out = append(out, scheduler.SentRecord{CampaignID: k.campaignID, Target: k.target, At: at})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CampaignID != out[j].CampaignID {
			return out[i].CampaignID < out[j].CampaignID
		}
		return out[i].Target < out[j].Target
	})
	return out, nil
}

func (m *memoryStore) PutQuota(_ context.Context, c quota.Counter) error {
	m.mu.Lock()
	m.quotas[quotaKey{c.Platform, c.CampaignID, c.Day}] = c
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) ListQuota(_ context.Context) ([]quota.Counter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]quota.Counter, 0, len(m.quotas))
	for _, c := range m.quotas {
		out = append(out, c)
	}
	return out, nil
}

func (m *memoryStore) PruneQuota(_ context.Context, beforeDay string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k := range m.quotas {
		if k.day < beforeDay {
			delete(m.quotas, k)
			n++
		}
	}
	return n, nil
}

// Package quota enforces the per-day send ceiling for each
// (platform, campaign) pair. Day rollover is lazy: the first operation
// touching a new day key starts from a zero counter, and old counters stay
// behind for analytics until the cleanup job prunes them.
package quota

import (
	"context"
	"sync"
	"time"

	logx "campbot/pkg/logx"
)

const dayKeyFormat = "2006-01-02"

// DayKey buckets a point in time into a calendar day of the reference
// timezone.
func DayKey(now time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return now.In(loc).Format(dayKeyFormat)
}

// Counter is one persisted (platform, campaign, day) count.
type Counter struct {
	Platform   string
	CampaignID string
	Day        string
	Count      int
}

// Store persists counters. Implemented by internal/storage.
type Store interface {
	PutQuota(ctx context.Context, c Counter) error
}

type key struct {
	platform string
	campaign string
	day      string
}

// Tracker holds the live counters with write-through persistence.
type Tracker struct {
	mu     sync.Mutex
	loc    *time.Location
	counts map[key]int

	store Store
	log   logx.Logger
}

func NewTracker(loc *time.Location, store Store, log logx.Logger) *Tracker {
	if loc == nil {
		loc = time.UTC
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Tracker{
		loc:    loc,
		counts: map[key]int{},
		store:  store,
		log:    log,
	}
}

// Restore seeds counters from persisted rows at startup so a restart cannot
// reset a day's budget.
func (t *Tracker) Restore(rows []Counter) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range rows {
		t.counts[key{c.Platform, c.CampaignID, c.Day}] = c.Count
	}
}

// TryConsume takes one unit of today's budget if any remains. The check and
// the increment are one atomic step. limit <= 0 means unlimited.
func (t *Tracker) TryConsume(ctx context.Context, platform, campaignID string, limit int, now time.Time) (bool, error) {
	day := DayKey(now, t.loc)

	t.mu.Lock()
	defer t.mu.Unlock()

	k := key{platform, campaignID, day}
	cur := t.counts[k]
	if limit > 0 && cur >= limit {
		return false, nil
	}

	if t.store != nil {
		err := t.store.PutQuota(ctx, Counter{Platform: platform, CampaignID: campaignID, Day: day, Count: cur + 1})
		if err != nil {
			return false, err
		}
	}
	t.counts[k] = cur + 1
	return true, nil
}

// Remaining reports today's leftover budget without consuming any.
func (t *Tracker) Remaining(platform, campaignID string, limit int, now time.Time) int {
	if limit <= 0 {
		return int(^uint(0) >> 1)
	}
	day := DayKey(now, t.loc)

	t.mu.Lock()
	cur := t.counts[key{platform, campaignID, day}]
	t.mu.Unlock()

	if cur >= limit {
		return 0
	}
	return limit - cur
}

// Location returns the reference timezone used for day boundaries.
func (t *Tracker) Location() *time.Location { return t.loc }

// DropBefore forgets in-memory counters older than the given day key.
// Persisted rows are pruned separately by the storage cleanup job.
func (t *Tracker) DropBefore(day string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for k := range t.counts {
		if k.day < day {
			delete(t.counts, k)
			n++
		}
	}
	return n
}

// Package consent tracks which targets (a group or channel on a platform)
// have been cleared by their admin to receive campaign messages.
//
// Revocation is logical: the approval record stays around with Revoked set,
// so the audit trail of who approved what is never lost.
package consent

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	logx "campbot/pkg/logx"
)

var ErrNotFound = errors.New("target was never approved")

// Approval is one (platform, target) consent record.
type Approval struct {
	Platform     string
	TargetID     string
	AdminContact string
	ApprovedAt   time.Time
	Revoked      bool
}

// Store persists approvals. Implemented by internal/storage.
type Store interface {
	UpsertApproval(ctx context.Context, a Approval) error
}

type key struct {
	platform string
	target   string
}

// Registry is the in-memory approval set with write-through persistence.
// Reads take the read lock only; record updates are atomic.
type Registry struct {
	mu    sync.RWMutex
	byKey map[key]Approval

	store Store
	log   logx.Logger
}

func NewRegistry(store Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{
		byKey: map[key]Approval{},
		store: store,
		log:   log,
	}
}

// Restore seeds the registry from persisted rows. Called once at startup
// before the scheduler runs.
func (r *Registry) Restore(rows []Approval) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range rows {
		r.byKey[key{a.Platform, a.TargetID}] = a
	}
}

// Approve records admin consent for a target.
//
// Re-approving an already-approved, non-revoked target is a no-op returning
// the existing record. Approving a revoked target creates a fresh approval
// (un-revokes).
func (r *Registry) Approve(ctx context.Context, platform, targetID, adminContact string, now time.Time) (Approval, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{platform, targetID}
	if cur, ok := r.byKey[k]; ok && !cur.Revoked {
		return cur, nil
	}

	a := Approval{
		Platform:     platform,
		TargetID:     targetID,
		AdminContact: adminContact,
		ApprovedAt:   now,
	}
	if r.store != nil {
		if err := r.store.UpsertApproval(ctx, a); err != nil {
			return Approval{}, err
		}
	}
	r.byKey[k] = a
	r.log.Info("target approved",
		logx.String("platform", platform),
		logx.String("target", targetID),
		logx.String("admin", adminContact))
	return a, nil
}

// Revoke flags a target as no longer consenting. The record is kept.
func (r *Registry) Revoke(ctx context.Context, platform, targetID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{platform, targetID}
	cur, ok := r.byKey[k]
	if !ok {
		return ErrNotFound
	}
	if cur.Revoked {
		return nil
	}

	cur.Revoked = true
	if r.store != nil {
		if err := r.store.UpsertApproval(ctx, cur); err != nil {
			return err
		}
	}
	r.byKey[k] = cur
	r.log.Info("target revoked",
		logx.String("platform", platform),
		logx.String("target", targetID))
	return nil
}

// IsApproved reports whether the target currently consents.
func (r *Registry) IsApproved(platform, targetID string) bool {
	r.mu.RLock()
	a, ok := r.byKey[key{platform, targetID}]
	r.mu.RUnlock()
	return ok && !a.Revoked
}

// List returns all approval records (revoked included), ordered by
// platform then target.
func (r *Registry) List() []Approval {
	r.mu.RLock()
	out := make([]Approval, 0, len(r.byKey))
	for _, a := range r.byKey {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Platform != out[j].Platform {
			return out[i].Platform < out[j].Platform
		}
		return out[i].TargetID < out[j].TargetID
	})
	return out
}

package campaign

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	logx "campbot/pkg/logx"
)

// Persister writes campaign records through to durable storage.
// Implemented by internal/storage.
type Persister interface {
	PutCampaign(ctx context.Context, c Campaign) error
}

// Filter narrows List results. Zero values match everything.
type Filter struct {
	Status   Status
	Platform string
}

// Store is the owner of all campaign records. Reads take the read lock
// only; each record update is applied as one atomic swap so a reader never
// observes a half-written campaign.
type Store struct {
	mu   sync.RWMutex
	byID map[string]Campaign

	persister Persister
	log       logx.Logger
}

func NewStore(p Persister, log logx.Logger) *Store {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Store{
		byID:      map[string]Campaign{},
		persister: p,
		log:       log,
	}
}

// Restore seeds the store from persisted rows at startup.
func (s *Store) Restore(rows []Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range rows {
		s.byID[c.ID] = c.clone()
	}
}

// Create registers a new campaign in Draft. An empty ID gets a generated
// one; CreatedAt is stamped from now.
func (s *Store) Create(ctx context.Context, c Campaign, now time.Time) (Campaign, error) {
	if strings.TrimSpace(c.Platform) == "" {
		return Campaign{}, errors.New("campaign platform is required")
	}
	if len(c.Targets) == 0 {
		return Campaign{}, errors.New("campaign needs at least one target")
	}
	if strings.TrimSpace(c.Template) == "" {
		return Campaign{}, errors.New("campaign message template is required")
	}

	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Status = StatusDraft
	c.CreatedAt = now
	c.SentCount = 0
	c.FailedCount = 0

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[c.ID]; exists {
		return Campaign{}, errors.New("campaign id already exists: " + c.ID)
	}
	if err := s.persist(ctx, c); err != nil {
		return Campaign{}, err
	}
	s.byID[c.ID] = c.clone()
	s.log.Info("campaign created",
		logx.String("campaign", c.ID),
		logx.String("platform", c.Platform),
		logx.Int("targets", len(c.Targets)),
		logx.String("schedule", c.Schedule.String()))
	return c, nil
}

func (s *Store) Get(id string) (Campaign, error) {
	s.mu.RLock()
	c, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return Campaign{}, ErrNotFound
	}
	return c.clone(), nil
}

// List returns matching campaigns ordered by creation time, oldest first.
// The scheduler relies on this order for its fairness tie-break.
func (s *Store) List(f Filter) []Campaign {
	s.mu.RLock()
	out := make([]Campaign, 0, len(s.byID))
	for _, c := range s.byID {
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Platform != "" && c.Platform != f.Platform {
			continue
		}
		out = append(out, c.clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Transition moves a campaign to a new lifecycle state. Invalid requests
// fail with *InvalidTransitionError and leave the record untouched.
func (s *Store) Transition(ctx context.Context, id string, to Status) (Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return Campaign{}, ErrNotFound
	}
	if !c.Status.CanTransition(to) {
		return Campaign{}, &InvalidTransitionError{ID: id, From: c.Status, To: to}
	}

	updated := c.clone()
	updated.Status = to
	if err := s.persist(ctx, updated); err != nil {
		return Campaign{}, err
	}
	s.byID[id] = updated
	s.log.Info("campaign state changed",
		logx.String("campaign", id),
		logx.String("from", string(c.Status)),
		logx.String("to", string(to)))
	return updated.clone(), nil
}

// RecordOutcome bumps the campaign's running sent/failed totals.
func (s *Store) RecordOutcome(ctx context.Context, id string, sent, failed int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	updated := c.clone()
	updated.SentCount += sent
	updated.FailedCount += failed
	if err := s.persist(ctx, updated); err != nil {
		return err
	}
	s.byID[id] = updated
	return nil
}

// DisableTarget excludes a target from further dispatch for this campaign
// after a permanent delivery failure.
func (s *Store) DisableTarget(ctx context.Context, id, target, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	updated := c.clone()
	if updated.Disabled == nil {
		updated.Disabled = map[string]string{}
	}
	updated.Disabled[target] = reason
	if err := s.persist(ctx, updated); err != nil {
		return err
	}
	s.byID[id] = updated
	s.log.Warn("target disabled for campaign",
		logx.String("campaign", id),
		logx.String("target", target),
		logx.String("reason", reason))
	return nil
}

func (s *Store) persist(ctx context.Context, c Campaign) error {
	if s.persister == nil {
		return nil
	}
	return s.persister.PutCampaign(ctx, c)
}

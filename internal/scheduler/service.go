package scheduler

import (
	"context"
	"sync"
	"time"

	"campbot/internal/campaign"
	"campbot/internal/dispatch"
	"campbot/internal/policy"
	logx "campbot/pkg/logx"
)

const defaultTick = 5 * time.Second

// Config controls the tick loop.
type Config struct {
	// Enabled controls whether the loop starts automatically at boot;
	// operators can start a disabled scheduler by hand.
	Enabled bool
	// Tick is the interval between scheduler passes.
	Tick time.Duration
}

func (c Config) withDefaults() Config {
	if c.Tick <= 0 {
		c.Tick = defaultTick
	}
	return c
}

// CampaignStore is the slice of the campaign store the scheduler drives.
type CampaignStore interface {
	List(f campaign.Filter) []campaign.Campaign
	Transition(ctx context.Context, id string, to campaign.Status) (campaign.Campaign, error)
}

// ConsentChecker answers whether a target may be messaged at all.
type ConsentChecker interface {
	IsApproved(platform, targetID string) bool
}

// Validator screens campaign templates before any target is offered.
type Validator interface {
	Validate(text string) policy.Result
}

// Dispatcher accepts per-target send jobs.
type Dispatcher interface {
	Submit(job dispatch.Job) error
	InFlight(campaignID string) int
}

// Deps are the scheduler's collaborators.
type Deps struct {
	Campaigns CampaignStore
	Consent   ConsentChecker
	Validator Validator
	Dispatch  Dispatcher

	// Clock defaults to time.Now; tests inject a fixed clock.
	Clock func() time.Time
}

// SentRecord restores one last-sent timestamp from storage.
type SentRecord struct {
	CampaignID string
	Target     string
	At         time.Time
}

type sentKey struct {
	campaignID string
	target     string
}

// Service is the campaign tick loop.
type Service struct {
	deps  Deps
	log   logx.Logger
	clock func() time.Time

	cfgMu sync.Mutex
	cfg   Config

	lastMu   sync.Mutex
	last     map[sentKey]time.Time
	lastTick time.Time

	mu        sync.Mutex
	running   bool
	runCancel context.CancelFunc
	wg        sync.WaitGroup
}

func New(cfg Config, deps Deps, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		deps:  deps,
		log:   log,
		clock: clock,
		cfg:   cfg.withDefaults(),
		last:  map[sentKey]time.Time{},
	}
}

// Apply swaps the runtime config. A tick change takes effect after the
// current interval fires.
func (s *Service) Apply(cfg Config) {
	s.cfgMu.Lock()
	s.cfg = cfg.withDefaults()
	s.cfgMu.Unlock()
}

func (s *Service) tickInterval() time.Duration {
	s.cfgMu.Lock()
	defer s.cfgMu.Unlock()
	return s.cfg.Tick
}

// MarkSent records a successful send. Wire it as the dispatcher's OnSent
// callback.
func (s *Service) MarkSent(campaignID, target string, at time.Time) {
	s.lastMu.Lock()
	k := sentKey{campaignID, target}
	if at.After(s.last[k]) {
		s.last[k] = at
	}
	s.lastMu.Unlock()
}

// RestoreLastSent seeds last-sent times from persisted attempts, so restart
// does not re-send one-shot campaigns or break recurring spacing.
func (s *Service) RestoreLastSent(rows []SentRecord) {
	s.lastMu.Lock()
	for _, r := range rows {
		k := sentKey{r.CampaignID, r.Target}
		if r.At.After(s.last[k]) {
			s.last[k] = r.At
		}
	}
	s.lastMu.Unlock()
}

func (s *Service) lastSentAt(campaignID, target string) time.Time {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.last[sentKey{campaignID, target}]
}

// Snapshot is a point-in-time view for the status command.
type Snapshot struct {
	Running      bool
	Tick         time.Duration
	LastTickAt   time.Time
	TrackedSends int
}

func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	s.lastMu.Lock()
	tracked := len(s.last)
	lastTick := s.lastTick
	s.lastMu.Unlock()

	return Snapshot{
		Running:      running,
		Tick:         s.tickInterval(),
		LastTickAt:   lastTick,
		TrackedSends: tracked,
	}
}

// Start launches the tick loop. The first pass runs immediately.
func (s *Service) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.runCancel = cancel
	s.wg.Add(1)
	go s.run(runCtx)
	s.log.Info("service started", logx.Duration("tick", s.tickInterval()))
	return nil
}

// Stop cancels the loop and waits for the in-progress pass to finish, or
// until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.runCancel
	s.runCancel = nil
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		// best-effort
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) run(ctx context.Context) {
	defer s.wg.Done()

	tick := s.tickInterval()
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
			if cur := s.tickInterval(); cur != tick {
				tick = cur
				ticker.Reset(tick)
			}
		}
	}
}

package dispatch

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"time"

	logx "campbot/pkg/logx"
)

var (
	ErrStopped   = errors.New("dispatch service stopped")
	ErrQueueFull = errors.New("dispatch queue full")
	// ErrDuplicate means the (campaign, target) pair is already queued or
	// in flight; the scheduler simply re-offers it on a later tick.
	ErrDuplicate = errors.New("dispatch already pending for target")
)

type pendKey struct {
	campaignID string
	target     string
}

// Service runs one bounded worker per platform. Submissions for a platform
// are processed in order; distinct platforms run concurrently.
type Service struct {
	cfg   Config
	deps  Deps
	log   logx.Logger
	clock func() time.Time

	mu        sync.Mutex
	running   bool
	runCtx    context.Context
	runCancel context.CancelFunc
	queues    map[string]chan Job
	workerWG  sync.WaitGroup

	pendMu      sync.Mutex
	pending     map[pendKey]struct{}
	perCampaign map[string]int
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
		cfg:         cfg.withDefaults(),
		deps:        deps,
		log:         log,
		clock:       clock,
		queues:      map[string]chan Job{},
		pending:     map[pendKey]struct{}{},
		perCampaign: map[string]int{},
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.runCtx, s.runCancel = context.WithCancel(ctx)
	s.log.Info("dispatch service started", logx.Int("queue_depth", s.cfg.QueueDepth))
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.runCancel
	s.runCancel = nil
	s.runCtx = nil
	s.queues = map[string]chan Job{}
	s.mu.Unlock()

	cancel()

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("dispatch service stopped")
	case <-ctx.Done():
		s.log.Warn("dispatch service stop timed out; workers abandoned")
	}
}

// Submit queues one job on its platform's worker. A deny is cheap: the
// scheduler treats any error as "try again next tick".
func (s *Service) Submit(job Job) error {
	pk := pendKey{job.Campaign.ID, job.Target}

	s.pendMu.Lock()
	if _, dup := s.pending[pk]; dup {
		s.pendMu.Unlock()
		return ErrDuplicate
	}
	s.pending[pk] = struct{}{}
	s.perCampaign[job.Campaign.ID]++
	s.pendMu.Unlock()

	q, err := s.platformQueue(job.Campaign.Platform)
	if err != nil {
		s.release(pk)
		return err
	}

	select {
	case q <- job:
		return nil
	default:
		s.release(pk)
		return ErrQueueFull
	}
}

// InFlight reports queued plus executing jobs for a campaign. The scheduler
// consults it before declaring a one-shot campaign complete.
func (s *Service) InFlight(campaignID string) int {
	s.pendMu.Lock()
	n := s.perCampaign[campaignID]
	s.pendMu.Unlock()
	return n
}

func (s *Service) release(pk pendKey) {
	s.pendMu.Lock()
	delete(s.pending, pk)
	if n := s.perCampaign[pk.campaignID]; n <= 1 {
		delete(s.perCampaign, pk.campaignID)
	} else {
		s.perCampaign[pk.campaignID] = n - 1
	}
	s.pendMu.Unlock()
}

// platformQueue returns the platform's queue, creating queue and worker on
// first use.
func (s *Service) platformQueue(platform string) (chan Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil, ErrStopped
	}
	if q, ok := s.queues[platform]; ok {
		return q, nil
	}

	q := make(chan Job, s.cfg.QueueDepth)
	s.queues[platform] = q
	runCtx := s.runCtx

	s.workerWG.Add(1)
	go func() {
		defer s.workerWG.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("panic in dispatch worker",
					logx.String("platform", platform),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		s.log.Debug("dispatch worker started", logx.String("platform", platform))
		s.worker(runCtx, q)
		s.log.Debug("dispatch worker stopped", logx.String("platform", platform))
	}()
	return q, nil
}

func (s *Service) worker(ctx context.Context, queue <-chan Job) {
	for {
		// Fast-exit check so cancellation wins over queued work.
		select {
		case <-ctx.Done():
			return
		default:
		}

		select {
		case <-ctx.Done():
			return
		case job := <-queue:
			s.execOne(ctx, job)
			s.release(pendKey{job.Campaign.ID, job.Target})
		}
	}
}

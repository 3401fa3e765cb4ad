// Package ratelimit enforces minimum spacing between consecutive sends on
// the same platform. The limit models platform-wide flood control for the
// sending account, so all campaigns targeting one platform share one budget.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one TryAcquire call. A deny is a deferral,
// not an error; RetryAfter says how long until the next slot opens.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

type entry struct {
	lim     *rate.Limiter
	spacing time.Duration
}

// Limiter hands out send slots per platform. The check and the state update
// are one atomic step under the mutex, so two concurrent callers can never
// both observe "allowed" inside the same spacing window.
type Limiter struct {
	mu          sync.Mutex
	perPlatform map[string]*entry
}

func New() *Limiter {
	return &Limiter{perPlatform: map[string]*entry{}}
}

// TryAcquire consumes the platform's send slot if the spacing since the last
// send has elapsed. spacing comes from the campaign being dispatched; when
// campaigns with different spacings share a platform, the most recent
// requested spacing governs the window.
func (l *Limiter) TryAcquire(platform string, spacing time.Duration, now time.Time) Decision {
	if spacing <= 0 {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.perPlatform[platform]
	if !ok {
		e = &entry{lim: rate.NewLimiter(rate.Every(spacing), 1), spacing: spacing}
		l.perPlatform[platform] = e
	} else if e.spacing != spacing {
		e.lim.SetLimitAt(now, rate.Every(spacing))
		e.spacing = spacing
	}

	res := e.lim.ReserveN(now, 1)
	if !res.OK() {
		return Decision{RetryAfter: spacing}
	}
	if d := res.DelayFrom(now); d > 0 {
		// Not due yet; hand the token back rather than queueing.
		res.CancelAt(now)
		return Decision{RetryAfter: d}
	}
	return Decision{Allowed: true}
}

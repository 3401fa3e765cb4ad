// Package sim is a stand-in platform integration for platforms without a
// real API client yet (facebook, instagram). It logs each delivery and
// reports success after a short artificial latency, so campaign flows can
// be exercised end to end without external credentials.
package sim

import (
	"context"
	"time"

	logx "campbot/pkg/logx"
)

type Adapter struct {
	log     logx.Logger
	latency time.Duration
}

// New returns a simulated adapter. latency <= 0 means no delay.
func New(latency time.Duration, log logx.Logger) *Adapter {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{log: log, latency: latency}
}

func (a *Adapter) Send(ctx context.Context, platform, targetID, text string) error {
	if a.latency > 0 {
		t := time.NewTimer(a.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	a.log.Info("simulated delivery",
		logx.String("platform", platform),
		logx.String("target", targetID),
		logx.Int("chars", len(text)))
	return nil
}

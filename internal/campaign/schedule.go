package campaign

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// ScheduleKind describes the normalized kind of a campaign schedule.
type ScheduleKind int

const (
	// KindImmediate runs as soon as the campaign is started.
	KindImmediate ScheduleKind = iota
	// KindRecurring re-sends to each target per interval or cron expression.
	KindRecurring
	// KindWindowed is a one-shot constrained to a [start, end) time window;
	// the campaign completes when the window elapses.
	KindWindowed
)

// Schedule is a parsed campaign schedule. Raw is the canonical string form
// persisted to storage; re-parsing Raw reproduces the schedule.
//
// Supported forms:
//   - "" / "now" / "immediate": immediate one-shot
//   - Go duration ("30m", "2h") or "every:30m": recurring per interval
//   - cron expression ("*/10 * * * *", "@hourly") or "cron:0 9 * * *":
//     recurring per cron fire times
//   - "window:<RFC3339>/<RFC3339>": one-shot inside the window
type Schedule struct {
	Kind  ScheduleKind
	Raw   string
	Every time.Duration
	Start time.Time
	End   time.Time

	cronSched cron.Schedule
}

var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule parses a schedule string. The zero raw string means
// immediate.
func ParseSchedule(raw string) (Schedule, error) {
	s := strings.TrimSpace(raw)
	low := strings.ToLower(s)

	switch low {
	case "", "now", "immediate":
		return Schedule{Kind: KindImmediate, Raw: "now"}, nil
	}

	if strings.HasPrefix(low, "window:") {
		v := strings.TrimSpace(s[len("window:"):])
		parts := strings.SplitN(v, "/", 2)
		if len(parts) != 2 {
			return Schedule{}, fmt.Errorf("invalid window %q (use window:<start>/<end> with RFC3339 times)", raw)
		}
		start, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[0]))
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid window start: %w", err)
		}
		end, err := time.Parse(time.RFC3339, strings.TrimSpace(parts[1]))
		if err != nil {
			return Schedule{}, fmt.Errorf("invalid window end: %w", err)
		}
		if !end.After(start) {
			return Schedule{}, fmt.Errorf("window end must be after start")
		}
		return Schedule{
			Kind:  KindWindowed,
			Raw:   "window:" + start.Format(time.RFC3339) + "/" + end.Format(time.RFC3339),
			Start: start,
			End:   end,
		}, nil
	}

	if strings.HasPrefix(low, "cron:") {
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return Schedule{}, fmt.Errorf("cron schedule required after 'cron:'")
		}
		return parseCron(expr)
	}
	if strings.HasPrefix(low, "every:") {
		v := strings.TrimSpace(s[len("every:"):])
		return parseEvery(v)
	}

	// Heuristics: any whitespace or leading '@' means cron.
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return parseCron(s)
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return Schedule{}, fmt.Errorf("interval must be > 0")
		}
		return Schedule{Kind: KindRecurring, Raw: "every:" + d.String(), Every: d}, nil
	}

	return Schedule{}, fmt.Errorf(
		"invalid schedule %q (use 'now', a duration like '30m', cron like '*/10 * * * *', or window:<start>/<end>)",
		raw,
	)
}

func parseCron(expr string) (Schedule, error) {
	cs, err := cronParser.Parse(expr)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid cron %q: %w", expr, err)
	}
	return Schedule{Kind: KindRecurring, Raw: "cron:" + expr, cronSched: cs}, nil
}

func parseEvery(v string) (Schedule, error) {
	if v == "" {
		return Schedule{}, fmt.Errorf("interval required")
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return Schedule{}, fmt.Errorf("invalid interval %q (use a Go duration like '30m'/'2h30m')", v)
	}
	if d <= 0 {
		return Schedule{}, fmt.Errorf("interval must be > 0")
	}
	return Schedule{Kind: KindRecurring, Raw: "every:" + d.String(), Every: d}, nil
}

// Recurring reports whether targets become due again after a send.
func (s Schedule) Recurring() bool { return s.Kind == KindRecurring }

// StartReached reports whether the schedule's start condition is satisfied.
func (s Schedule) StartReached(now time.Time) bool {
	if s.Kind == KindWindowed {
		return !now.Before(s.Start)
	}
	return true
}

// Elapsed reports whether the schedule can never fire again.
func (s Schedule) Elapsed(now time.Time) bool {
	return s.Kind == KindWindowed && !now.Before(s.End)
}

// DueSince reports whether a recurring target that was last sent to at
// lastSent is due again at now. A zero lastSent is always due.
func (s Schedule) DueSince(lastSent, now time.Time) bool {
	if s.Kind != KindRecurring {
		return lastSent.IsZero()
	}
	if lastSent.IsZero() {
		return true
	}
	if s.cronSched != nil {
		next := s.cronSched.Next(lastSent)
		return !next.IsZero() && !next.After(now)
	}
	if s.Every > 0 {
		return now.Sub(lastSent) >= s.Every
	}
	return false
}

func (s Schedule) String() string {
	if s.Raw == "" {
		return "now"
	}
	return s.Raw
}

package campaign

import (
	"testing"
	"time"
)

func TestParseScheduleVariants(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		raw      string
		kind     ScheduleKind
		duration time.Duration
	}{
		{name: "empty", raw: "", kind: KindImmediate},
		{name: "now", raw: "now", kind: KindImmediate},
		{name: "immediate", raw: "Immediate", kind: KindImmediate},
		{name: "duration", raw: "30m", kind: KindRecurring, duration: 30 * time.Minute},
		{name: "prefixed interval", raw: "every:45s", kind: KindRecurring, duration: 45 * time.Second},
		{name: "cron", raw: "*/5 * * * *", kind: KindRecurring},
		{name: "prefixed cron", raw: "cron:0 9 * * *", kind: KindRecurring},
		{name: "descriptor", raw: "@hourly", kind: KindRecurring},
		{name: "window", raw: "window:2026-03-01T09:00:00Z/2026-03-01T17:00:00Z", kind: KindWindowed},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSchedule(tt.raw)
			if err != nil {
				t.Fatalf("ParseSchedule(%q) error: %v", tt.raw, err)
			}
			if got.Kind != tt.kind {
				t.Fatalf("Kind = %v, want %v", got.Kind, tt.kind)
			}
			if tt.duration != 0 && got.Every != tt.duration {
				t.Fatalf("Every = %v, want %v", got.Every, tt.duration)
			}
			// Raw round-trips to an equivalent schedule.
			again, err := ParseSchedule(got.Raw)
			if err != nil {
				t.Fatalf("re-parse %q: %v", got.Raw, err)
			}
			if again.Kind != got.Kind {
				t.Fatalf("round-trip Kind = %v, want %v", again.Kind, got.Kind)
			}
		})
	}
}

func TestParseScheduleInvalid(t *testing.T) {
	t.Parallel()
	for _, raw := range []string{
		"not-a-schedule",
		"every:",
		"every:-5m",
		"cron:",
		"window:2026-03-01T09:00:00Z",
		"window:2026-03-01T17:00:00Z/2026-03-01T09:00:00Z",
	} {
		if _, err := ParseSchedule(raw); err == nil {
			t.Fatalf("ParseSchedule(%q): expected error", raw)
		}
	}
}

func TestWindowBounds(t *testing.T) {
	t.Parallel()
	s, err := ParseSchedule("window:2026-03-01T09:00:00Z/2026-03-01T17:00:00Z")
	if err != nil {
		t.Fatal(err)
	}

	before := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	inside := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	after := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)

	if s.StartReached(before) {
		t.Fatal("start reached before the window opens")
	}
	if !s.StartReached(inside) || s.Elapsed(inside) {
		t.Fatal("window should be open at noon")
	}
	if !s.Elapsed(after) {
		t.Fatal("window should have elapsed")
	}
}

func TestDueSinceInterval(t *testing.T) {
	t.Parallel()
	s, err := ParseSchedule("every:1h")
	if err != nil {
		t.Fatal(err)
	}

	last := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	if !s.DueSince(time.Time{}, last) {
		t.Fatal("never-sent target must be due")
	}
	if s.DueSince(last, last.Add(30*time.Minute)) {
		t.Fatal("due again before the interval elapsed")
	}
	if !s.DueSince(last, last.Add(time.Hour)) {
		t.Fatal("not due after the interval elapsed")
	}
}

func TestDueSinceCron(t *testing.T) {
	t.Parallel()
	s, err := ParseSchedule("cron:0 9 * * *") // daily at 09:00
	if err != nil {
		t.Fatal(err)
	}

	last := time.Date(2026, 3, 1, 9, 0, 30, 0, time.UTC)
	sameDay := time.Date(2026, 3, 1, 15, 0, 0, 0, time.UTC)
	nextDay := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

	if s.DueSince(last, sameDay) {
		t.Fatal("no cron fire between last send and the same afternoon")
	}
	if !s.DueSince(last, nextDay) {
		t.Fatal("target must be due after the next 09:00 fire")
	}
}

func TestOneShotDueOnlyWhenNeverSent(t *testing.T) {
	t.Parallel()
	s, err := ParseSchedule("now")
	if err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	if !s.DueSince(time.Time{}, now) {
		t.Fatal("unsent target must be due")
	}
	if s.DueSince(now.Add(-time.Hour), now) {
		t.Fatal("one-shot target already sent must not be due")
	}
}

package policy

import (
	"strings"
	"testing"
)

func TestValidateVariants(t *testing.T) {
	t.Parallel()
	v := New(Config{})

	tests := []struct {
		name   string
		text   string
		ok     bool
		reason Reason
	}{
		{name: "plain", text: "Hello everyone, the meetup starts at 7pm.", ok: true},
		{name: "empty", text: "", ok: true},
		{name: "too long", text: strings.Repeat("a", 1001), reason: ReasonTooLong},
		{name: "exactly max length", text: strings.Repeat("a", 1000), ok: true},
		{name: "all caps", text: "HELLO EVERYONE", reason: ReasonExcessiveCaps},
		{name: "caps ignore digits", text: "ABC 123 !!!", reason: ReasonExcessiveCaps},
		{name: "half caps is fine", text: "HeLlO wOrLd", ok: true},
		{name: "keyword", text: "this is a limited time offer", reason: ReasonSpamKeyword},
		{name: "keyword case-insensitive", text: "Click Here to join", reason: ReasonSpamKeyword},
		{name: "keyword inside word", text: "despamified", reason: ReasonSpamKeyword},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := v.Validate(tt.text)
			if got.OK != tt.ok {
				t.Fatalf("Validate(%q).OK = %v, want %v (reason %s)", tt.text, got.OK, tt.ok, got.Reason)
			}
			if !tt.ok && got.Reason != tt.reason {
				t.Fatalf("Validate(%q).Reason = %s, want %s", tt.text, got.Reason, tt.reason)
			}
		})
	}
}

// Rule priority is fixed: length beats caps beats keywords.
func TestValidatePriorityOrder(t *testing.T) {
	t.Parallel()
	v := New(Config{})

	long := strings.Repeat("URGENT SPAM ", 100) // >1000 chars, all caps, keywords
	if got := v.Validate(long); got.Reason != ReasonTooLong {
		t.Fatalf("Reason = %s, want %s", got.Reason, ReasonTooLong)
	}

	caps := "URGENT NEWS TODAY" // caps and a keyword, under length
	if got := v.Validate(caps); got.Reason != ReasonExcessiveCaps {
		t.Fatalf("Reason = %s, want %s", got.Reason, ReasonExcessiveCaps)
	}
}

func TestValidateCapsRegardlessOfContent(t *testing.T) {
	t.Parallel()
	v := New(Config{})

	// Any message with uppercase fraction > 0.5 must reject with excessive
	// caps, keywords or not.
	for _, text := range []string{"BUY GOLD", "WINNER WINNER", "AAAA b", "HI"} {
		if got := v.Validate(text); got.OK || got.Reason != ReasonExcessiveCaps {
			t.Fatalf("Validate(%q) = %+v, want excessive caps rejection", text, got)
		}
	}
}

func TestValidateApplyOverrides(t *testing.T) {
	t.Parallel()
	v := New(Config{MaxLength: 10, Blocklist: []string{"banana"}})

	if got := v.Validate("hello banana"); got.Reason != ReasonTooLong {
		t.Fatalf("Reason = %s, want %s", got.Reason, ReasonTooLong)
	}
	if got := v.Validate("a banana"); got.Reason != ReasonSpamKeyword || got.Keyword != "banana" {
		t.Fatalf("got %+v, want banana keyword rejection", got)
	}
	// Default keywords are not in play when a custom list is set.
	if got := v.Validate("spam here"); !got.OK {
		t.Fatalf("got %+v, want ok", got)
	}

	// An explicit empty list disables keyword matching.
	v.Apply(Config{Blocklist: []string{}})
	if got := v.Validate("spam and scam, act now"); !got.OK {
		t.Fatalf("got %+v, want ok with empty blocklist", got)
	}
}

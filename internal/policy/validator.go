// Package policy implements the content checks every outbound message
// must pass before it may reach a platform adapter.
package policy

import (
	"strings"
	"sync"
	"unicode"
)

// Reason identifies why a message was rejected.
type Reason string

const (
	ReasonTooLong       Reason = "too_long"
	ReasonExcessiveCaps Reason = "excessive_caps"
	ReasonSpamKeyword   Reason = "spam_keyword"
)

// DefaultBlocklist is the built-in prohibited keyword set.
// Matching is case-insensitive substring.
var DefaultBlocklist = []string{
	"spam", "scam", "fake", "click here", "act now",
	"limited time", "urgent", "winner", "prize",
}

const (
	DefaultMaxLength    = 1000
	DefaultMaxCapsRatio = 0.5
)

type Config struct {
	MaxLength    int
	MaxCapsRatio float64
	// Blocklist nil means DefaultBlocklist; an explicit empty slice
	// disables keyword matching.
	Blocklist []string
}

func (c Config) withDefaults() Config {
	if c.MaxLength <= 0 {
		c.MaxLength = DefaultMaxLength
	}
	if c.MaxCapsRatio <= 0 {
		c.MaxCapsRatio = DefaultMaxCapsRatio
	}
	if c.Blocklist == nil {
		c.Blocklist = DefaultBlocklist
	}
	return c
}

// Result is the outcome of a single Validate call. Exactly one reason is
// reported; rules are checked in a fixed priority order and the first
// violation wins.
type Result struct {
	OK      bool
	Reason  Reason
	Keyword string // set for ReasonSpamKeyword
}

// Validator is a deterministic, stateless content gate. The mutex only
// guards config swaps from hot reload; Validate itself keeps no state.
type Validator struct {
	mu  sync.RWMutex
	cfg Config
}

func New(cfg Config) *Validator {
	return &Validator{cfg: cfg.withDefaults()}
}

// Apply swaps the active policy config (hot reload).
func (v *Validator) Apply(cfg Config) {
	v.mu.Lock()
	v.cfg = cfg.withDefaults()
	v.mu.Unlock()
}

func (v *Validator) Validate(text string) Result {
	v.mu.RLock()
	cfg := v.cfg
	v.mu.RUnlock()

	if len([]rune(text)) > cfg.MaxLength {
		return Result{Reason: ReasonTooLong}
	}

	if capsRatio(text) > cfg.MaxCapsRatio {
		return Result{Reason: ReasonExcessiveCaps}
	}

	lower := strings.ToLower(text)
	for _, kw := range cfg.Blocklist {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(lower, kw) {
			return Result{Reason: ReasonSpamKeyword, Keyword: kw}
		}
	}

	return Result{OK: true}
}

// capsRatio returns the uppercase fraction of the alphabetic characters.
// Non-letters are ignored so "ABC 123!!!" counts as fully uppercase.
func capsRatio(text string) float64 {
	var letters, upper int
	for _, r := range text {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

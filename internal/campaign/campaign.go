// Package campaign owns campaign definitions and their lifecycle state.
// All mutation goes through Store so the state machine and persistence
// stay consistent.
package campaign

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNotFound = errors.New("campaign not found")

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// allowedTransitions is the full lifecycle graph. Completed and Cancelled
// are terminal.
var allowedTransitions = map[Status][]Status{
	StatusDraft:     {StatusScheduled, StatusCancelled},
	StatusScheduled: {StatusActive, StatusCancelled},
	StatusActive:    {StatusPaused, StatusCompleted, StatusCancelled},
	StatusPaused:    {StatusActive, StatusCancelled},
}

func (s Status) CanTransition(to Status) bool {
	for _, t := range allowedTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// InvalidTransitionError reports a state-machine violation. The campaign is
// left unchanged.
type InvalidTransitionError struct {
	ID   string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("campaign %s: invalid transition %s -> %s", e.ID, e.From, e.To)
}

// Campaign is one schedulable unit of work: a message template, a target
// set, and the rate/quota parameters governing its sends.
type Campaign struct {
	ID         string
	Platform   string
	Targets    []string
	Template   string
	RateLimit  time.Duration
	DailyLimit int
	Schedule   Schedule
	Status     Status
	CreatedAt  time.Time

	// Running totals, surfaced in listings.
	SentCount   int
	FailedCount int

	// Disabled maps a target to the permanent-failure reason that excluded
	// it from further dispatch for this campaign.
	Disabled map[string]string
}

// Render substitutes the {{target}} placeholder in the message template.
func (c Campaign) Render(target string) string {
	return strings.ReplaceAll(c.Template, "{{target}}", target)
}

func (c Campaign) TargetDisabled(target string) bool {
	_, ok := c.Disabled[target]
	return ok
}

// clone returns a deep copy so callers can never mutate stored state through
// a returned value.
func (c Campaign) clone() Campaign {
	cp := c
	cp.Targets = append([]string(nil), c.Targets...)
	if c.Disabled != nil {
		cp.Disabled = make(map[string]string, len(c.Disabled))
		for k, v := range c.Disabled {
			cp.Disabled[k] = v
		}
	}
	return cp
}

// Package command implements the operator surface: plain-text commands for
// consent management, campaign lifecycle, analytics, and scheduler status.
// The router is transport-agnostic; the telegram adapter feeds it owner
// messages and relays the reply.
package command

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"campbot/internal/analytics"
	"campbot/internal/campaign"
	"campbot/internal/consent"
	"campbot/internal/scheduler"
	logx "campbot/pkg/logx"
)

// Compliance bounds carried over from the engine's operating policy: sends
// are never spaced tighter than a minute and never exceed 50 per day.
const (
	MinRateLimit  = 60 * time.Second
	MaxDailyLimit = 50
)

// Actor is the operator issuing a command.
type Actor struct {
	ID       int64
	Username string
}

// Deps are the engine surfaces the router drives.
type Deps struct {
	Campaigns *campaign.Store
	Consent   *consent.Registry
	Analytics *analytics.Aggregator
	Scheduler *scheduler.Service

	// Clock defaults to time.Now.
	Clock func() time.Time
}

type Router struct {
	deps  Deps
	log   logx.Logger
	clock func() time.Time
}

func New(deps Deps, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Router{deps: deps, log: log, clock: clock}
}

// Handle executes one command line and returns the reply text. Unknown
// input gets the help text.
func (r *Router) Handle(ctx context.Context, from Actor, text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return helpText
	}
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	r.log.Info("operator command",
		logx.Int64("from", from.ID),
		logx.String("username", from.Username),
		logx.String("command", cmd))

	switch cmd {
	case "/targets":
		return r.targets(ctx, from, args)
	case "/campaign":
		return r.campaign(ctx, args, text)
	case "/analytics":
		return r.analytics(ctx, args)
	case "/sched":
		return r.sched(ctx, args)
	case "/help", "/start":
		return helpText
	default:
		return "unknown command\n\n" + helpText
	}
}

const helpText = `commands:
/targets add <platform> <target> <admin_contact>
/targets revoke <platform> <target>
/targets list [platform]
/campaign create platform=<p> targets=<a,b> [rate=<dur>] [daily=<n>] [schedule=<spec>] message=<text>
/campaign start|pause|resume|cancel <id>
/campaign list [status]
/analytics [campaign_id] [days]
/sched start|stop|status`

func (r *Router) targets(ctx context.Context, from Actor, args []string) string {
	if len(args) == 0 {
		return "usage: /targets add|revoke|list"
	}
	switch strings.ToLower(args[0]) {
	case "add":
		if len(args) < 4 {
			return "usage: /targets add <platform> <target> <admin_contact>"
		}
		platform, target, admin := args[1], args[2], args[3]
		a, err := r.deps.Consent.Approve(ctx, platform, target, admin, r.clock())
		if err != nil {
			return "approve failed: " + err.Error()
		}
		return fmt.Sprintf("approved %s on %s (admin %s)", a.TargetID, a.Platform, a.AdminContact)
	case "revoke":
		if len(args) < 3 {
			return "usage: /targets revoke <platform> <target>"
		}
		if err := r.deps.Consent.Revoke(ctx, args[1], args[2]); err != nil {
			return "revoke failed: " + err.Error()
		}
		return fmt.Sprintf("revoked %s on %s", args[2], args[1])
	case "list":
		platform := ""
		if len(args) > 1 {
			platform = strings.ToLower(args[1])
		}
		var b strings.Builder
		n := 0
		for _, a := range r.deps.Consent.List() {
			if platform != "" && a.Platform != platform {
				continue
			}
			state := "approved"
			if a.Revoked {
				state = "revoked"
			}
			fmt.Fprintf(&b, "%s %s  %s  admin=%s\n", a.Platform, a.TargetID, state, a.AdminContact)
			n++
		}
		if n == 0 {
			return "no targets"
		}
		return strings.TrimRight(b.String(), "\n")
	default:
		return "usage: /targets add|revoke|list"
	}
}

func (r *Router) campaign(ctx context.Context, args []string, raw string) string {
	if len(args) == 0 {
		return "usage: /campaign create|start|pause|resume|cancel|list"
	}
	switch strings.ToLower(args[0]) {
	case "create":
		return r.createCampaign(ctx, raw)
	case "start":
		return r.transition(ctx, args, campaign.StatusScheduled, "started (awaiting schedule)")
	case "pause":
		return r.transition(ctx, args, campaign.StatusPaused, "paused")
	case "resume":
		return r.transition(ctx, args, campaign.StatusActive, "resumed")
	case "cancel":
		return r.transition(ctx, args, campaign.StatusCancelled, "cancelled")
	case "list":
		return r.listCampaigns(args)
	default:
		return "usage: /campaign create|start|pause|resume|cancel|list"
	}
}

// createCampaign parses key=value pairs; message= consumes the rest of the
// line so the template may contain spaces.
func (r *Router) createCampaign(ctx context.Context, raw string) string {
	const msgKey = "message="
	template := ""
	head := raw
	if i := strings.Index(raw, msgKey); i >= 0 {
		template = strings.TrimSpace(raw[i+len(msgKey):])
		head = raw[:i]
	}

	c := campaign.Campaign{
		RateLimit:  MinRateLimit,
		DailyLimit: MaxDailyLimit,
		Template:   template,
	}
	for _, tok := range strings.Fields(head) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok {
			continue
		}
		switch strings.ToLower(k) {
		case "platform":
			c.Platform = strings.ToLower(v)
		case "targets":
			for _, t := range strings.Split(v, ",") {
				if t = strings.TrimSpace(t); t != "" {
					c.Targets = append(c.Targets, t)
				}
			}
		case "rate":
			d, err := time.ParseDuration(v)
			if err != nil {
				if secs, serr := strconv.Atoi(v); serr == nil {
					d = time.Duration(secs) * time.Second
				} else {
					return "bad rate: " + err.Error()
				}
			}
			if d < MinRateLimit {
				d = MinRateLimit
			}
			c.RateLimit = d
		case "daily":
			n, err := strconv.Atoi(v)
			if err != nil {
				return "bad daily limit: " + err.Error()
			}
			if n > MaxDailyLimit || n <= 0 {
				n = MaxDailyLimit
			}
			c.DailyLimit = n
		case "schedule":
			sched, err := campaign.ParseSchedule(v)
			if err != nil {
				return "bad schedule: " + err.Error()
			}
			c.Schedule = sched
		}
	}

	created, err := r.deps.Campaigns.Create(ctx, c, r.clock())
	if err != nil {
		return "create failed: " + err.Error()
	}
	return fmt.Sprintf("campaign %s created (draft)\nplatform=%s targets=%d rate=%s daily=%d schedule=%s\nuse /campaign start %s",
		created.ID, created.Platform, len(created.Targets), created.RateLimit,
		created.DailyLimit, created.Schedule, created.ID)
}

func (r *Router) transition(ctx context.Context, args []string, to campaign.Status, verb string) string {
	if len(args) < 2 {
		return "usage: /campaign " + args[0] + " <id>"
	}
	c, err := r.deps.Campaigns.Transition(ctx, args[1], to)
	if err != nil {
		return err.Error()
	}
	return fmt.Sprintf("campaign %s %s", c.ID, verb)
}

func (r *Router) listCampaigns(args []string) string {
	f := campaign.Filter{}
	if len(args) > 1 {
		f.Status = campaign.Status(strings.ToLower(args[1]))
	}
	rows := r.deps.Campaigns.List(f)
	if len(rows) == 0 {
		return "no campaigns"
	}
	var b strings.Builder
	for _, c := range rows {
		fmt.Fprintf(&b, "%s  %s  %s  sent=%d failed=%d  schedule=%s\n",
			c.ID, c.Platform, c.Status, c.SentCount, c.FailedCount, c.Schedule)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (r *Router) analytics(ctx context.Context, args []string) string {
	if len(args) == 0 {
		t, err := r.deps.Analytics.GlobalTotals(ctx)
		if err != nil {
			return "analytics failed: " + err.Error()
		}
		return fmt.Sprintf("campaigns=%d active=%d completed=%d\nsent=%d failed=%d success=%.1f%%\nplatforms: %s",
			t.Campaigns, t.Active, t.Completed, t.Sent, t.Failed, 100*t.SuccessRate,
			strings.Join(t.Platforms, ", "))
	}
	var from time.Time
	if len(args) > 1 {
		days, err := strconv.Atoi(args[1])
		if err != nil || days <= 0 {
			return "bad days: " + args[1]
		}
		from = r.clock().AddDate(0, 0, -days)
	}
	s, err := r.deps.Analytics.Summarize(ctx, args[0], from, time.Time{})
	if err != nil {
		return "analytics failed: " + err.Error()
	}
	out := fmt.Sprintf("campaign %s\nsent=%d failed=%d rejected=%d retries=%d success=%.1f%%",
		s.CampaignID, s.Sent, s.Failed, s.Rejected, s.Retries, 100*s.SuccessRate)
	if !s.FirstAttempt.IsZero() {
		out += fmt.Sprintf("\nfirst=%s last=%s",
			s.FirstAttempt.Format(time.RFC3339), s.LastAttempt.Format(time.RFC3339))
	}
	return out
}

func (r *Router) sched(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "usage: /sched start|stop|status"
	}
	switch strings.ToLower(args[0]) {
	case "start":
		if err := r.deps.Scheduler.Start(context.Background()); err != nil {
			return "scheduler start failed: " + err.Error()
		}
		return "scheduler started"
	case "stop":
		stopCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		r.deps.Scheduler.Stop(stopCtx)
		return "scheduler stopped"
	case "status":
	default:
		return "usage: /sched start|stop|status"
	}
	snap := r.deps.Scheduler.Snapshot()
	state := "stopped"
	if snap.Running {
		state = "running"
	}
	out := fmt.Sprintf("scheduler %s, tick %s", state, snap.Tick)
	if !snap.LastTickAt.IsZero() {
		out += ", last pass " + snap.LastTickAt.Format(time.RFC3339)
	}

	counts := map[campaign.Status]int{}
	for _, c := range r.deps.Campaigns.List(campaign.Filter{}) {
		counts[c.Status]++
	}
	if len(counts) > 0 {
		keys := make([]string, 0, len(counts))
		for s := range counts {
			keys = append(keys, string(s))
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, fmt.Sprintf("%s=%d", k, counts[campaign.Status(k)]))
		}
		out += "\ncampaigns: " + strings.Join(parts, " ")
	}
	return out
}

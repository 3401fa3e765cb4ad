package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"campbot/internal/campaign"
	"campbot/internal/consent"
	"campbot/internal/dispatch"
	"campbot/internal/quota"
	"campbot/internal/scheduler"
	logx "campbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) UpsertApproval(ctx context.Context, a consent.Approval) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	revoked := 0
	if a.Revoked {
		revoked = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO approvals(platform, target_id, admin_contact, approved_at, revoked)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(platform, target_id) DO UPDATE SET
		   admin_contact=excluded.admin_contact,
		   approved_at=excluded.approved_at,
		   revoked=excluded.revoked`,
		a.Platform, a.TargetID, nullStr(a.AdminContact), fmtTime(a.ApprovedAt), revoked,
	)
	return err
}

func (s *sqliteStore) ListApprovals(ctx context.Context) ([]consent.Approval, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, target_id, admin_contact, approved_at, revoked FROM approvals`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []consent.Approval
	for rows.Next() {
		var a consent.Approval
		var contact sql.NullString
		var approvedAt string
		var revoked int
		if err := rows.Scan(&a.Platform, &a.TargetID, &contact, &approvedAt, &revoked); err != nil {
			return nil, err
		}
		a.AdminContact = contact.String
		a.ApprovedAt = parseTime(approvedAt)
		a.Revoked = revoked != 0
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutCampaign(ctx context.Context, c campaign.Campaign) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	targets, err := json.Marshal(c.Targets)
	if err != nil {
		return err
	}
	var disabled any
	if len(c.Disabled) > 0 {
		b, err := json.Marshal(c.Disabled)
		if err != nil {
			return err
		}
		disabled = string(b)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO campaigns(id, platform, targets, template, rate_limit_ms, daily_limit,
		                       schedule, status, created_at, sent_count, failed_count, disabled)
		 VALUES(?,?,?,?,?,?,?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   platform=excluded.platform,
		   targets=excluded.targets,
		   template=excluded.template,
		   rate_limit_ms=excluded.rate_limit_ms,
		   daily_limit=excluded.daily_limit,
		   schedule=excluded.schedule,
		   status=excluded.status,
		   created_at=excluded.created_at,
		   sent_count=excluded.sent_count,
		   failed_count=excluded.failed_count,
		   disabled=excluded.disabled`,
		c.ID, c.Platform, string(targets), c.Template, c.RateLimit.Milliseconds(), c.DailyLimit,
		c.Schedule.String(), string(c.Status), fmtTime(c.CreatedAt), c.SentCount, c.FailedCount, disabled,
	)
	return err
}

func (s *sqliteStore) ListCampaigns(ctx context.Context) ([]campaign.Campaign, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, platform, targets, template, rate_limit_ms, daily_limit,
		        schedule, status, created_at, sent_count, failed_count, disabled
		 FROM campaigns ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []campaign.Campaign
	for rows.Next() {
		var c campaign.Campaign
		var targets, schedule, status, createdAt string
		var rateMS int64
		var disabled sql.NullString
		if err := rows.Scan(&c.ID, &c.Platform, &targets, &c.Template, &rateMS, &c.DailyLimit,
			&schedule, &status, &createdAt, &c.SentCount, &c.FailedCount, &disabled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(targets), &c.Targets); err != nil {
			return nil, fmt.Errorf("campaign %s: bad targets: %w", c.ID, err)
		}
		if disabled.Valid && disabled.String != "" {
			if err := json.Unmarshal([]byte(disabled.String), &c.Disabled); err != nil {
				return nil, fmt.Errorf("campaign %s: bad disabled map: %w", c.ID, err)
			}
		}
		sched, err := campaign.ParseSchedule(schedule)
		if err != nil {
			// A schedule that no longer parses must not take the whole
			// restore down.
			s.log.Warn("campaign schedule unreadable, treating as immediate",
				logx.String("campaign", c.ID), logx.Err(err))
			sched, _ = campaign.ParseSchedule("")
		}
		c.Schedule = sched
		c.RateLimit = time.Duration(rateMS) * time.Millisecond
		c.Status = campaign.Status(status)
		c.CreatedAt = parseTime(createdAt)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AppendAttempt(ctx context.Context, a dispatch.Attempt) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	if a.At.IsZero() {
		a.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts(campaign_id, platform, target_id, at_ns, outcome, reason, attempt_number)
		 VALUES(?,?,?,?,?,?,?)`,
		a.CampaignID, a.Platform, a.TargetID, a.At.UnixNano(),
		string(a.Outcome), nullStr(a.Reason), a.AttemptNumber,
	)
	return err
}

func (s *sqliteStore) ListAttempts(ctx context.Context, campaignID string, from, to time.Time) ([]dispatch.Attempt, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	q := `SELECT campaign_id, platform, target_id, at_ns, outcome, reason, attempt_number FROM attempts`
	var conds []string
	var args []any
	if campaignID != "" {
		conds = append(conds, "campaign_id = ?")
		args = append(args, campaignID)
	}
	if !from.IsZero() {
		conds = append(conds, "at_ns >= ?")
		args = append(args, from.UnixNano())
	}
	if !to.IsZero() {
		conds = append(conds, "at_ns < ?")
		args = append(args, to.UnixNano())
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY at_ns, id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []dispatch.Attempt
	for rows.Next() {
		var a dispatch.Attempt
		var atNS int64
		var outcome string
		var reason sql.NullString
		if err := rows.Scan(&a.CampaignID, &a.Platform, &a.TargetID, &atNS, &outcome, &reason, &a.AttemptNumber); err != nil {
			return nil, err
		}
		a.At = time.Unix(0, atNS).UTC()
		a.Outcome = dispatch.Outcome(outcome)
		a.Reason = reason.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) LastSent(ctx context.Context) ([]scheduler.SentRecord, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT campaign_id, target_id, MAX(at_ns) FROM attempts
		 WHERE outcome = ? GROUP BY campaign_id, target_id`,
		string(dispatch.OutcomeSent))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []scheduler.SentRecord
	for rows.Next() {
		var r scheduler.SentRecord
		var atNS int64
		if err := rows.Scan(&r.CampaignID, &r.Target, &atNS); err != nil {
			return nil, err
		}
		r.At = time.Unix(0, atNS).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PutQuota(ctx context.Context, c quota.Counter) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quota_counters(platform, campaign_id, day, count)
		 VALUES(?,?,?,?)
		 ON CONFLICT(platform, campaign_id, day) DO UPDATE SET count=excluded.count`,
		c.Platform, c.CampaignID, c.Day, c.Count,
	)
	return err
}

func (s *sqliteStore) ListQuota(ctx context.Context) ([]quota.Counter, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT platform, campaign_id, day, count FROM quota_counters`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []quota.Counter
	for rows.Next() {
		var c quota.Counter
		if err := rows.Scan(&c.Platform, &c.CampaignID, &c.Day, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) PruneQuota(ctx context.Context, beforeDay string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrDisabled
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM quota_counters WHERE day < ?`, beforeDay)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

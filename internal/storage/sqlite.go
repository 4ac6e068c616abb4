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

	"mediawatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

// timeFmt is a fixed-width RFC3339 UTC format so stored timestamps compare
// correctly as text.
const timeFmt = "2006-01-02T15:04:05.000000000Z07:00"

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	// Preference rows cascade with their subscription.
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := st.seedSettings(context.Background()); err != nil {
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

func (s *sqliteStore) seedSettings(ctx context.Context) error {
	def := DefaultSettings()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings(id, poll_interval_secs, upcoming_window_hours, timing_mode, notify_before_minutes, daily_digest_hour)
		 VALUES(1,?,?,?,?,?)`,
		def.PollIntervalSecs, def.UpcomingWindowHours, def.TimingMode, def.NotifyBeforeMinutes, def.DailyDigestHour,
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// ---- Snapshots ----

func (s *sqliteStore) Snapshot(ctx context.Context, service string) (*PollSnapshot, error) {
	var (
		seenIDs, torrents, sessions string
		watermark, updatedAt        sql.NullString
		digest                      string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT last_seen_ids, last_torrents, last_session_ids, last_watermark, last_health_digest, updated_at
		 FROM poll_state WHERE service = ?`, service,
	).Scan(&seenIDs, &torrents, &sessions, &watermark, &digest, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	snap := &PollSnapshot{Service: service, HealthDigest: digest}
	// Malformed persisted fields decode to zero values: the poller then treats
	// them as no prior observation instead of failing the cycle.
	if err := json.Unmarshal([]byte(seenIDs), &snap.SeenIDs); err != nil {
		snap.SeenIDs = nil
	}
	if err := json.Unmarshal([]byte(torrents), &snap.Torrents); err != nil {
		snap.Torrents = nil
	}
	if err := json.Unmarshal([]byte(sessions), &snap.SessionIDs); err != nil {
		snap.SessionIDs = nil
	}
	snap.Watermark = parseTime(watermark.String)
	snap.UpdatedAt = parseTime(updatedAt.String)
	return snap, nil
}

func (s *sqliteStore) PutSnapshot(ctx context.Context, snap *PollSnapshot) error {
	if snap == nil || strings.TrimSpace(snap.Service) == "" {
		return errors.New("snapshot service is required")
	}
	seenIDs, err := json.Marshal(emptySlice(snap.SeenIDs))
	if err != nil {
		return err
	}
	torrents, err := json.Marshal(emptySlice(snap.Torrents))
	if err != nil {
		return err
	}
	sessions, err := json.Marshal(emptySlice(snap.SessionIDs))
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO poll_state(service, last_seen_ids, last_torrents, last_session_ids, last_watermark, last_health_digest, updated_at)
		 VALUES(?,?,?,?,?,?,?)
		 ON CONFLICT(service) DO UPDATE SET
		   last_seen_ids=excluded.last_seen_ids,
		   last_torrents=excluded.last_torrents,
		   last_session_ids=excluded.last_session_ids,
		   last_watermark=excluded.last_watermark,
		   last_health_digest=excluded.last_health_digest,
		   updated_at=excluded.updated_at`,
		snap.Service, string(seenIDs), string(torrents), string(sessions),
		nullTime(snap.Watermark), snap.HealthDigest, time.Now().UTC().Format(timeFmt),
	)
	return err
}

// ---- Settings ----

func (s *sqliteStore) Settings(ctx context.Context) (Settings, error) {
	var out Settings
	err := s.db.QueryRowContext(ctx,
		`SELECT poll_interval_secs, upcoming_window_hours, timing_mode, notify_before_minutes, daily_digest_hour
		 FROM settings WHERE id = 1`,
	).Scan(&out.PollIntervalSecs, &out.UpcomingWindowHours, &out.TimingMode, &out.NotifyBeforeMinutes, &out.DailyDigestHour)
	if errors.Is(err, sql.ErrNoRows) {
		return DefaultSettings(), nil
	}
	if err != nil {
		return Settings{}, err
	}
	return out, nil
}

func (s *sqliteStore) UpdateSettings(ctx context.Context, set Settings) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings(id, poll_interval_secs, upcoming_window_hours, timing_mode, notify_before_minutes, daily_digest_hour)
		 VALUES(1,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   poll_interval_secs=excluded.poll_interval_secs,
		   upcoming_window_hours=excluded.upcoming_window_hours,
		   timing_mode=excluded.timing_mode,
		   notify_before_minutes=excluded.notify_before_minutes,
		   daily_digest_hour=excluded.daily_digest_hour`,
		set.PollIntervalSecs, set.UpcomingWindowHours, set.TimingMode, set.NotifyBeforeMinutes, set.DailyDigestHour,
	)
	return err
}

// ---- Subscriptions & preferences ----

func (s *sqliteStore) CreateSubscription(ctx context.Context, sub PushSubscription, seedTypes []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	created := sub.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO push_subscription(endpoint, p256dh, auth, device_name, created_at) VALUES(?,?,?,?,?)`,
		sub.Endpoint, sub.P256dh, sub.Auth, nullStr(sub.DeviceName), created.UTC().Format(timeFmt),
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, et := range seedTypes {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO notification_preference(subscription_id, event_type, enabled) VALUES(?,?,1)`,
			id, et,
		); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *sqliteStore) DeleteSubscription(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM push_subscription WHERE id = ?`, id)
	return err
}

func (s *sqliteStore) Subscriptions(ctx context.Context) ([]SubscriptionWithPrefs, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, endpoint, p256dh, auth, device_name, created_at FROM push_subscription ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SubscriptionWithPrefs
	index := map[int64]int{}
	for rows.Next() {
		var (
			sub     PushSubscription
			device  sql.NullString
			created string
		)
		if err := rows.Scan(&sub.ID, &sub.Endpoint, &sub.P256dh, &sub.Auth, &device, &created); err != nil {
			return nil, err
		}
		sub.DeviceName = device.String
		sub.CreatedAt = parseTime(created)
		index[sub.ID] = len(out)
		out = append(out, SubscriptionWithPrefs{Subscription: sub, Preferences: map[string]bool{}})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := s.db.QueryContext(ctx,
		`SELECT subscription_id, event_type, enabled FROM notification_preference`)
	if err != nil {
		return nil, err
	}
	defer prows.Close()
	for prows.Next() {
		var (
			subID   int64
			et      string
			enabled bool
		)
		if err := prows.Scan(&subID, &et, &enabled); err != nil {
			return nil, err
		}
		if i, ok := index[subID]; ok {
			out[i].Preferences[et] = enabled
		}
	}
	return out, prows.Err()
}

func (s *sqliteStore) SetPreference(ctx context.Context, p Preference) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_preference(subscription_id, event_type, enabled) VALUES(?,?,?)
		 ON CONFLICT(subscription_id, event_type) DO UPDATE SET enabled=excluded.enabled`,
		p.SubscriptionID, p.EventType, p.Enabled,
	)
	return err
}

// ---- History ----

func (s *sqliteStore) AppendHistory(ctx context.Context, e HistoryEntry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	var meta any
	if len(e.Meta) > 0 {
		b, err := json.Marshal(e.Meta)
		if err != nil {
			return err
		}
		meta = string(b)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_history(event_type, title, body, meta, created_at) VALUES(?,?,?,?,?)`,
		e.EventType, e.Title, e.Body, meta, e.CreatedAt.UTC().Format(timeFmt),
	)
	return err
}

func (s *sqliteStore) HistoryBodyExistsSince(ctx context.Context, eventType, body string, since time.Time) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM notification_history WHERE event_type = ? AND body = ? AND created_at >= ? LIMIT 1`,
		eventType, body, since.UTC().Format(timeFmt),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *sqliteStore) HistoryCountSince(ctx context.Context, eventType string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_history WHERE event_type = ? AND created_at >= ?`,
		eventType, since.UTC().Format(timeFmt),
	).Scan(&n)
	return n, err
}

func (s *sqliteStore) RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, title, body, meta, created_at FROM notification_history ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []HistoryEntry
	for rows.Next() {
		var (
			e       HistoryEntry
			meta    sql.NullString
			created string
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.Title, &e.Body, &meta, &created); err != nil {
			return nil, err
		}
		if meta.Valid && meta.String != "" {
			_ = json.Unmarshal([]byte(meta.String), &e.Meta)
		}
		e.CreatedAt = parseTime(created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- helpers ----

func parseTime(s string) time.Time {
	if strings.TrimSpace(s) == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(timeFmt)
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

// emptySlice keeps JSON columns as [] instead of null for nil slices.
func emptySlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

package storage

import (
	"context"
	"time"

	"mediawatch/pkg/logx"
)

// Store is the persistence API used by the watcher and notifier.
type Store interface {
	// Snapshot returns the snapshot for a service, or (nil, nil) if the
	// service has never been polled.
	Snapshot(ctx context.Context, service string) (*PollSnapshot, error)
	// PutSnapshot upserts the snapshot for its service.
	PutSnapshot(ctx context.Context, snap *PollSnapshot) error

	Settings(ctx context.Context) (Settings, error)
	UpdateSettings(ctx context.Context, s Settings) error

	// CreateSubscription inserts the subscription and seeds an enabled
	// preference row for every event type in seedTypes.
	CreateSubscription(ctx context.Context, sub PushSubscription, seedTypes []string) (int64, error)
	// DeleteSubscription removes the subscription; preference rows cascade.
	DeleteSubscription(ctx context.Context, id int64) error
	Subscriptions(ctx context.Context) ([]SubscriptionWithPrefs, error)
	SetPreference(ctx context.Context, p Preference) error

	AppendHistory(ctx context.Context, e HistoryEntry) error
	// HistoryBodyExistsSince reports whether an entry of the given type with
	// an identical body was recorded at or after since.
	HistoryBodyExistsSince(ctx context.Context, eventType, body string, since time.Time) (bool, error)
	// HistoryCountSince counts entries of the given type recorded at or after since.
	HistoryCountSince(ctx context.Context, eventType string, since time.Time) (int, error)
	RecentHistory(ctx context.Context, limit int) ([]HistoryEntry, error)

	Close() error
}

// Open initializes the SQLite store, running migrations and seeding the
// settings singleton if absent.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}

package watcher

import (
	"context"
	"time"

	"mediawatch/internal/notifier"
	"mediawatch/internal/storage"
)

// Poller is one watched service's diff pass. Poll fetches current upstream
// state, diffs it against the last persisted snapshot, persists the new
// snapshot, and returns the detected events.
type Poller interface {
	Name() string
	Poll(ctx context.Context) ([]notifier.Event, error)
}

// Dispatcher sends events through the preference-filtered delivery path.
type Dispatcher interface {
	Dispatch(ctx context.Context, e notifier.Event) (int, error)
}

// SnapshotStore is the snapshot slice of storage the pollers need.
type SnapshotStore interface {
	Snapshot(ctx context.Context, service string) (*storage.PollSnapshot, error)
	PutSnapshot(ctx context.Context, snap *storage.PollSnapshot) error
}

// SettingsStore is the slice of storage the upcoming checker needs.
type SettingsStore interface {
	Settings(ctx context.Context) (storage.Settings, error)
	HistoryBodyExistsSince(ctx context.Context, eventType, body string, since time.Time) (bool, error)
	HistoryCountSince(ctx context.Context, eventType string, since time.Time) (int, error)
}

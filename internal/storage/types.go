package storage

import (
	"time"
)

// Config configures storage.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Timing modes for upcoming-release alerts.
const (
	TimingBeforeAir    = "beforeAir"
	TimingOnceInWindow = "onceInWindow"
	TimingDailyDigest  = "dailyDigest"
)

// Settings is the singleton runtime configuration mutated by the host
// settings UI. The row is seeded with defaults on first open.
type Settings struct {
	PollIntervalSecs    int
	UpcomingWindowHours int
	TimingMode          string
	NotifyBeforeMinutes int
	DailyDigestHour     int
}

// DefaultSettings seeds the singleton on a fresh database.
func DefaultSettings() Settings {
	return Settings{
		PollIntervalSecs:    60,
		UpcomingWindowHours: 12,
		TimingMode:          TimingBeforeAir,
		NotifyBeforeMinutes: 30,
		DailyDigestHour:     9,
	}
}

// PollInterval returns the poll interval as a duration, clamped to a sane
// floor so a corrupted row can't busy-loop the scheduler.
func (s Settings) PollInterval() time.Duration {
	secs := s.PollIntervalSecs
	if secs < 5 {
		secs = 5
	}
	return time.Duration(secs) * time.Second
}

// TorrentState is one tracked torrent in a snapshot: enough to detect
// added / completed / deleted transitions across cycles.
type TorrentState struct {
	Hash     string  `json:"hash"`
	Progress float64 `json:"progress"`
	Name     string  `json:"name"`
}

// PollSnapshot is the last-persisted view of one watched service, used purely
// for diffing. Missing or malformed fields decode to zero values, which the
// pollers treat as "no prior observation".
type PollSnapshot struct {
	Service      string
	SeenIDs      []int64
	Torrents     []TorrentState
	SessionIDs   []string
	Watermark    time.Time
	HealthDigest string
	UpdatedAt    time.Time
}

// PushSubscription is one opted-in push endpoint.
type PushSubscription struct {
	ID         int64
	Endpoint   string
	P256dh     string
	Auth       string
	DeviceName string
	CreatedAt  time.Time
}

// Preference enables or disables one event type for one subscription.
// Absence of a row is treated as enabled (fail-open).
type Preference struct {
	SubscriptionID int64
	EventType      string
	Enabled        bool
}

// SubscriptionWithPrefs bundles a subscription with its preference rows.
type SubscriptionWithPrefs struct {
	Subscription PushSubscription
	Preferences  map[string]bool // event type -> enabled
}

// Allows reports whether this subscription should receive the given event
// type. A missing preference row means allowed.
func (s SubscriptionWithPrefs) Allows(eventType string) bool {
	enabled, ok := s.Preferences[eventType]
	if !ok {
		return true
	}
	return enabled
}

// HistoryEntry is one append-only notification history row.
type HistoryEntry struct {
	ID        int64
	EventType string
	Title     string
	Body      string
	Meta      map[string]any
	CreatedAt time.Time
}

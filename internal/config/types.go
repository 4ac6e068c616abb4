package config

// Config is the file-backed application configuration.
//
// It covers process-level concerns only (logging, storage location, upstream
// endpoints, push credentials). Runtime notification settings (poll interval,
// upcoming-alert window, timing mode) live in the database settings singleton
// so the host settings UI can change them without touching this file.
//
// The file may be JSON or YAML; YAML is coerced to JSON before strict decoding.
type Config struct {
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Push     PushConfig     `json:"push"`
	Watcher  WatcherConfig  `json:"watcher,omitempty"`
	Services ServicesConfig `json:"services"`
}

type LoggingConfig struct {
	Level   string            `json:"level,omitempty"`
	Console bool              `json:"console"`
	File    LoggingFileConfig `json:"file,omitempty"`
}

type LoggingFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	// Path of the SQLite database file.
	Path string `json:"path"`

	// BusyTimeout is a Go duration string (sqlite busy_timeout pragma).
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// PushConfig carries the Web Push (VAPID) credentials.
//
// Subscriber is a contact mailto/URL sent to push providers as required by
// RFC 8292. Keys are URL-safe base64 as produced by standard VAPID tooling.
type PushConfig struct {
	Subscriber      string `json:"subscriber"`
	VAPIDPublicKey  string `json:"vapid_public_key"`
	VAPIDPrivateKey string `json:"vapid_private_key"`
	TTL             int    `json:"ttl,omitempty"`
}

// WatcherConfig tunes the poll cycle.
//
// All durations are Go duration strings (e.g. "10s", "1m").
type WatcherConfig struct {
	// PageSize bounds queue/history fetches per cycle. Default 50.
	PageSize int `json:"page_size,omitempty"`

	// RequestTimeout applies to each upstream HTTP call. Default "15s".
	RequestTimeout string `json:"request_timeout,omitempty"`

	// DeliveryWorkers bounds concurrent push sends per event. Default 4.
	DeliveryWorkers int `json:"delivery_workers,omitempty"`

	// DeliveryRatePerSec rate-limits push sends. Default 10.
	DeliveryRatePerSec int `json:"delivery_rate_per_sec,omitempty"`
}

// ServicesConfig lists watched upstream services. A service with an empty URL
// is treated as unconfigured and its poller is skipped silently.
type ServicesConfig struct {
	// Queues are Sonarr/Radarr-style download queue managers.
	Queues []QueueServiceConfig `json:"queues,omitempty"`

	Qbittorrent QbittorrentConfig `json:"qbittorrent,omitempty"`
	Jellyfin    JellyfinConfig    `json:"jellyfin,omitempty"`
}

type QueueServiceConfig struct {
	// Name identifies the service in snapshots and logs (e.g. "sonarr").
	// Snapshot rows are keyed by it, so renaming resets diff state.
	Name   string `json:"name"`
	URL    string `json:"url"`
	APIKey string `json:"api_key"`
}

type QbittorrentConfig struct {
	URL      string `json:"url,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type JellyfinConfig struct {
	URL    string `json:"url,omitempty"`
	APIKey string `json:"api_key,omitempty"`
}

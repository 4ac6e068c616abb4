package upstream

import (
	"context"
	"time"
)

// QueueItem is one entry in a download queue manager's active queue.
type QueueItem struct {
	ID            int64
	Title         string
	DownloadState string // e.g. "downloading", "importPending", "importFailed"
	// DownloadStatus is the tracked status: "ok", "warning" or "error".
	DownloadStatus string
}

// HistoryItem is one entry in a queue manager's history feed.
type HistoryItem struct {
	ID          int64
	Date        time.Time
	EventType   string
	SourceTitle string
	RelatedID   int64
}

// HealthItem is one active health-check message.
type HealthItem struct {
	Type    string
	Message string
}

// CalendarItem is one scheduled upcoming release.
type CalendarItem struct {
	Title     string
	AirDate   time.Time
	RelatedID int64
}

// QueueService is the read surface of a Sonarr/Radarr-style service.
type QueueService interface {
	Queue(ctx context.Context, page, size int) ([]QueueItem, error)
	History(ctx context.Context, page, size int, sortKey, sortDir string) ([]HistoryItem, error)
	Health(ctx context.Context) ([]HealthItem, error)
	Calendar(ctx context.Context, start, end time.Time) ([]CalendarItem, error)
}

// Torrent is one torrent as reported by the torrent client.
type Torrent struct {
	Hash     string
	Name     string
	Progress float64 // 0..1
}

// TorrentService is the read surface of the torrent client.
type TorrentService interface {
	Torrents(ctx context.Context) ([]Torrent, error)
}

// ActivityEntry is one media-server activity log entry.
type ActivityEntry struct {
	ID       int64
	Type     string
	Date     time.Time
	Name     string
	Overview string
}

// Session is one active media-server session.
type Session struct {
	ID         string
	UserName   string
	NowPlaying string // empty when nothing is playing
}

// MediaService is the read surface of the media server.
type MediaService interface {
	ActivityLog(ctx context.Context, limit int, minDate time.Time) ([]ActivityEntry, error)
	Sessions(ctx context.Context) ([]Session, error)
}

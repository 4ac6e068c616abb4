package watcher

import (
	"context"
	"fmt"

	"mediawatch/internal/notifier"
	"mediawatch/internal/storage"
	"mediawatch/internal/upstream"
	"mediawatch/pkg/logx"
)

// Activity log entry type for items added to the library.
const activityItemAdded = "ItemAdded"

// MediaPoller watches the media server. It maintains two independent diff
// streams over one snapshot row: the activity log (watermarked by timestamp,
// filtered to library additions) and the active playback sessions (diffed by
// session-id set).
type MediaPoller struct {
	name     string
	client   upstream.MediaService
	store    SnapshotStore
	log      logx.Logger
	logLimit int
}

func NewMediaPoller(name string, client upstream.MediaService, store SnapshotStore, log logx.Logger, logLimit int) *MediaPoller {
	if logLimit <= 0 {
		logLimit = 50
	}
	return &MediaPoller{name: name, client: client, store: store, log: log, logLimit: logLimit}
}

func (p *MediaPoller) Name() string { return p.name }

func (p *MediaPoller) Poll(ctx context.Context) ([]notifier.Event, error) {
	snap, err := p.store.Snapshot(ctx, p.name)
	if err != nil {
		return nil, fmt.Errorf("%s: load snapshot: %w", p.name, err)
	}
	if snap == nil {
		snap = &storage.PollSnapshot{Service: p.name}
	}

	activity, err := p.client.ActivityLog(ctx, p.logLimit, snap.Watermark)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch activity log: %w", p.name, err)
	}
	sessions, err := p.client.Sessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch sessions: %w", p.name, err)
	}

	var events []notifier.Event

	// Library additions, watermarked like a history feed.
	watermark := snap.Watermark
	maxDate := watermark
	for _, e := range activity {
		if e.Date.After(maxDate) {
			maxDate = e.Date
		}
		if !e.Date.After(watermark) || e.Type != activityItemAdded {
			continue
		}
		events = append(events, notifier.Event{
			Type:  notifier.EventLibraryItemAdded,
			Title: "Added to library",
			Body:  e.Name,
			Meta:  map[string]any{"service": p.name, "id": e.ID},
		})
	}

	// New sessions with something playing.
	prev := make(map[string]bool, len(snap.SessionIDs))
	for _, id := range snap.SessionIDs {
		prev[id] = true
	}
	currentIDs := make([]string, 0, len(sessions))
	for _, s := range sessions {
		currentIDs = append(currentIDs, s.ID)
		if prev[s.ID] || s.NowPlaying == "" {
			continue
		}
		events = append(events, notifier.Event{
			Type:  notifier.EventPlaybackStarted,
			Title: "Playback started",
			Body:  fmt.Sprintf("%s is watching %s", s.UserName, s.NowPlaying),
			Meta:  map[string]any{"service": p.name, "session": s.ID},
		})
	}

	snap.Watermark = maxDate
	snap.SessionIDs = currentIDs
	if err := p.store.PutSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("%s: persist snapshot: %w", p.name, err)
	}
	return events, nil
}

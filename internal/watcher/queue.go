package watcher

import (
	"context"
	"fmt"
	"strings"

	"mediawatch/internal/notifier"
	"mediawatch/internal/storage"
	"mediawatch/internal/upstream"
	"mediawatch/pkg/logx"
)

// History event types that denote a completed import.
var importedHistoryTypes = map[string]bool{
	"downloadFolderImported": true,
	"movieFileImported":      true,
	"episodeFileImported":    true,
}

// QueuePoller watches one Sonarr/Radarr-style queue manager: new queue items
// (classified by their reported status), completed imports from the history
// feed, and health-check changes.
type QueuePoller struct {
	name     string
	client   upstream.QueueService
	store    SnapshotStore
	log      logx.Logger
	pageSize int
}

func NewQueuePoller(name string, client upstream.QueueService, store SnapshotStore, log logx.Logger, pageSize int) *QueuePoller {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &QueuePoller{name: name, client: client, store: store, log: log, pageSize: pageSize}
}

func (p *QueuePoller) Name() string { return p.name }

func (p *QueuePoller) Poll(ctx context.Context) ([]notifier.Event, error) {
	snap, err := p.store.Snapshot(ctx, p.name)
	if err != nil {
		return nil, fmt.Errorf("%s: load snapshot: %w", p.name, err)
	}
	if snap == nil {
		snap = &storage.PollSnapshot{Service: p.name}
	}

	// Any fetch failure abandons the whole tick without persisting, so the
	// next cycle diffs from the last good snapshot.
	queue, err := p.client.Queue(ctx, 1, p.pageSize)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch queue: %w", p.name, err)
	}
	history, err := p.client.History(ctx, 1, p.pageSize, "date", "descending")
	if err != nil {
		return nil, fmt.Errorf("%s: fetch history: %w", p.name, err)
	}
	health, err := p.client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch health: %w", p.name, err)
	}

	var events []notifier.Event

	// New queue items: current ids minus last seen, one event each.
	prev := make(map[int64]bool, len(snap.SeenIDs))
	for _, id := range snap.SeenIDs {
		prev[id] = true
	}
	currentIDs := make([]int64, 0, len(queue))
	for _, item := range queue {
		currentIDs = append(currentIDs, item.ID)
		if prev[item.ID] {
			continue
		}
		events = append(events, p.classifyQueueItem(item))
	}

	// Completed imports: history entries strictly newer than the watermark.
	watermark := snap.Watermark
	maxDate := watermark
	for _, h := range history {
		if h.Date.After(maxDate) {
			maxDate = h.Date
		}
		if !h.Date.After(watermark) {
			continue
		}
		if !importedHistoryTypes[h.EventType] {
			continue
		}
		events = append(events, notifier.Event{
			Type:  notifier.EventImported,
			Title: fmt.Sprintf("%s: Imported", p.name),
			Body:  h.SourceTitle,
			Meta:  map[string]any{"service": p.name, "relatedId": h.RelatedID},
		})
	}

	// Health: coarse change detection by digest. No digest yet means first
	// observation, which never fires (prevents a startup flood).
	digest := healthDigest(health)
	if snap.HealthDigest != "" && snap.HealthDigest != digest && len(health) > 0 {
		msgs := make([]string, 0, len(health))
		for _, h := range health {
			msgs = append(msgs, h.Message)
		}
		events = append(events, notifier.Event{
			Type:  notifier.EventHealthWarning,
			Title: fmt.Sprintf("%s: Health warning", p.name),
			Body:  strings.Join(msgs, "\n"),
			Meta:  map[string]any{"service": p.name, "count": len(health)},
		})
	}

	snap.SeenIDs = currentIDs
	snap.Watermark = maxDate
	snap.HealthDigest = digest
	if err := p.store.PutSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("%s: persist snapshot: %w", p.name, err)
	}
	return events, nil
}

func (p *QueuePoller) classifyQueueItem(item upstream.QueueItem) notifier.Event {
	meta := map[string]any{"service": p.name, "id": item.ID}
	switch {
	case item.DownloadState == "importFailed" || item.DownloadState == "importBlocked":
		return notifier.Event{
			Type:  notifier.EventImportFailed,
			Title: fmt.Sprintf("%s: Import failed", p.name),
			Body:  item.Title,
			Meta:  meta,
		}
	case item.DownloadStatus == "warning" || item.DownloadStatus == "error":
		return notifier.Event{
			Type:  notifier.EventDownloadFailed,
			Title: fmt.Sprintf("%s: Download problem", p.name),
			Body:  item.Title,
			Meta:  meta,
		}
	default:
		return notifier.Event{
			Type:  notifier.EventGrabbed,
			Title: fmt.Sprintf("%s: Grabbed", p.name),
			Body:  item.Title,
			Meta:  meta,
		}
	}
}

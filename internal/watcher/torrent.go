package watcher

import (
	"context"
	"fmt"

	"mediawatch/internal/notifier"
	"mediawatch/internal/storage"
	"mediawatch/internal/upstream"
	"mediawatch/pkg/logx"
)

// TorrentPoller watches the torrent client. The snapshot keeps
// {hash, progress, name} triples rather than bare ids so completion can be
// detected as a progress crossing of 1.0 between cycles.
type TorrentPoller struct {
	name   string
	client upstream.TorrentService
	store  SnapshotStore
	log    logx.Logger
}

func NewTorrentPoller(name string, client upstream.TorrentService, store SnapshotStore, log logx.Logger) *TorrentPoller {
	return &TorrentPoller{name: name, client: client, store: store, log: log}
}

func (p *TorrentPoller) Name() string { return p.name }

func (p *TorrentPoller) Poll(ctx context.Context) ([]notifier.Event, error) {
	snap, err := p.store.Snapshot(ctx, p.name)
	if err != nil {
		return nil, fmt.Errorf("%s: load snapshot: %w", p.name, err)
	}
	if snap == nil {
		snap = &storage.PollSnapshot{Service: p.name}
	}

	torrents, err := p.client.Torrents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: fetch torrents: %w", p.name, err)
	}

	prev := make(map[string]storage.TorrentState, len(snap.Torrents))
	for _, t := range snap.Torrents {
		prev[t.Hash] = t
	}

	var events []notifier.Event
	current := make([]storage.TorrentState, 0, len(torrents))
	seen := make(map[string]bool, len(torrents))
	for _, t := range torrents {
		current = append(current, storage.TorrentState{Hash: t.Hash, Progress: t.Progress, Name: t.Name})
		seen[t.Hash] = true

		old, existed := prev[t.Hash]
		switch {
		case !existed:
			events = append(events, notifier.Event{
				Type:  notifier.EventTorrentAdded,
				Title: "Torrent added",
				Body:  t.Name,
				Meta:  map[string]any{"service": p.name, "hash": t.Hash},
			})
		case old.Progress < 1 && t.Progress >= 1:
			events = append(events, notifier.Event{
				Type:  notifier.EventTorrentCompleted,
				Title: "Torrent completed",
				Body:  t.Name,
				Meta:  map[string]any{"service": p.name, "hash": t.Hash},
			})
		}
	}

	// Deleted: present in the previous snapshot, absent from this fetch.
	for _, t := range snap.Torrents {
		if seen[t.Hash] {
			continue
		}
		events = append(events, notifier.Event{
			Type:  notifier.EventTorrentDeleted,
			Title: "Torrent deleted",
			Body:  t.Name,
			Meta:  map[string]any{"service": p.name, "hash": t.Hash},
		})
	}

	snap.Torrents = current
	if err := p.store.PutSnapshot(ctx, snap); err != nil {
		return nil, fmt.Errorf("%s: persist snapshot: %w", p.name, err)
	}
	return events, nil
}

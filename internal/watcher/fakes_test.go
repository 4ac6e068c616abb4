package watcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"mediawatch/internal/notifier"
	"mediawatch/internal/storage"
	"mediawatch/internal/upstream"
)

// ---- store fakes ----

type fakeSnapshotStore struct {
	mu     sync.Mutex
	snaps  map[string]*storage.PollSnapshot
	puts   int
	putErr error
}

func newFakeSnapshotStore() *fakeSnapshotStore {
	return &fakeSnapshotStore{snaps: map[string]*storage.PollSnapshot{}}
}

func (f *fakeSnapshotStore) Snapshot(_ context.Context, service string) (*storage.PollSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap, ok := f.snaps[service]
	if !ok {
		return nil, nil
	}
	// Copy so a poller abandoning its tick can't mutate stored state.
	cp := *snap
	cp.SeenIDs = append([]int64(nil), snap.SeenIDs...)
	cp.Torrents = append([]storage.TorrentState(nil), snap.Torrents...)
	cp.SessionIDs = append([]string(nil), snap.SessionIDs...)
	return &cp, nil
}

func (f *fakeSnapshotStore) PutSnapshot(_ context.Context, snap *storage.PollSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.putErr != nil {
		return f.putErr
	}
	f.puts++
	cp := *snap
	f.snaps[snap.Service] = &cp
	return nil
}

func (f *fakeSnapshotStore) stored(service string) *storage.PollSnapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snaps[service]
}

type fakeSettingsStore struct {
	settings storage.Settings

	mu      sync.Mutex
	history []storage.HistoryEntry
}

func (f *fakeSettingsStore) Settings(context.Context) (storage.Settings, error) {
	return f.settings, nil
}

func (f *fakeSettingsStore) record(eventType, body string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.history = append(f.history, storage.HistoryEntry{EventType: eventType, Body: body, CreatedAt: at})
}

func (f *fakeSettingsStore) HistoryBodyExistsSince(_ context.Context, eventType, body string, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.history {
		if e.EventType == eventType && e.Body == body && !e.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeSettingsStore) HistoryCountSince(_ context.Context, eventType string, since time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, e := range f.history {
		if e.EventType == eventType && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

// ---- upstream fakes ----

var errUpstream = errors.New("upstream unavailable")

type fakeQueueService struct {
	queue    []upstream.QueueItem
	history  []upstream.HistoryItem
	health   []upstream.HealthItem
	calendar []upstream.CalendarItem

	queueErr    error
	historyErr  error
	healthErr   error
	calendarErr error

	calendarCalls int
}

func (f *fakeQueueService) Queue(context.Context, int, int) ([]upstream.QueueItem, error) {
	return f.queue, f.queueErr
}

func (f *fakeQueueService) History(context.Context, int, int, string, string) ([]upstream.HistoryItem, error) {
	return f.history, f.historyErr
}

func (f *fakeQueueService) Health(context.Context) ([]upstream.HealthItem, error) {
	return f.health, f.healthErr
}

func (f *fakeQueueService) Calendar(context.Context, time.Time, time.Time) ([]upstream.CalendarItem, error) {
	f.calendarCalls++
	return f.calendar, f.calendarErr
}

type fakeTorrentService struct {
	torrents []upstream.Torrent
	err      error
}

func (f *fakeTorrentService) Torrents(context.Context) ([]upstream.Torrent, error) {
	return f.torrents, f.err
}

type fakeMediaService struct {
	activity []upstream.ActivityEntry
	sessions []upstream.Session

	activityErr error
	sessionErr  error
}

func (f *fakeMediaService) ActivityLog(context.Context, int, time.Time) ([]upstream.ActivityEntry, error) {
	return f.activity, f.activityErr
}

func (f *fakeMediaService) Sessions(context.Context) ([]upstream.Session, error) {
	return f.sessions, f.sessionErr
}

// ---- dispatcher fake ----

type fakeDispatcher struct {
	mu     sync.Mutex
	events []notifier.Event
}

func (f *fakeDispatcher) Dispatch(_ context.Context, e notifier.Event) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return 1, nil
}

func (f *fakeDispatcher) dispatched() []notifier.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notifier.Event(nil), f.events...)
}

// ---- helpers ----

func eventTypes(events []notifier.Event) []string {
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Type)
	}
	return out
}

func countType(events []notifier.Event, eventType string) int {
	n := 0
	for _, e := range events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

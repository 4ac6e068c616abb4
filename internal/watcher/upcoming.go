package watcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mediawatch/internal/notifier"
	"mediawatch/internal/storage"
	"mediawatch/internal/upstream"
	"mediawatch/pkg/logx"
)

// dedupWindow is the trailing span within which an identical upcoming-alert
// body is suppressed from re-firing.
const dedupWindow = 24 * time.Hour

// CalendarSource is one queue manager contributing calendar entries.
type CalendarSource struct {
	Name   string
	Client upstream.QueueService
}

// UpcomingChecker computes time-windowed "about to happen" events from the
// calendar feeds, independent of the per-service pollers. Its behavior is
// driven by the settings singleton, re-read every cycle.
type UpcomingChecker struct {
	sources []CalendarSource
	store   SettingsStore
	log     logx.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewUpcomingChecker(sources []CalendarSource, store SettingsStore, log logx.Logger) *UpcomingChecker {
	return &UpcomingChecker{sources: sources, store: store, log: log, now: time.Now}
}

func (c *UpcomingChecker) Name() string { return "upcoming" }

func (c *UpcomingChecker) Poll(ctx context.Context) ([]notifier.Event, error) {
	set, err := c.store.Settings(ctx)
	if err != nil {
		return nil, fmt.Errorf("upcoming: load settings: %w", err)
	}

	now := c.now()
	window := time.Duration(set.UpcomingWindowHours) * time.Hour
	if window <= 0 {
		window = 12 * time.Hour
	}

	switch set.TimingMode {
	case storage.TimingDailyDigest:
		return c.dailyDigest(ctx, set, now, window)
	case storage.TimingBeforeAir:
		return c.beforeAir(ctx, set, now, window)
	case storage.TimingOnceInWindow:
		return c.onceInWindow(ctx, now, window)
	default:
		c.log.Warn("unknown timing mode; skipping upcoming check", logx.String("mode", set.TimingMode))
		return nil, nil
	}
}

// dailyDigest fires at most once per calendar day, during the configured
// local hour, bundling all entries inside the alert window into one event.
func (c *UpcomingChecker) dailyDigest(ctx context.Context, set storage.Settings, now time.Time, window time.Duration) ([]notifier.Event, error) {
	// Outside the digest hour nothing is fetched at all.
	if now.Hour() != set.DailyDigestHour {
		return nil, nil
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	n, err := c.store.HistoryCountSince(ctx, notifier.EventUpcomingPremiere, midnight)
	if err != nil {
		return nil, fmt.Errorf("upcoming: history lookup: %w", err)
	}
	if n > 0 {
		return nil, nil
	}

	entries, err := c.collect(ctx, now, window)
	if len(entries) == 0 {
		return nil, err
	}

	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("%s (%s)", e.item.Title, e.item.AirDate.Local().Format("15:04")))
	}
	ev := notifier.Event{
		Type:  notifier.EventUpcomingPremiere,
		Title: "Upcoming releases",
		Body:  strings.Join(lines, "\n"),
		Meta:  map[string]any{"count": len(entries)},
	}
	events, derr := c.dedup(ctx, now, ev)
	return events, errors.Join(err, derr)
}

// beforeAir fires per entry once its air time is within the configured
// minutes-before-air lead.
func (c *UpcomingChecker) beforeAir(ctx context.Context, set storage.Settings, now time.Time, window time.Duration) ([]notifier.Event, error) {
	entries, err := c.collect(ctx, now, window)

	var events []notifier.Event
	var errs []error
	for _, e := range entries {
		mins := int(e.item.AirDate.Sub(now).Minutes())
		if mins < 0 || mins > set.NotifyBeforeMinutes {
			continue
		}
		out, derr := c.dedup(ctx, now, c.premiereEvent(e))
		errs = append(errs, derr)
		events = append(events, out...)
	}
	return events, errors.Join(append(errs, err)...)
}

// onceInWindow fires once per entry while it sits inside the alert window.
// "Once" is approximated by the trailing-24h body dedup: for alert windows
// longer than 24h an entry can re-fire after a day. Accepted limitation.
func (c *UpcomingChecker) onceInWindow(ctx context.Context, now time.Time, window time.Duration) ([]notifier.Event, error) {
	entries, err := c.collect(ctx, now, window)

	var events []notifier.Event
	var errs []error
	for _, e := range entries {
		out, derr := c.dedup(ctx, now, c.premiereEvent(e))
		errs = append(errs, derr)
		events = append(events, out...)
	}
	return events, errors.Join(append(errs, err)...)
}

type calendarEntry struct {
	source string
	item   upstream.CalendarItem
}

// collect fetches calendar entries from all sources for [now, now+window].
// One failing source is logged and skipped so the others still alert; the
// joined error is reported to the cycle after events are handled.
func (c *UpcomingChecker) collect(ctx context.Context, now time.Time, window time.Duration) ([]calendarEntry, error) {
	var (
		entries []calendarEntry
		errs    []error
	)
	end := now.Add(window)
	for _, src := range c.sources {
		items, err := src.Client.Calendar(ctx, now, end)
		if err != nil {
			c.log.Warn("calendar fetch failed", logx.String("service", src.Name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
			continue
		}
		for _, it := range items {
			if it.AirDate.IsZero() || it.AirDate.Before(now) || it.AirDate.After(end) {
				continue
			}
			entries = append(entries, calendarEntry{source: src.Name, item: it})
		}
	}
	return entries, errors.Join(errs...)
}

// premiereEvent builds a stable body for an entry: it must not change between
// cycles, because the history dedup matches on identical body text.
func (c *UpcomingChecker) premiereEvent(e calendarEntry) notifier.Event {
	return notifier.Event{
		Type:  notifier.EventUpcomingPremiere,
		Title: "Upcoming premiere",
		Body:  fmt.Sprintf("%s airs at %s", e.item.Title, e.item.AirDate.Local().Format("Jan 2 15:04")),
		Meta:  map[string]any{"service": e.source, "relatedId": e.item.RelatedID},
	}
}

// dedup drops the event if an identical body was recorded within the trailing
// dedup window.
func (c *UpcomingChecker) dedup(ctx context.Context, now time.Time, ev notifier.Event) ([]notifier.Event, error) {
	exists, err := c.store.HistoryBodyExistsSince(ctx, ev.Type, ev.Body, now.Add(-dedupWindow))
	if err != nil {
		return nil, fmt.Errorf("upcoming: dedup lookup: %w", err)
	}
	if exists {
		return nil, nil
	}
	return []notifier.Event{ev}, nil
}

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"mediawatch/pkg/logx"
)

func openTestStore(t *testing.T) Store {
	t.Helper()
	st, err := Open(Config{Path: filepath.Join(t.TempDir(), "state.db"), BusyTimeout: time.Second}, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestSettingsSeededWithDefaults(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	got, err := st.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if got != DefaultSettings() {
		t.Fatalf("settings = %+v, want defaults %+v", got, DefaultSettings())
	}
}

func TestUpdateSettingsRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	want := Settings{
		PollIntervalSecs:    120,
		UpcomingWindowHours: 48,
		TimingMode:          TimingDailyDigest,
		NotifyBeforeMinutes: 15,
		DailyDigestHour:     7,
	}
	if err := st.UpdateSettings(ctx, want); err != nil {
		t.Fatalf("UpdateSettings: %v", err)
	}
	got, err := st.Settings(ctx)
	if err != nil {
		t.Fatalf("Settings: %v", err)
	}
	if got != want {
		t.Fatalf("settings = %+v, want %+v", got, want)
	}
}

func TestSnapshotMissingIsNil(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)

	snap, err := st.Snapshot(context.Background(), "sonarr")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap != nil {
		t.Fatalf("snapshot = %+v, want nil for unknown service", snap)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	mark := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	in := &PollSnapshot{
		Service:      "sonarr",
		SeenIDs:      []int64{3, 7},
		Torrents:     []TorrentState{{Hash: "aa", Progress: 0.5, Name: "x"}},
		SessionIDs:   []string{"s1"},
		Watermark:    mark,
		HealthDigest: "00000000deadbeef",
	}
	if err := st.PutSnapshot(ctx, in); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}

	out, err := st.Snapshot(ctx, "sonarr")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if out == nil {
		t.Fatal("snapshot missing after put")
	}
	if len(out.SeenIDs) != 2 || out.SeenIDs[0] != 3 || out.SeenIDs[1] != 7 {
		t.Fatalf("SeenIDs = %v", out.SeenIDs)
	}
	if len(out.Torrents) != 1 || out.Torrents[0] != in.Torrents[0] {
		t.Fatalf("Torrents = %v", out.Torrents)
	}
	if len(out.SessionIDs) != 1 || out.SessionIDs[0] != "s1" {
		t.Fatalf("SessionIDs = %v", out.SessionIDs)
	}
	if !out.Watermark.Equal(mark) {
		t.Fatalf("Watermark = %v, want %v", out.Watermark, mark)
	}
	if out.HealthDigest != in.HealthDigest {
		t.Fatalf("HealthDigest = %q, want %q", out.HealthDigest, in.HealthDigest)
	}
	if out.UpdatedAt.IsZero() {
		t.Fatal("UpdatedAt not set on put")
	}
}

func TestSnapshotUpsertReplaces(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.PutSnapshot(ctx, &PollSnapshot{Service: "radarr", SeenIDs: []int64{1}}); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}
	if err := st.PutSnapshot(ctx, &PollSnapshot{Service: "radarr", SeenIDs: []int64{2, 3}}); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}
	out, err := st.Snapshot(ctx, "radarr")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if len(out.SeenIDs) != 2 || out.SeenIDs[0] != 2 {
		t.Fatalf("SeenIDs = %v, want replaced set", out.SeenIDs)
	}
}

func TestSnapshotNilSlicesStoredEmpty(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	if err := st.PutSnapshot(ctx, &PollSnapshot{Service: "qbt"}); err != nil {
		t.Fatalf("PutSnapshot: %v", err)
	}
	out, err := st.Snapshot(ctx, "qbt")
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if out.SeenIDs == nil || len(out.SeenIDs) != 0 {
		t.Fatalf("SeenIDs = %v, want empty non-nil", out.SeenIDs)
	}
	if out.Watermark != (time.Time{}) {
		t.Fatalf("Watermark = %v, want zero", out.Watermark)
	}
	if out.HealthDigest != "" {
		t.Fatalf("HealthDigest = %q, want empty", out.HealthDigest)
	}
}

func TestCreateSubscriptionSeedsPreferences(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.CreateSubscription(ctx, PushSubscription{
		Endpoint:   "https://push.example/abc",
		P256dh:     "key",
		Auth:       "auth",
		DeviceName: "phone",
	}, []string{"grabbed", "imported"})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if id <= 0 {
		t.Fatalf("id = %d", id)
	}

	subs, err := st.Subscriptions(ctx)
	if err != nil {
		t.Fatalf("Subscriptions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("subs = %d, want 1", len(subs))
	}
	got := subs[0]
	if got.Subscription.Endpoint != "https://push.example/abc" || got.Subscription.DeviceName != "phone" {
		t.Fatalf("subscription = %+v", got.Subscription)
	}
	if len(got.Preferences) != 2 || !got.Preferences["grabbed"] || !got.Preferences["imported"] {
		t.Fatalf("preferences = %v", got.Preferences)
	}
	if got.Subscription.CreatedAt.IsZero() {
		t.Fatal("CreatedAt not set")
	}
}

func TestCreateSubscriptionDuplicateEndpoint(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	sub := PushSubscription{Endpoint: "https://push.example/dup", P256dh: "k", Auth: "a"}
	if _, err := st.CreateSubscription(ctx, sub, nil); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := st.CreateSubscription(ctx, sub, nil); err == nil {
		t.Fatal("duplicate endpoint accepted")
	}
}

func TestDeleteSubscriptionCascadesPreferences(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.CreateSubscription(ctx, PushSubscription{
		Endpoint: "https://push.example/gone", P256dh: "k", Auth: "a",
	}, []string{"grabbed"})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if err := st.SetPreference(ctx, Preference{SubscriptionID: id, EventType: "imported", Enabled: false}); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}

	if err := st.DeleteSubscription(ctx, id); err != nil {
		t.Fatalf("DeleteSubscription: %v", err)
	}
	subs, err := st.Subscriptions(ctx)
	if err != nil {
		t.Fatalf("Subscriptions: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("subs = %d, want 0", len(subs))
	}

	// A fresh subscription gets the next id and must see no stale prefs.
	id2, err := st.CreateSubscription(ctx, PushSubscription{
		Endpoint: "https://push.example/new", P256dh: "k", Auth: "a",
	}, nil)
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	subs, _ = st.Subscriptions(ctx)
	if len(subs) != 1 || subs[0].Subscription.ID != id2 {
		t.Fatalf("subs = %+v", subs)
	}
	if len(subs[0].Preferences) != 0 {
		t.Fatalf("preferences leaked across delete: %v", subs[0].Preferences)
	}
}

func TestSetPreferenceUpsert(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	id, err := st.CreateSubscription(ctx, PushSubscription{
		Endpoint: "https://push.example/p", P256dh: "k", Auth: "a",
	}, []string{"grabbed"})
	if err != nil {
		t.Fatalf("CreateSubscription: %v", err)
	}
	if err := st.SetPreference(ctx, Preference{SubscriptionID: id, EventType: "grabbed", Enabled: false}); err != nil {
		t.Fatalf("SetPreference: %v", err)
	}
	subs, err := st.Subscriptions(ctx)
	if err != nil {
		t.Fatalf("Subscriptions: %v", err)
	}
	enabled, ok := subs[0].Preferences["grabbed"]
	if !ok || enabled {
		t.Fatalf("preferences = %v, want grabbed disabled", subs[0].Preferences)
	}
}

func TestHistoryBodyExistsSince(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	if err := st.AppendHistory(ctx, HistoryEntry{EventType: "upcomingPremiere", Body: "Show airs at Mar 14 20:00", CreatedAt: old}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}
	if err := st.AppendHistory(ctx, HistoryEntry{EventType: "upcomingPremiere", Body: "Other airs at Mar 15 20:00"}); err != nil {
		t.Fatalf("AppendHistory: %v", err)
	}

	since := time.Now().Add(-24 * time.Hour)
	cases := []struct {
		name      string
		eventType string
		body      string
		want      bool
	}{
		{"recent match", "upcomingPremiere", "Other airs at Mar 15 20:00", true},
		{"outside window", "upcomingPremiere", "Show airs at Mar 14 20:00", false},
		{"different body", "upcomingPremiere", "nope", false},
		{"different type", "grabbed", "Other airs at Mar 15 20:00", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := st.HistoryBodyExistsSince(ctx, tc.eventType, tc.body, since)
			if err != nil {
				t.Fatalf("HistoryBodyExistsSince: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestHistoryCountSince(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	yesterday := time.Now().Add(-30 * time.Hour)
	for _, e := range []HistoryEntry{
		{EventType: "upcomingPremiere", Body: "a", CreatedAt: yesterday},
		{EventType: "upcomingPremiere", Body: "b"},
		{EventType: "grabbed", Body: "c"},
	} {
		if err := st.AppendHistory(ctx, e); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}
	n, err := st.HistoryCountSince(ctx, "upcomingPremiere", time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("HistoryCountSince: %v", err)
	}
	if n != 1 {
		t.Fatalf("count = %d, want 1", n)
	}
}

func TestRecentHistoryOrderAndMeta(t *testing.T) {
	t.Parallel()
	st := openTestStore(t)
	ctx := context.Background()

	for i, body := range []string{"first", "second", "third"} {
		e := HistoryEntry{EventType: "test", Body: body}
		if i == 2 {
			e.Meta = map[string]any{"service": "sonarr"}
		}
		if err := st.AppendHistory(ctx, e); err != nil {
			t.Fatalf("AppendHistory: %v", err)
		}
	}
	got, err := st.RecentHistory(ctx, 2)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if got[0].Body != "third" || got[1].Body != "second" {
		t.Fatalf("order = [%s %s], want newest first", got[0].Body, got[1].Body)
	}
	if got[0].Meta["service"] != "sonarr" {
		t.Fatalf("meta = %v", got[0].Meta)
	}
	if got[0].CreatedAt.IsZero() {
		t.Fatal("CreatedAt not parsed")
	}
}

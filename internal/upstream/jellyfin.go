package upstream

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// jellyfinClient talks to a Jellyfin server using the X-Emby-Token header.
type jellyfinClient struct {
	api *apiClient
}

// NewJellyfinClient builds a MediaService for the configured media server.
func NewJellyfinClient(baseURL, apiKey string, timeout time.Duration) MediaService {
	return &jellyfinClient{
		api: newAPIClient(baseURL, map[string]string{"X-Emby-Token": apiKey}, timeout),
	}
}

type jfActivityEntry struct {
	ID       int64     `json:"Id"`
	Type     string    `json:"Type"`
	Date     time.Time `json:"Date"`
	Name     string    `json:"Name"`
	Overview string    `json:"Overview"`
}

type jfActivityPage struct {
	Items []jfActivityEntry `json:"Items"`
}

func (c *jellyfinClient) ActivityLog(ctx context.Context, limit int, minDate time.Time) ([]ActivityEntry, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if !minDate.IsZero() {
		q.Set("minDate", minDate.UTC().Format(time.RFC3339))
	}

	var out jfActivityPage
	if err := c.api.getJSON(ctx, "/System/ActivityLog/Entries", q, &out); err != nil {
		return nil, err
	}
	items := make([]ActivityEntry, 0, len(out.Items))
	for _, e := range out.Items {
		items = append(items, ActivityEntry{
			ID:       e.ID,
			Type:     e.Type,
			Date:     e.Date,
			Name:     e.Name,
			Overview: e.Overview,
		})
	}
	return items, nil
}

type jfNowPlaying struct {
	Name string `json:"Name"`
}

type jfSession struct {
	ID             string        `json:"Id"`
	UserName       string        `json:"UserName"`
	NowPlayingItem *jfNowPlaying `json:"NowPlayingItem"`
}

func (c *jellyfinClient) Sessions(ctx context.Context) ([]Session, error) {
	var out []jfSession
	if err := c.api.getJSON(ctx, "/Sessions", nil, &out); err != nil {
		return nil, err
	}
	items := make([]Session, 0, len(out))
	for _, s := range out {
		sess := Session{ID: s.ID, UserName: s.UserName}
		if s.NowPlayingItem != nil {
			sess.NowPlaying = s.NowPlayingItem.Name
		}
		items = append(items, sess)
	}
	return items, nil
}

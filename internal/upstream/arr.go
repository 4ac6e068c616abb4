package upstream

import (
	"context"
	"net/url"
	"strconv"
	"time"
)

// arrClient talks to a Sonarr/Radarr-style v3 API using the X-Api-Key header.
type arrClient struct {
	api *apiClient
}

// NewArrClient builds a QueueService for one configured queue manager.
func NewArrClient(baseURL, apiKey string, timeout time.Duration) QueueService {
	return &arrClient{
		api: newAPIClient(baseURL, map[string]string{"X-Api-Key": apiKey}, timeout),
	}
}

type arrQueueRecord struct {
	ID                    int64  `json:"id"`
	Title                 string `json:"title"`
	TrackedDownloadState  string `json:"trackedDownloadState"`
	TrackedDownloadStatus string `json:"trackedDownloadStatus"`
}

type arrQueuePage struct {
	Records []arrQueueRecord `json:"records"`
}

func (c *arrClient) Queue(ctx context.Context, page, size int) ([]QueueItem, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(size))

	var out arrQueuePage
	if err := c.api.getJSON(ctx, "/api/v3/queue", q, &out); err != nil {
		return nil, err
	}
	items := make([]QueueItem, 0, len(out.Records))
	for _, r := range out.Records {
		items = append(items, QueueItem{
			ID:             r.ID,
			Title:          r.Title,
			DownloadState:  r.TrackedDownloadState,
			DownloadStatus: r.TrackedDownloadStatus,
		})
	}
	return items, nil
}

type arrHistoryRecord struct {
	ID          int64     `json:"id"`
	Date        time.Time `json:"date"`
	EventType   string    `json:"eventType"`
	SourceTitle string    `json:"sourceTitle"`
	// Sonarr reports seriesId, Radarr movieId; whichever is present wins.
	SeriesID int64 `json:"seriesId"`
	MovieID  int64 `json:"movieId"`
}

type arrHistoryPage struct {
	Records []arrHistoryRecord `json:"records"`
}

func (c *arrClient) History(ctx context.Context, page, size int, sortKey, sortDir string) ([]HistoryItem, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("pageSize", strconv.Itoa(size))
	q.Set("sortKey", sortKey)
	q.Set("sortDirection", sortDir)

	var out arrHistoryPage
	if err := c.api.getJSON(ctx, "/api/v3/history", q, &out); err != nil {
		return nil, err
	}
	items := make([]HistoryItem, 0, len(out.Records))
	for _, r := range out.Records {
		related := r.SeriesID
		if related == 0 {
			related = r.MovieID
		}
		items = append(items, HistoryItem{
			ID:          r.ID,
			Date:        r.Date,
			EventType:   r.EventType,
			SourceTitle: r.SourceTitle,
			RelatedID:   related,
		})
	}
	return items, nil
}

type arrHealthRecord struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (c *arrClient) Health(ctx context.Context) ([]HealthItem, error) {
	var out []arrHealthRecord
	if err := c.api.getJSON(ctx, "/api/v3/health", nil, &out); err != nil {
		return nil, err
	}
	items := make([]HealthItem, 0, len(out))
	for _, r := range out {
		items = append(items, HealthItem{Type: r.Type, Message: r.Message})
	}
	return items, nil
}

type arrCalendarRecord struct {
	Title      string    `json:"title"`
	AirDateUTC time.Time `json:"airDateUtc"`
	// Physical/digital releases (Radarr) fall back to inCinemas when airDateUtc
	// is absent.
	InCinemas time.Time `json:"inCinemas"`
	SeriesID  int64     `json:"seriesId"`
	ID        int64     `json:"id"`
}

func (c *arrClient) Calendar(ctx context.Context, start, end time.Time) ([]CalendarItem, error) {
	q := url.Values{}
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))

	var out []arrCalendarRecord
	if err := c.api.getJSON(ctx, "/api/v3/calendar", q, &out); err != nil {
		return nil, err
	}
	items := make([]CalendarItem, 0, len(out))
	for _, r := range out {
		air := r.AirDateUTC
		if air.IsZero() {
			air = r.InCinemas
		}
		related := r.SeriesID
		if related == 0 {
			related = r.ID
		}
		items = append(items, CalendarItem{Title: r.Title, AirDate: air, RelatedID: related})
	}
	return items, nil
}

package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

// qbtClient talks to the qBittorrent WebUI API. Authentication uses the
// SID session cookie from /api/v2/auth/login; on a 403 the session is
// re-established once and the call retried.
type qbtClient struct {
	base     string
	username string
	password string
	hc       *http.Client

	mu       sync.Mutex
	loggedIn bool
}

// NewQbittorrentClient builds a TorrentService for the configured client.
func NewQbittorrentClient(baseURL, username, password string, timeout time.Duration) TorrentService {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	jar, _ := cookiejar.New(nil)
	return &qbtClient{
		base:     strings.TrimRight(baseURL, "/"),
		username: username,
		password: password,
		hc:       &http.Client{Timeout: timeout, Jar: jar},
	}
}

func (c *qbtClient) login(ctx context.Context) error {
	form := url.Values{}
	form.Set("username", c.username)
	form.Set("password", c.password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/api/v2/auth/login", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	// qBittorrent rejects logins without a Referer matching the host.
	req.Header.Set("Referer", c.base)

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64))
	_ = resp.Body.Close()

	if resp.StatusCode != http.StatusOK || !strings.HasPrefix(string(body), "Ok") {
		return fmt.Errorf("qbittorrent login failed: status %d", resp.StatusCode)
	}
	return nil
}

func (c *qbtClient) ensureLogin(ctx context.Context, force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.loggedIn && !force {
		return nil
	}
	if err := c.login(ctx); err != nil {
		c.loggedIn = false
		return err
	}
	c.loggedIn = true
	return nil
}

type qbtTorrent struct {
	Hash     string  `json:"hash"`
	Name     string  `json:"name"`
	Progress float64 `json:"progress"`
}

func (c *qbtClient) Torrents(ctx context.Context) ([]Torrent, error) {
	if err := c.ensureLogin(ctx, false); err != nil {
		return nil, err
	}

	var raw []qbtTorrent
	status, err := c.fetchTorrents(ctx, &raw)
	if status == http.StatusForbidden {
		// Session expired; retry once with a fresh login.
		if err := c.ensureLogin(ctx, true); err != nil {
			return nil, err
		}
		status, err = c.fetchTorrents(ctx, &raw)
	}
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("qbittorrent torrents: unexpected status %d", status)
	}

	out := make([]Torrent, 0, len(raw))
	for _, t := range raw {
		out = append(out, Torrent{Hash: t.Hash, Name: t.Name, Progress: t.Progress})
	}
	return out, nil
}

func (c *qbtClient) fetchTorrents(ctx context.Context, out *[]qbtTorrent) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v2/torrents/info", nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusOK {
		if err := decodeJSON(resp.Body, out); err != nil {
			return resp.StatusCode, fmt.Errorf("qbittorrent torrents: decode: %w", err)
		}
	}
	return resp.StatusCode, nil
}

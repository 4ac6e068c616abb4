package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRequestTimeout = 15 * time.Second

// apiClient is the shared HTTP plumbing for the upstream implementations:
// base URL joining, static headers, per-request timeout, JSON decoding.
type apiClient struct {
	base    string
	headers map[string]string
	hc      *http.Client
}

func newAPIClient(baseURL string, headers map[string]string, timeout time.Duration) *apiClient {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &apiClient{
		base:    strings.TrimRight(baseURL, "/"),
		headers: headers,
		// Client-level timeout doubles as the per-call ceiling so a hung
		// upstream cannot occupy a poller task indefinitely.
		hc: &http.Client{Timeout: timeout},
	}
}

func (c *apiClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	u := c.base + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

func decodeJSON(r io.Reader, out any) error {
	return json.NewDecoder(r).Decode(out)
}

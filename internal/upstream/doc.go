// Package upstream defines the minimal read interfaces the watcher consumes
// from each external service, plus HTTP implementations for Sonarr/Radarr-style
// queue managers, the qBittorrent WebUI API, and a Jellyfin media server.
//
// The watcher only depends on the interfaces; the HTTP clients are wired in by
// the app from config. A service with an empty URL has no client and its
// poller is skipped.
package upstream

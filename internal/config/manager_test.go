package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) *Manager {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return NewManager(path)
}

const yamlConfig = `
logging:
  level: debug
  console: true
storage:
  path: /var/lib/mediawatch/state.db
  busy_timeout: 5s
push:
  subscriber: mailto:ops@example.com
  vapid_public_key: pub
  vapid_private_key: priv
services:
  queues:
    - name: sonarr
      url: http://sonarr:8989
      api_key: abc
    - name: radarr
      url: http://radarr:7878
      api_key: def
  qbittorrent:
    url: http://qbt:8080
    username: admin
    password: secret
  jellyfin:
    url: http://jellyfin:8096
    api_key: jf
`

func TestParseYAML(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", yamlConfig)

	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Console {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if cfg.Storage.Path != "/var/lib/mediawatch/state.db" || cfg.Storage.BusyTimeout != "5s" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Push.Subscriber != "mailto:ops@example.com" || cfg.Push.VAPIDPrivateKey != "priv" {
		t.Fatalf("push = %+v", cfg.Push)
	}
	if len(cfg.Services.Queues) != 2 || cfg.Services.Queues[1].Name != "radarr" {
		t.Fatalf("queues = %+v", cfg.Services.Queues)
	}
	if cfg.Services.Qbittorrent.Username != "admin" || cfg.Services.Jellyfin.APIKey != "jf" {
		t.Fatalf("services = %+v", cfg.Services)
	}
}

func TestParseJSON(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{
		"logging": {"console": true},
		"storage": {"path": "state.db"},
		"push": {"subscriber": "mailto:a@b", "vapid_public_key": "p", "vapid_private_key": "s"},
		"services": {"queues": [{"name": "sonarr", "url": "http://s", "api_key": "k"}]}
	}`)

	cfg, err := m.Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Storage.Path != "state.db" || len(cfg.Services.Queues) != 1 {
		t.Fatalf("cfg = %+v", cfg)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", `
storage:
  path: state.db
  pathh: oops
`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("unknown field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.json", `{"storage": {"path": "a"}} {"storage": {"path": "b"}}`)
	if _, err := m.Parse(); err == nil {
		t.Fatal("trailing data accepted")
	}
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	m := NewManager(filepath.Join(t.TempDir(), "nope.yaml"))
	if _, err := m.Parse(); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestLoadCommitsAndGetReturnsIt(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", yamlConfig)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get = %p, want committed %p", got, cfg)
	}
}

func TestSubscribePublishUnsubscribe(t *testing.T) {
	t.Parallel()
	m := writeConfig(t, "config.yaml", yamlConfig)
	ch := m.Subscribe(1)

	cfg := &Config{}
	m.publish(cfg)
	select {
	case got := <-ch:
		if got != cfg {
			t.Fatalf("received %p, want %p", got, cfg)
		}
	default:
		t.Fatal("no value published")
	}

	// Full buffer: the stale value is dropped for the newest.
	first, second := &Config{}, &Config{Logging: LoggingConfig{Level: "warn"}}
	m.publish(first)
	m.publish(second)
	if got := <-ch; got != second {
		t.Fatalf("received stale config, want newest")
	}

	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed on unsubscribe")
	}
	// Publishing after unsubscribe must not panic.
	m.publish(cfg)
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"5s", 5 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"", 0, false},
		{"  ", 0, false},
		{"banana", 0, true},
		{"-5s", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseDurationField("busy_timeout", tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseDurationField(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseDurationField(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}

	_, err := ParseDurationField("busy_timeout", "banana")
	if err == nil || !strings.Contains(err.Error(), "busy_timeout") {
		t.Errorf("error does not name the field: %v", err)
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	t.Parallel()
	got, err := ParseDurationOrDefault("request_timeout", "", 15*time.Second)
	if err != nil || got != 15*time.Second {
		t.Fatalf("got %v, %v", got, err)
	}
	got, err = ParseDurationOrDefault("request_timeout", "30s", 15*time.Second)
	if err != nil || got != 30*time.Second {
		t.Fatalf("got %v, %v", got, err)
	}
}

package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"mediawatch/internal/config"
	"mediawatch/internal/notifier"
	"mediawatch/internal/storage"
	"mediawatch/internal/upstream"
	"mediawatch/internal/watcher"
	"mediawatch/pkg/logx"
)

// App wires config, logging, storage, the upstream clients, the notifier and
// the watcher together, and owns their lifecycle.
type App struct {
	cfgm  *config.Manager
	logs  *logx.Service
	log   logx.Logger
	store storage.Store
	notif *notifier.Service
	watch *watcher.Service

	wg sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(logs.Logger().With(logx.String("comp", "config")))

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, logs.Logger().With(logx.String("comp", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	sender := notifier.NewWebPushSender(notifier.WebPushConfig{
		Subscriber:      cfg.Push.Subscriber,
		VAPIDPublicKey:  cfg.Push.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.Push.VAPIDPrivateKey,
		TTL:             cfg.Push.TTL,
	})
	notif := notifier.New(notifier.Config{
		Workers:    cfg.Watcher.DeliveryWorkers,
		RatePerSec: cfg.Watcher.DeliveryRatePerSec,
	}, store, sender, logs.Logger().With(logx.String("comp", "notifier")))

	pollers, err := buildPollers(cfg, store, logs.Logger())
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	watch := watcher.New(notif, logs.Logger().With(logx.String("comp", "watcher")), pollers...)

	return &App{
		cfgm:  cfgm,
		logs:  logs,
		log:   log,
		store: store,
		notif: notif,
		watch: watch,
	}, nil
}

// buildPollers constructs one poller per configured service plus the upcoming
// checker. Services with an empty URL are unconfigured: no client, no poller.
// Upstream endpoint changes take effect on process restart; only logging and
// delivery tunables hot-apply.
func buildPollers(cfg *config.Config, store storage.Store, log logx.Logger) ([]watcher.Poller, error) {
	timeout, err := config.ParseDurationOrDefault("watcher.request_timeout", cfg.Watcher.RequestTimeout, 15*time.Second)
	if err != nil {
		return nil, err
	}
	pageSize := cfg.Watcher.PageSize

	var (
		pollers []watcher.Poller
		sources []watcher.CalendarSource
	)
	for _, q := range cfg.Services.Queues {
		if q.URL == "" || q.Name == "" {
			continue
		}
		client := upstream.NewArrClient(q.URL, q.APIKey, timeout)
		plog := log.With(logx.String("comp", "poller"), logx.String("service", q.Name))
		pollers = append(pollers, watcher.NewQueuePoller(q.Name, client, store, plog, pageSize))
		sources = append(sources, watcher.CalendarSource{Name: q.Name, Client: client})
	}
	if cfg.Services.Qbittorrent.URL != "" {
		client := upstream.NewQbittorrentClient(
			cfg.Services.Qbittorrent.URL,
			cfg.Services.Qbittorrent.Username,
			cfg.Services.Qbittorrent.Password,
			timeout,
		)
		plog := log.With(logx.String("comp", "poller"), logx.String("service", "qbittorrent"))
		pollers = append(pollers, watcher.NewTorrentPoller("qbittorrent", client, store, plog))
	}
	if cfg.Services.Jellyfin.URL != "" {
		client := upstream.NewJellyfinClient(cfg.Services.Jellyfin.URL, cfg.Services.Jellyfin.APIKey, timeout)
		plog := log.With(logx.String("comp", "poller"), logx.String("service", "jellyfin"))
		pollers = append(pollers, watcher.NewMediaPoller("jellyfin", client, store, plog, pageSize))
	}

	clog := log.With(logx.String("comp", "upcoming"))
	pollers = append(pollers, watcher.NewUpcomingChecker(sources, store, clog))
	return pollers, nil
}

// Start begins polling with the persisted interval setting and installs the
// config hot-reload plumbing.
func (a *App) Start(ctx context.Context) error {
	set, err := a.store.Settings(ctx)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	a.watch.Start(ctx, set.PollInterval())

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(ctx)
	}()
	go func() {
		defer a.wg.Done()
		a.reloadLoop(ctx)
	}()
	return nil
}

func (a *App) reloadLoop(ctx context.Context) {
	ch := a.cfgm.Subscribe(1)
	defer a.cfgm.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-ch:
			if !ok || cfg == nil {
				return
			}
			a.logs.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.notif.Apply(notifier.Config{
				Workers:    cfg.Watcher.DeliveryWorkers,
				RatePerSec: cfg.Watcher.DeliveryRatePerSec,
			})
			a.log.Info("runtime config applied")
		}
	}
}

// Stop halts polling and releases resources. In-flight work from an already
// dispatched cycle runs to completion.
func (a *App) Stop(ctx context.Context) error {
	a.watch.Stop()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}

	err := a.store.Close()
	_ = a.logs.Close()
	return err
}

// ApplySettings persists new runtime settings and restarts the poll timer.
// The host settings UI calls this when the interval or timing changes.
func (a *App) ApplySettings(ctx context.Context, set storage.Settings) error {
	if err := a.store.UpdateSettings(ctx, set); err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	a.watch.Restart(ctx, set.PollInterval())
	return nil
}

// Dispatch pushes an ad hoc notification through the same preference-filtered
// delivery path the pollers use.
func (a *App) Dispatch(ctx context.Context, e notifier.Event) (int, error) {
	return a.notif.Dispatch(ctx, e)
}

// Store exposes the persistence layer to the host (subscription CRUD).
func (a *App) Store() storage.Store { return a.store }

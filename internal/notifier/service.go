package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"mediawatch/internal/storage"
	"mediawatch/pkg/logx"
)

// Store is the slice of persistence the notifier needs.
type Store interface {
	Subscriptions(ctx context.Context) ([]storage.SubscriptionWithPrefs, error)
	DeleteSubscription(ctx context.Context, id int64) error
	AppendHistory(ctx context.Context, e storage.HistoryEntry) error
}

type Config struct {
	// Workers bounds concurrent push sends per event.
	Workers int
	// RatePerSec rate-limits push sends across events.
	RatePerSec int
}

// Service fans one event out to all matching subscriptions.
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	store  Store
	sender Sender
	log    logx.Logger
}

func New(cfg Config, store Store, sender Sender, log logx.Logger) *Service {
	s := &Service{store: store, sender: sender, log: log}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Dispatch delivers the event to every enabled subscription, prunes endpoints
// the push provider reports as gone, and appends exactly one history row. It
// returns the number of successful deliveries.
//
// A failure against one subscription never affects the others; errors other
// than per-subscription delivery failures (subscription load, history append)
// are joined into the returned error.
func (s *Service) Dispatch(ctx context.Context, e Event) (int, error) {
	start := time.Now()

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	s.mu.Unlock()

	var errs []error

	subs, err := s.store.Subscriptions(ctx)
	if err != nil {
		s.log.Error("subscription load failed", logx.String("event", e.Type), logx.Err(err))
		errs = append(errs, fmt.Errorf("load subscriptions: %w", err))
		subs = nil
	}

	targets := subs[:0]
	for _, sub := range subs {
		if sub.Allows(e.Type) {
			targets = append(targets, sub)
		}
	}

	var delivered atomic.Int64
	if len(targets) > 0 {
		payload, merr := json.Marshal(e)
		if merr != nil {
			errs = append(errs, fmt.Errorf("encode payload: %w", merr))
		} else {
			var wg sync.WaitGroup
			sem := make(chan struct{}, cfg.Workers)
			for _, t := range targets {
				wg.Add(1)
				sem <- struct{}{}
				go func(sub storage.SubscriptionWithPrefs) {
					defer wg.Done()
					defer func() { <-sem }()
					defer func() {
						if r := recover(); r != nil {
							s.log.Error("panic in push delivery",
								logx.Int64("subscription", sub.Subscription.ID),
								logx.Any("panic", r),
								logx.String("stack", string(debug.Stack())))
						}
					}()
					if lim != nil {
						if err := lim.Wait(ctx); err != nil {
							return
						}
					}
					if s.deliverOne(ctx, payload, sub.Subscription, e.Type) {
						delivered.Add(1)
					}
				}(t)
			}
			wg.Wait()
		}
	}

	// History is appended exactly once per event, after the fan-out joins,
	// even when there were zero subscribers.
	if err := s.store.AppendHistory(ctx, storage.HistoryEntry{
		EventType: e.Type,
		Title:     e.Title,
		Body:      e.Body,
		Meta:      e.Meta,
	}); err != nil {
		s.log.Error("history append failed", logx.String("event", e.Type), logx.Err(err))
		errs = append(errs, fmt.Errorf("append history: %w", err))
	}

	n := int(delivered.Load())
	s.log.Debug("event dispatched",
		logx.String("event", e.Type),
		logx.Int("targets", len(targets)),
		logx.Int("delivered", n),
		logx.Duration("dur", time.Since(start)))
	return n, errors.Join(errs...)
}

// deliverOne attempts one push send and reports success. Transient failures
// keep the subscription (the next matching event is the retry); a gone
// endpoint is deleted along with its preferences.
func (s *Service) deliverOne(ctx context.Context, payload []byte, sub storage.PushSubscription, eventType string) bool {
	status, err := s.sender.Send(ctx, payload, sub)
	if err != nil {
		s.log.Warn("push send failed",
			logx.Int64("subscription", sub.ID),
			logx.String("event", eventType),
			logx.Err(err))
		return false
	}

	switch {
	case status >= 200 && status <= 299:
		return true
	case status == 404 || status == 410:
		if derr := s.store.DeleteSubscription(ctx, sub.ID); derr != nil {
			s.log.Error("gone subscription cleanup failed",
				logx.Int64("subscription", sub.ID), logx.Err(derr))
		} else {
			s.log.Info("subscription gone; removed",
				logx.Int64("subscription", sub.ID), logx.Int("status", status))
		}
		return false
	default:
		s.log.Warn("push rejected; subscription kept",
			logx.Int64("subscription", sub.ID),
			logx.String("event", eventType),
			logx.Int("status", status))
		return false
	}
}

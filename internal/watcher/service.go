package watcher

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"mediawatch/pkg/logx"
)

// Service drives the poll cycles. At most one live timer exists at any time;
// Start while running is a no-op unless the interval differs, in which case
// the timer is replaced. Stop cancels future ticks immediately and lets an
// in-flight cycle run to completion.
type Service struct {
	mu       sync.Mutex
	c        *cron.Cron
	interval time.Duration

	pollers  []Poller
	dispatch Dispatcher
	log      logx.Logger

	// inFlight guards against overlapping cycles if upstream calls outrun the
	// interval; an overlapped tick is skipped, not queued.
	inFlight atomic.Bool
}

func New(dispatch Dispatcher, log logx.Logger, pollers ...Poller) *Service {
	return &Service{pollers: pollers, dispatch: dispatch, log: log}
}

// Start begins ticking: one cycle immediately, then one every interval.
func (s *Service) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.c != nil {
		if interval == s.interval {
			return
		}
		s.stopLocked()
	}

	s.interval = interval
	s.c = cron.New(cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})))
	s.c.Schedule(cron.Every(interval), cron.FuncJob(func() { s.cycle(ctx) }))
	s.c.Start()
	s.log.Info("watcher started", logx.Duration("interval", interval), logx.Int("pollers", len(s.pollers)))

	// First cycle fires now; cron's first tick is one interval out.
	go s.cycle(ctx)
}

// Stop cancels the timer. It is idempotent.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Service) stopLocked() {
	if s.c == nil {
		return
	}
	s.c.Stop()
	s.c = nil
	s.log.Info("watcher stopped")
}

// Restart stops the timer and starts it with the new interval. The host calls
// this when the poll-interval setting changes.
func (s *Service) Restart(ctx context.Context, interval time.Duration) {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
	s.Start(ctx, interval)
}

// Running reports whether a timer is live.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.c != nil
}

// cycle fans out to all pollers concurrently and joins them. Every task has
// its own recover and error boundary: nothing propagates past the join.
func (s *Service) cycle(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.log.Debug("cycle still running; tick skipped")
		return
	}
	defer s.inFlight.Store(false)

	start := time.Now()
	var wg sync.WaitGroup
	for _, p := range s.pollers {
		wg.Add(1)
		go func(p Poller) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in poller",
						logx.String("service", p.Name()),
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())))
				}
			}()
			s.pollOne(ctx, p)
		}(p)
	}
	wg.Wait()
	s.log.Debug("poll cycle complete", logx.Duration("dur", time.Since(start)))
}

func (s *Service) pollOne(ctx context.Context, p Poller) {
	events, err := p.Poll(ctx)
	if err != nil {
		// The tick is abandoned without persisting; the fixed interval is the
		// retry backoff.
		s.log.Warn("poll failed", logx.String("service", p.Name()), logx.Err(err))
	}
	for _, e := range events {
		if _, derr := s.dispatch.Dispatch(ctx, e); derr != nil {
			s.log.Warn("dispatch failed",
				logx.String("service", p.Name()),
				logx.String("event", e.Type),
				logx.Err(derr))
		}
	}
}

// cronLogger adapts logx to the cron.Logger interface.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug("cron: "+msg, logx.Any("kv", fmt.Sprint(kv...)))
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Warn("cron: "+msg, logx.Err(err), logx.Any("kv", fmt.Sprint(kv...)))
}

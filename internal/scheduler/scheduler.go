// Package scheduler triggers sync runs on a fixed interval with a
// single-concurrent-run guarantee, and exposes a manual trigger sharing
// the same guard.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/framelabs/emosync/internal/ingest"
)

// ErrSyncInProgress is returned by TriggerNow when another run already
// holds the permit.
var ErrSyncInProgress = errors.New("a sync run is already in progress")

// SyncRunner is the orchestrator entry point the scheduler drives.
type SyncRunner interface {
	Sync(ctx context.Context, maxImports int) ingest.Result
}

// Config holds the operationally significant scheduling parameters.
type Config struct {
	Interval time.Duration
	// MisfireGrace is how late a tick may fire and still be honored.
	// Ticks delayed beyond it are skipped, never stacked.
	MisfireGrace time.Duration
	// MaxImports bounds scheduled runs; manual runs are unbounded.
	MaxImports int
}

// Scheduler runs the orchestrator periodically. A weighted semaphore of
// size one guarantees at most one run in flight: a tick or manual
// trigger arriving mid-run is refused, not queued.
type Scheduler struct {
	runner SyncRunner
	cfg    Config
	logger *slog.Logger

	permit *semaphore.Weighted

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped bool
}

// New creates a Scheduler. It does not start ticking until Start.
func New(runner SyncRunner, cfg Config, logger *slog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		logger: logger,
		permit: semaphore.NewWeighted(1),
		stopCh: make(chan struct{}),
	}
}

// Start begins the timer loop in a background goroutine.
func (s *Scheduler) Start() {
	go s.loop()
}

// Stop halts the timer loop. In-flight runs are not interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		close(s.stopCh)
	}
	s.mu.Unlock()
}

// withinGrace reports whether a tick that fired at now, scheduled for
// next, is still fresh enough to honor.
func withinGrace(now, next time.Time, grace time.Duration) bool {
	return now.Sub(next) <= grace
}

// realign advances next past now in whole intervals, so a stalled
// process never causes skipped ticks to stack.
func realign(next, now time.Time, interval time.Duration) time.Time {
	next = next.Add(interval)
	for !next.After(now) {
		next = next.Add(interval)
	}
	return next
}

// loop fires at every interval boundary. A wakeup delayed within the
// misfire grace window still runs; one delayed beyond it is skipped and
// the timer realigns to the next boundary.
func (s *Scheduler) loop() {
	next := time.Now().Add(s.cfg.Interval)
	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case now := <-timer.C:
			if withinGrace(now, next, s.cfg.MisfireGrace) {
				s.runScheduled()
			} else {
				s.logger.Warn("skipping tick delayed beyond misfire grace",
					"late", now.Sub(next).String())
			}

			next = realign(next, time.Now(), s.cfg.Interval)
			timer.Reset(time.Until(next))
		}
	}
}

// runScheduled executes one bounded sync run if the permit is free. A
// failure inside the run is logged and never terminates the scheduler.
func (s *Scheduler) runScheduled() {
	if !s.permit.TryAcquire(1) {
		s.logger.Warn("previous sync still running, skipping this tick")
		return
	}
	defer s.permit.Release(1)

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled sync panicked", "panic", r)
		}
	}()

	result := s.runner.Sync(context.Background(), s.cfg.MaxImports)
	s.logger.Info("scheduled sync finished",
		"new_imports", result.NewImports, "skipped", result.Skipped,
		"errors", result.Errors, "duration_seconds", result.DurationSeconds)
}

// TriggerNow runs an unbounded sync immediately and returns its result
// to the caller. Returns ErrSyncInProgress when a run already holds the
// permit.
func (s *Scheduler) TriggerNow(ctx context.Context) (ingest.Result, error) {
	if !s.permit.TryAcquire(1) {
		return ingest.Result{}, ErrSyncInProgress
	}
	defer s.permit.Release(1)

	return s.runner.Sync(ctx, 0), nil
}

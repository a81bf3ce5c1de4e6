package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/framelabs/emosync/internal/ingest"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubRunner records every Sync call and can block until released.
type stubRunner struct {
	mu      sync.Mutex
	calls   []int
	result  ingest.Result
	blockCh chan struct{}
}

func (r *stubRunner) Sync(ctx context.Context, maxImports int) ingest.Result {
	r.mu.Lock()
	r.calls = append(r.calls, maxImports)
	r.mu.Unlock()
	if r.blockCh != nil {
		<-r.blockCh
	}
	return r.result
}

func (r *stubRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func TestTriggerNow_ReturnsRunnerResult(t *testing.T) {
	runner := &stubRunner{result: ingest.Result{RunID: "r1", NewImports: 3, Skipped: 2}}
	s := New(runner, Config{Interval: time.Hour}, testLogger())

	result, err := s.TriggerNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r1", result.RunID)
	assert.Equal(t, 3, result.NewImports)

	// Manual runs are unbounded.
	assert.Equal(t, []int{0}, runner.calls)
}

func TestTriggerNow_RefusedWhileRunning(t *testing.T) {
	runner := &stubRunner{blockCh: make(chan struct{})}
	s := New(runner, Config{Interval: time.Hour}, testLogger())

	done := make(chan struct{})
	go func() {
		s.TriggerNow(context.Background()) //nolint:errcheck
		close(done)
	}()

	// Wait for the first run to hold the permit.
	require.Eventually(t, func() bool { return runner.callCount() == 1 },
		time.Second, time.Millisecond)

	_, err := s.TriggerNow(context.Background())
	assert.ErrorIs(t, err, ErrSyncInProgress)

	close(runner.blockCh)
	<-done

	// Permit is released once the run finishes.
	_, err = s.TriggerNow(context.Background())
	assert.NoError(t, err)
}

func TestScheduler_TicksWithBoundedRuns(t *testing.T) {
	runner := &stubRunner{}
	s := New(runner, Config{
		Interval:     10 * time.Millisecond,
		MisfireGrace: time.Second,
		MaxImports:   7,
	}, testLogger())

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return runner.callCount() >= 2 },
		time.Second, time.Millisecond)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.Equal(t, 7, runner.calls[0], "scheduled runs carry the import bound")
}

func TestScheduler_StopHaltsTicking(t *testing.T) {
	runner := &stubRunner{}
	s := New(runner, Config{Interval: 5 * time.Millisecond, MisfireGrace: time.Second}, testLogger())

	s.Start()
	require.Eventually(t, func() bool { return runner.callCount() >= 1 },
		time.Second, time.Millisecond)
	s.Stop()

	after := runner.callCount()
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, runner.callCount(), after+1, "at most one tick may race Stop")

	// Stop twice is safe.
	s.Stop()
}

func TestScheduler_TickSkippedWhileRunInFlight(t *testing.T) {
	runner := &stubRunner{blockCh: make(chan struct{})}
	s := New(runner, Config{Interval: 5 * time.Millisecond, MisfireGrace: time.Second}, testLogger())

	done := make(chan struct{})
	go func() {
		s.TriggerNow(context.Background()) //nolint:errcheck
		close(done)
	}()
	require.Eventually(t, func() bool { return runner.callCount() == 1 },
		time.Second, time.Millisecond)

	// Ticks fire while the manual run holds the permit; all are refused.
	s.Start()
	defer s.Stop()
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, 1, runner.callCount())

	close(runner.blockCh)
	<-done
}

func TestWithinGrace(t *testing.T) {
	next := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	grace := time.Minute

	// On time or early.
	assert.True(t, withinGrace(next, next, grace))
	assert.True(t, withinGrace(next.Add(-time.Second), next, grace))

	// Late within grace runs, including the boundary.
	assert.True(t, withinGrace(next.Add(30*time.Second), next, grace))
	assert.True(t, withinGrace(next.Add(time.Minute), next, grace))

	// Delayed beyond grace is skipped.
	assert.False(t, withinGrace(next.Add(61*time.Second), next, grace))
	assert.False(t, withinGrace(next.Add(time.Hour), next, grace))
}

func TestRealign(t *testing.T) {
	next := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)
	interval := time.Hour

	// Normal advance to the next boundary.
	assert.Equal(t, next.Add(time.Hour), realign(next, next.Add(time.Minute), interval))

	// A long stall skips whole intervals; missed boundaries never stack.
	got := realign(next, next.Add(3*time.Hour+time.Minute), interval)
	assert.Equal(t, next.Add(4*time.Hour), got)
	assert.True(t, got.After(next.Add(3*time.Hour+time.Minute)))
}

func TestNew_AppliesDefaults(t *testing.T) {
	s := New(&stubRunner{}, Config{}, nil)
	assert.Equal(t, time.Hour, s.cfg.Interval)
	assert.Equal(t, time.Minute, s.cfg.MisfireGrace)
	assert.NotNil(t, s.logger)
}

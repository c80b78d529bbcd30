package settlement

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedRunner records passes and optionally blocks each one until released.
type gatedRunner struct {
	mu        sync.Mutex
	triggers  []Trigger
	ctxErrs   []error
	gate      chan struct{}
	started   chan struct{}
	active    atomic.Int32
	maxActive atomic.Int32
}

func newGatedRunner(blocking bool) *gatedRunner {
	g := &gatedRunner{started: make(chan struct{}, 16)}
	if blocking {
		g.gate = make(chan struct{})
	}
	return g
}

func (g *gatedRunner) RunOnce(ctx context.Context, trigger Trigger) (Run, error) {
	n := g.active.Add(1)
	defer g.active.Add(-1)
	for {
		m := g.maxActive.Load()
		if n <= m || g.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	g.mu.Lock()
	g.triggers = append(g.triggers, trigger)
	g.mu.Unlock()
	select {
	case g.started <- struct{}{}:
	default:
	}

	if g.gate != nil {
		<-g.gate
	}

	g.mu.Lock()
	g.ctxErrs = append(g.ctxErrs, ctx.Err())
	g.mu.Unlock()
	return Run{ID: "run", Trigger: trigger, Settled: 1, Wins: 1, Errors: []string{}}, nil
}

func (g *gatedRunner) calls() []Trigger {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Trigger, len(g.triggers))
	copy(out, g.triggers)
	return out
}

func waitStarted(t *testing.T, g *gatedRunner) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not start")
	}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_ManualOverlapIsSkipped(t *testing.T) {
	runner := newGatedRunner(true)
	s := NewScheduler(runner, SchedulerConfig{}, nil)

	var first Run
	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		first, firstErr = s.RunSettlement(context.Background(), TriggerScheduled)
	}()
	waitStarted(t, runner)
	require.True(t, s.IsRunning())
	assert.Equal(t, StateRunning, s.State())

	_, err := s.RunSettlement(context.Background(), TriggerManual)
	assert.True(t, errors.Is(err, ErrRunInProgress), "err=%v", err)

	close(runner.gate)
	<-done
	require.NoError(t, firstErr)
	assert.Equal(t, 1, first.Settled)
	assert.False(t, s.IsRunning())
	assert.Equal(t, []Trigger{TriggerScheduled}, runner.calls())
	assert.Equal(t, int32(1), runner.maxActive.Load())
}

func TestScheduler_TickSkippedWhileManualRunInFlight(t *testing.T) {
	runner := newGatedRunner(true)
	s := NewScheduler(runner, SchedulerConfig{StartupDelay: time.Hour}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunSettlement(context.Background(), TriggerManual)
	}()
	waitStarted(t, runner)

	h := s.Start(context.Background(), 5*time.Millisecond)
	// Fire several ticks' worth of time plus an external trigger while the
	// manual pass holds the guard.
	s.Trigger()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []Trigger{TriggerManual}, runner.calls())

	close(runner.gate)
	<-done
	h.Stop()
	waitDone(t, h)
	assert.Equal(t, int32(1), runner.maxActive.Load())
}

func TestScheduler_StartRunsAfterDelayThenOnInterval(t *testing.T) {
	runner := newGatedRunner(false)
	s := NewScheduler(runner, SchedulerConfig{StartupDelay: 10 * time.Millisecond}, nil)

	var hookRuns atomic.Int32
	s.OnComplete(func(ctx context.Context, run Run) { hookRuns.Add(1) })

	h := s.Start(context.Background(), 20*time.Millisecond)
	require.Eventually(t, func() bool { return len(runner.calls()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, s.NextRun().IsZero())

	h.Stop()
	waitDone(t, h)

	assert.Equal(t, StateStopped, s.State())
	assert.True(t, s.NextRun().IsZero())
	for _, tr := range runner.calls() {
		assert.Equal(t, TriggerScheduled, tr)
	}
	assert.Equal(t, int32(len(runner.calls())), hookRuns.Load())

	last, ok := s.LastRun()
	require.True(t, ok)
	assert.Equal(t, 1, last.Settled)
}

func TestScheduler_StopCancelsStartupDelay(t *testing.T) {
	runner := newGatedRunner(false)
	s := NewScheduler(runner, SchedulerConfig{StartupDelay: time.Hour}, nil)

	h := s.Start(context.Background(), time.Hour)
	assert.Equal(t, StateIdle, s.State())
	h.Stop()
	h.Stop()
	waitDone(t, h)

	assert.Empty(t, runner.calls())
	assert.Equal(t, StateStopped, s.State())
	_, ok := s.LastRun()
	assert.False(t, ok)
}

func TestScheduler_StopNeverStarted(t *testing.T) {
	var h *Handle
	assert.NotPanics(t, h.Stop)
	select {
	case <-h.Done():
	default:
		t.Fatal("nil handle Done must be closed")
	}

	s := NewScheduler(newGatedRunner(false), SchedulerConfig{}, nil)
	assert.Equal(t, StateIdle, s.State())
}

func TestScheduler_StopLetsInFlightRunFinish(t *testing.T) {
	runner := newGatedRunner(true)
	s := NewScheduler(runner, SchedulerConfig{StartupDelay: 0}, nil)

	h := s.Start(context.Background(), time.Hour)
	waitStarted(t, runner)
	h.Stop()

	select {
	case <-h.Done():
		t.Fatal("Done closed while a pass was still in flight")
	case <-time.After(30 * time.Millisecond):
	}
	assert.Equal(t, StateRunning, s.State())

	close(runner.gate)
	waitDone(t, h)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	require.Len(t, runner.ctxErrs, 1)
	assert.NoError(t, runner.ctxErrs[0], "stopping must not cancel the in-flight pass")
	assert.Equal(t, StateStopped, s.State())
}

func TestScheduler_ParentCancelDoesNotAbortManualRun(t *testing.T) {
	runner := newGatedRunner(true)
	s := NewScheduler(runner, SchedulerConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.RunSettlement(ctx, TriggerManual)
	}()
	waitStarted(t, runner)
	cancel()
	close(runner.gate)
	<-done

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.NoError(t, runner.ctxErrs[0])
}

func TestScheduler_TriggerRunsDuringStartupDelay(t *testing.T) {
	runner := newGatedRunner(false)
	s := NewScheduler(runner, SchedulerConfig{StartupDelay: time.Hour}, nil)

	h := s.Start(context.Background(), time.Hour)
	defer func() {
		h.Stop()
		waitDone(t, h)
	}()

	s.Trigger()
	waitStarted(t, runner)
	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []Trigger{TriggerNotify}, runner.calls())
}

func TestScheduler_TriggersCoalesce(t *testing.T) {
	runner := newGatedRunner(false)
	s := NewScheduler(runner, SchedulerConfig{StartupDelay: time.Hour}, nil)

	s.Trigger()
	s.Trigger()
	s.Trigger()

	h := s.Start(context.Background(), time.Hour)
	waitStarted(t, runner)
	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	h.Stop()
	waitDone(t, h)

	assert.Equal(t, []Trigger{TriggerNotify}, runner.calls())
}

func TestScheduler_StartTwiceReturnsSameHandle(t *testing.T) {
	s := NewScheduler(newGatedRunner(false), SchedulerConfig{StartupDelay: time.Hour}, nil)
	h1 := s.Start(context.Background(), time.Hour)
	h2 := s.Start(context.Background(), time.Hour)
	assert.Same(t, h1, h2)
	h1.Stop()
	waitDone(t, h1)

	h3 := s.Start(context.Background(), time.Hour)
	assert.NotSame(t, h1, h3)
	h3.Stop()
	waitDone(t, h3)
}

func TestScheduler_WithEngineSettlesOnce(t *testing.T) {
	entries := newMemEntries(openEntry("e1", "NBA", "2024-03-01", "Boston", "Miami"))
	games := &memGames{games: []GameRecord{finalGame("g1", "NBA", "2024-03-01", "Miami", "Boston", 98, 104)}}
	s := NewScheduler(newTestEngine(entries, games, nil), SchedulerConfig{StartupDelay: 0}, nil)

	var passes atomic.Int32
	s.OnComplete(func(ctx context.Context, run Run) { passes.Add(1) })

	h := s.Start(context.Background(), 5*time.Millisecond)
	require.Eventually(t, func() bool { return passes.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	h.Stop()
	waitDone(t, h)

	run, err := s.RunSettlement(context.Background(), TriggerManual)
	require.NoError(t, err)
	assert.Equal(t, 0, run.Settled)
	assert.Equal(t, 1, entries.settles)
}

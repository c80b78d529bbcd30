package settlement

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Runner executes one settlement pass. *Engine is the production Runner.
type Runner interface {
	RunOnce(ctx context.Context, trigger Trigger) (Run, error)
}

// Hook is called after every completed pass, scheduled or manual.
type Hook func(ctx context.Context, run Run)

// State is the scheduler lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// SchedulerConfig controls timing around each pass.
type SchedulerConfig struct {
	// StartupDelay postpones the first scheduled pass so dependent data can
	// become available.
	StartupDelay time.Duration
	// RunTimeout bounds a single pass. Passes are detached from the caller's
	// cancellation so a shutdown never aborts a write loop midway.
	RunTimeout time.Duration
}

// Scheduler owns recurring execution and overlap suppression. At most one
// pass runs at a time in this process; a tick or manual request that finds
// a pass in flight is skipped, not queued.
type Scheduler struct {
	runner  Runner
	cfg     SchedulerConfig
	logger  *slog.Logger
	running atomic.Bool
	trigger chan struct{}

	mu      sync.Mutex
	hooks   []Hook
	last    *Run
	next    time.Time
	handle  *Handle
	stopped bool
}

// NewScheduler creates a scheduler around runner.
func NewScheduler(runner Runner, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StartupDelay < 0 {
		cfg.StartupDelay = defaultStartupDelay
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	return &Scheduler{
		runner:  runner,
		cfg:     cfg,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
}

// OnComplete registers a hook run after every pass. Register hooks before
// Start; hooks run on the pass's goroutine.
func (s *Scheduler) OnComplete(h Hook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, h)
}

// IsRunning reports whether a pass is currently executing.
func (s *Scheduler) IsRunning() bool {
	return s.running.Load()
}

// State reports idle, running or stopped.
func (s *Scheduler) State() State {
	if s.running.Load() {
		return StateRunning
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return StateStopped
	}
	return StateIdle
}

// LastRun returns the most recent completed pass.
func (s *Scheduler) LastRun() (Run, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Run{}, false
	}
	return *s.last, true
}

// NextRun returns when the next scheduled pass is due, zero if the
// scheduler is not started.
func (s *Scheduler) NextRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next
}

// RunSettlement executes one pass synchronously for the caller. It returns
// ErrRunInProgress without running if another pass is in flight.
func (s *Scheduler) RunSettlement(ctx context.Context, trigger Trigger) (Run, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("Settlement request skipped, run in progress", "trigger", trigger)
		return Run{}, ErrRunInProgress
	}
	defer s.running.Store(false)
	return s.execute(ctx, trigger)
}

// Trigger asks a started scheduler for an extra pass as soon as possible.
// Repeated calls before the pass starts coalesce into one. It never blocks.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Start begins recurring execution: one pass after StartupDelay, then one
// every interval, until the returned handle is stopped. Calling Start on a
// scheduler that is already started returns the existing handle.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) *Handle {
	if interval <= 0 {
		interval = defaultInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.handle != nil && !s.handle.finished() {
		s.logger.Warn("Settlement scheduler already started")
		return s.handle
	}

	loopCtx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	s.handle = h
	s.stopped = false

	go s.loop(loopCtx, interval, h)

	s.logger.Info("Settlement scheduler started",
		"interval", interval, "startup_delay", s.cfg.StartupDelay)
	return h
}

func (s *Scheduler) loop(ctx context.Context, interval time.Duration, h *Handle) {
	var inflight sync.WaitGroup
	defer func() {
		inflight.Wait()
		s.mu.Lock()
		s.stopped = true
		s.next = time.Time{}
		s.mu.Unlock()
		close(h.done)
		s.logger.Info("Settlement scheduler stopped")
	}()

	delay := time.NewTimer(s.cfg.StartupDelay)
	defer delay.Stop()
	s.setNext(time.Now().Add(s.cfg.StartupDelay))

	select {
	case <-ctx.Done():
		return
	case <-delay.C:
		s.tick(ctx, TriggerScheduled, &inflight)
	case <-s.trigger:
		s.tick(ctx, TriggerNotify, &inflight)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	s.setNext(time.Now().Add(interval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.setNext(time.Now().Add(interval))
			s.tick(ctx, TriggerScheduled, &inflight)
		case <-s.trigger:
			s.tick(ctx, TriggerNotify, &inflight)
		}
	}
}

// tick starts a pass in the background unless one is already running. The
// check-and-set is atomic so a concurrent manual request cannot slip in.
func (s *Scheduler) tick(ctx context.Context, trigger Trigger, inflight *sync.WaitGroup) {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Info("Settlement tick skipped, previous run still in progress", "trigger", trigger)
		return
	}
	inflight.Add(1)
	go func() {
		defer inflight.Done()
		defer s.running.Store(false)
		_, _ = s.execute(ctx, trigger)
	}()
}

func (s *Scheduler) execute(ctx context.Context, trigger Trigger) (Run, error) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RunTimeout)
	defer cancel()

	run, err := s.runner.RunOnce(runCtx, trigger)
	if err != nil {
		s.logger.Error("Settlement run aborted", "trigger", trigger, "error", err, "summary", run.Summary())
	} else {
		s.logger.Info("Settlement run complete", "summary", run.Summary())
		for _, e := range run.Errors {
			s.logger.Warn("settlement error", "run_id", run.ID, "error", e)
		}
	}

	s.mu.Lock()
	s.last = &run
	hooks := make([]Hook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, h := range hooks {
		h(runCtx, run)
	}
	return run, err
}

func (s *Scheduler) setNext(t time.Time) {
	s.mu.Lock()
	s.next = t
	s.mu.Unlock()
}

// --------------------------------------------------------------------------
// Handle
// --------------------------------------------------------------------------

// Handle is owned by whoever started the scheduler and is the only way to
// stop it.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

// Stop cancels the pending startup delay and the recurring trigger. A pass
// already in flight is left to finish; wait on Done for it. Stop is safe on
// a nil handle and may be called more than once.
func (h *Handle) Stop() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
}

// Done is closed once the scheduler loop has exited and any in-flight pass
// has finished.
func (h *Handle) Done() <-chan struct{} {
	if h == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return h.done
}

func (h *Handle) finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

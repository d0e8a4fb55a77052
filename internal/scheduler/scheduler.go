// Package scheduler owns the timing of the compliance sweep and the dispatch
// drain. Each timer runs at most one unit of work at a time.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"compliance-engine/internal/common/errors"
	"compliance-engine/internal/common/logger"
	"compliance-engine/internal/common/metrics"
	"compliance-engine/internal/common/observability"
	"compliance-engine/internal/compliance"
	"compliance-engine/internal/dispatch"
)

const (
	TimerSweep = "sweep"
	TimerDrain = "drain"
)

const (
	DefaultSweepInterval = 5 * time.Minute
	DefaultDrainInterval = 30 * time.Second
	DefaultTickTimeout   = 2 * time.Minute
)

type Sweeper interface {
	Sweep(ctx context.Context) (compliance.SweepResult, error)
}

type Drainer interface {
	Drain(ctx context.Context) (dispatch.DrainResult, error)
}

type Config struct {
	SweepInterval time.Duration
	DrainInterval time.Duration
	// TickTimeout bounds a single timer-driven run. Stop never cancels it.
	TickTimeout time.Duration
	RunOnStart  bool
}

func (c Config) withDefaults() Config {
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = DefaultDrainInterval
	}
	if c.TickTimeout <= 0 {
		c.TickTimeout = DefaultTickTimeout
	}
	return c
}

type Scheduler struct {
	sweeper Sweeper
	drainer Drainer
	cfg     Config
	logger  logger.Logger
	errors  *errors.ErrorHandler
	obs     *observability.Observability

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	wg      sync.WaitGroup

	// one-slot semaphores; holding the slot means a run is in progress
	sweepGuard chan struct{}
	drainGuard chan struct{}
}

// New builds a stopped scheduler. obs may be nil.
func New(sweeper Sweeper, drainer Drainer, cfg Config, log logger.Logger, obs *observability.Observability) *Scheduler {
	log = logger.ForComponent(log, "scheduler")
	return &Scheduler{
		sweeper:    sweeper,
		drainer:    drainer,
		cfg:        cfg.withDefaults(),
		logger:     log,
		errors:     errors.NewErrorHandler(log),
		obs:        obs,
		sweepGuard: make(chan struct{}, 1),
		drainGuard: make(chan struct{}, 1),
	}
}

// Start launches both timers. Calling it while running only logs a warning.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		s.logger.Warn("Scheduler already running", nil)
		return
	}
	s.running = true
	s.stop = make(chan struct{})

	s.wg.Add(2)
	go s.loop(TimerSweep, s.cfg.SweepInterval, s.stop, s.sweepTick)
	go s.loop(TimerDrain, s.cfg.DrainInterval, s.stop, s.drainTick)

	s.logger.Info("Scheduler started", map[string]interface{}{
		"sweepIntervalMs": s.cfg.SweepInterval.Milliseconds(),
		"drainIntervalMs": s.cfg.DrainInterval.Milliseconds(),
		"runOnStart":      s.cfg.RunOnStart,
	})
	if s.cfg.RunOnStart {
		s.sweepTick()
	}
}

// Stop cancels future ticks. In-flight runs finish on their own; use Wait to
// block until they have. Safe to call from a signal handler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.logger.Warn("Scheduler already stopped", nil)
		return
	}
	close(s.stop)
	s.running = false
	s.logger.Info("Scheduler stopped", nil)
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until both timer loops have exited and in-flight runs are done.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// TriggerNow runs one sweep synchronously. It waits for a sweep already in
// progress rather than running alongside it, and gives up when ctx is done.
func (s *Scheduler) TriggerNow(ctx context.Context) (result compliance.SweepResult, err error) {
	select {
	case s.sweepGuard <- struct{}{}:
	case <-ctx.Done():
		return result, ctx.Err()
	}
	defer func() { <-s.sweepGuard }()

	start := time.Now()
	status := "ok"
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			err = s.errors.Recover("manual sweep", r, nil)
		}
		s.record(TimerSweep, status, start)
	}()

	s.logger.Info("Manual compliance sweep triggered", nil)
	result, err = s.sweeper.Sweep(ctx)
	if err != nil {
		status = "failed"
	}
	return result, err
}

func (s *Scheduler) loop(timer string, interval time.Duration, stop <-chan struct{}, tick func()) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tick()
		}
	}
}

func (s *Scheduler) sweepTick() {
	s.fire(TimerSweep, s.sweepGuard, func(ctx context.Context) error {
		_, err := s.sweeper.Sweep(ctx)
		return err
	})
}

func (s *Scheduler) drainTick() {
	s.fire(TimerDrain, s.drainGuard, func(ctx context.Context) error {
		_, err := s.drainer.Drain(ctx)
		return err
	})
}

// fire runs work in its own goroutine unless the timer's previous run still
// holds the guard, in which case the tick is skipped.
func (s *Scheduler) fire(timer string, guard chan struct{}, work func(ctx context.Context) error) {
	select {
	case guard <- struct{}{}:
	default:
		metrics.TicksSkipped.WithLabelValues(timer).Inc()
		s.logger.Debug("Tick skipped, previous run still in progress", map[string]interface{}{"timer": timer})
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() { <-guard }()
		s.execute(timer, work)
	}()
}

func (s *Scheduler) execute(timer string, work func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.TickTimeout)
	defer cancel()

	start := time.Now()
	status := "ok"
	fields := map[string]interface{}{"timer": timer}
	defer func() {
		if r := recover(); r != nil {
			status = "panic"
			s.errors.Recover(timer+" tick", r, fields)
		}
		s.record(timer, status, start)
	}()

	if err := work(ctx); err != nil {
		status = "failed"
		s.errors.Handle(fmt.Sprintf("%s tick", timer), err, fields)
	}
}

func (s *Scheduler) record(timer, status string, start time.Time) {
	ctx := context.Background()
	s.obs.RecordTick(ctx, timer, status)
	s.obs.RecordTickDuration(ctx, timer, time.Since(start))
}

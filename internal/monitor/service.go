// Package monitor sequences one polling cycle:
//
//	COLLECT -> DIFF -> EXPIRY_SCAN -> NOTIFY -> PERSIST -> MIRROR
//
// and owns the consistency contract between the collector, the diff engine,
// the expiry scanner, the dispatcher and the history store:
//
//   - A failed or timed-out collection aborts the cycle before any diff runs,
//     so the stored baseline is never compared against partial data.
//   - Diff always runs against the last durable snapshot, never an in-memory
//     one, and persist happens after notify so notification content always
//     reflects the prior durable baseline.
//   - Cycles never overlap: the cron trigger skips a tick while a cycle is
//     in flight, and manual runs take the same single-flight lock.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"stockwatch/internal/collector"
	"stockwatch/internal/eventbus"
	"stockwatch/internal/history"
	"stockwatch/internal/inventory"
	"stockwatch/internal/mirror"
	"stockwatch/internal/notify"
	"stockwatch/pkg/logx"
)

// ExpiryConfig controls the expiry scan step.
type ExpiryConfig struct {
	Enabled       bool
	ThresholdDays int
}

// Config controls the polling loop.
type Config struct {
	Enabled        bool
	Interval       time.Duration
	CollectTimeout time.Duration
	Expiry         ExpiryConfig
	HistorySize    int // cycle-outcome ring buffer (operational introspection)
}

// Dispatcher is the slice of the notification service the monitor needs.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []inventory.ChangeEvent, alerts []inventory.ExpiryAlert, thresholdDays int) ([]notify.Outcome, error)
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	coll  collector.Collector
	store history.Store
	disp  Dispatcher
	sink  mirror.Sink
	bus   eventbus.Bus

	c *cron.Cron
	// base is the run context handed to Start; it outlives Stop so a later
	// Apply can re-enable scheduling.
	base    context.Context
	cancel  context.CancelFunc
	startWG sync.WaitGroup

	// cycleMu is the single-flight lock: no two cycles ever run concurrently,
	// whether triggered by cron, RunOnce, or the immediate first poll.
	cycleMu sync.Mutex

	hmu  sync.Mutex
	runs []CycleResult
}

func New(cfg Config, coll collector.Collector, store history.Store, disp Dispatcher, sink mirror.Sink, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if sink == nil {
		sink = mirror.Nop{}
	}
	s := &Service{
		coll:  coll,
		store: store,
		disp:  disp,
		sink:  sink,
		bus:   bus,
		log:   log,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = 2 * time.Minute
	}
	if cfg.Expiry.ThresholdDays <= 0 {
		cfg.Expiry.ThresholdDays = 30
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	s.cfg = cfg
}

// Apply updates the config at runtime. An interval change restarts the cron
// trigger and flipping enabled starts or stops scheduling in place; an
// in-flight cycle is unaffected either way.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldInterval := s.cfg.Interval
	wasRunning := s.c != nil
	s.applyLocked(cfg)
	enabled := s.cfg.Enabled
	interval := s.cfg.Interval
	base := s.base
	s.mu.Unlock()

	canRun := base != nil && base.Err() == nil
	switch {
	case wasRunning && (!enabled || interval != oldInterval):
		s.Stop(context.Background())
		if enabled && canRun {
			_ = s.Start(base)
		}
	case !wasRunning && enabled && canRun:
		_ = s.Start(base)
	}
}

// Start begins scheduled polling and fires the first cycle immediately.
// A disabled monitor still records the run context, so enabling it later via
// Apply works without a restart. It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	s.base = ctx
	if s.c != nil || !s.cfg.Enabled {
		s.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	cl := cronLogger{log: s.log.With(logx.String("comp", "cron"))}
	c := cron.New(cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	spec := fmt.Sprintf("@every %s", s.cfg.Interval)
	if _, err := c.AddFunc(spec, func() { s.tick(runCtx) }); err != nil {
		cancel()
		s.cancel = nil
		s.mu.Unlock()
		return fmt.Errorf("schedule %q: %w", spec, err)
	}
	s.c = c
	interval := s.cfg.Interval
	s.mu.Unlock()

	c.Start()
	s.log.Info("monitor started", logx.Duration("interval", interval))

	// First check runs right away; subsequent ones come from cron.
	s.startWG.Add(1)
	go func() {
		defer s.startWG.Done()
		s.tick(runCtx)
	}()
	return nil
}

// Stop halts scheduling. An in-flight cycle runs to completion; shutdown is
// honored at cycle boundaries only.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.startWG.Wait()
	if cancel != nil {
		cancel()
	}
	s.log.Info("monitor stopped")
}

// tick runs one cycle unless another is already in flight.
func (s *Service) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if !s.cycleMu.TryLock() {
		s.log.Warn("cycle still running, skipping tick")
		return
	}
	defer s.cycleMu.Unlock()
	s.runCycle(ctx)
}

// RunOnce executes exactly one cycle synchronously (the -once mode and
// tests). It takes the same single-flight lock as scheduled ticks.
func (s *Service) RunOnce(ctx context.Context) (CycleResult, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	return s.runCycle(ctx)
}

// History returns the most recent cycle outcomes, newest last.
func (s *Service) History() []CycleResult {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]CycleResult(nil), s.runs...)
}

func (s *Service) recordRun(r CycleResult) {
	s.mu.Lock()
	max := s.cfg.HistorySize
	s.mu.Unlock()

	s.hmu.Lock()
	s.runs = append(s.runs, r)
	if len(s.runs) > max {
		s.runs = s.runs[len(s.runs)-max:]
	}
	s.hmu.Unlock()
}

// cronLogger adapts logx to cron's logging interface.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug(msg, logx.Any("kv", kv))
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error(msg, logx.Err(err), logx.Any("kv", kv))
}

// Package notify implements the notification dispatcher: a bounded queue,
// a small worker pool, token-bucket rate limiting, and a cross-cycle
// "already notified" suppression set.
//
// Delivery failures are reported per item and are never fatal: the monitor
// logs them and persistence proceeds regardless.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"stockwatch/internal/eventbus"
	"stockwatch/internal/inventory"
	"stockwatch/internal/transport"
	"stockwatch/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrStopped   = errors.New("notifier stopped")
	ErrQueueFull = errors.New("notifier queue full")
)

type job struct {
	text string
	refs []string
	done chan []Outcome
}

// Service is safe for concurrent use; Dispatch is normally called once per
// cycle by the monitor.
type Service struct {
	mu sync.Mutex

	log     logx.Logger
	adapter transport.Adapter
	bus     eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	queue chan job
	// base is the run context handed to Start; it outlives Stop so a later
	// Apply can re-enable the worker pool.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Suppression set: key -> suppress until.
	dmu   sync.Mutex
	dedup map[string]time.Time
}

func New(cfg Config, adapter transport.Adapter, bus eventbus.Bus, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:     log,
		adapter: adapter,
		bus:     bus,
		dedup:   map[string]time.Time{},
	}
	s.applyLocked(cfg)
	s.loadDedup()
	return s
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Apply updates the config at runtime. Flipping enabled starts or stops the
// worker pool in place; other fields take effect on the next dispatch.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	enabled := s.cfg.Enabled
	running := s.queue != nil
	base := s.base
	s.mu.Unlock()

	switch {
	case enabled && !running:
		if base != nil && base.Err() == nil {
			s.Start(base)
		}
	case !enabled && running:
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		s.Stop(stopCtx)
		cancel()
	}
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start is idempotent. A disabled dispatcher still records the run context,
// so enabling it later via Apply works without a restart.
func (s *Service) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.base = ctx
	if s.queue != nil || !s.cfg.Enabled {
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	workers := s.cfg.Workers
	q := s.queue
	s.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer s.wg.Done()
			s.workerLoop(runCtx, q)
		}()
	}
}

// Stop stops intake, drains outstanding jobs best-effort until ctx expires,
// and flushes the suppression set.
func (s *Service) Stop(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	q := s.queue
	cancel := s.cancel
	s.queue = nil
	s.cancel = nil
	s.mu.Unlock()

	if q == nil {
		return
	}
	close(q)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}
	s.saveDedup()
}

// Dispatch delivers one cycle's events and alerts as per-kind digests and
// returns one outcome per item. The returned error covers enqueue problems
// only; individual delivery failures live in the outcomes.
func (s *Service) Dispatch(ctx context.Context, events []inventory.ChangeEvent, alerts []inventory.ExpiryAlert, thresholdDays int) ([]Outcome, error) {
	s.mu.Lock()
	enabled := s.cfg.Enabled
	q := s.queue
	window := s.cfg.DedupWindow
	s.mu.Unlock()

	if !enabled {
		return nil, ErrDisabled
	}
	if q == nil {
		return nil, ErrStopped
	}

	var outcomes []Outcome
	var jobs []job

	// Change events.
	var liveEvents []inventory.ChangeEvent
	var liveEventRefs []string
	for _, ev := range events {
		key := changeKey(ev)
		if s.suppressed(key, window) {
			outcomes = append(outcomes, Outcome{Ref: key, Deduped: true})
			s.publish(eventbus.TopicNotifyDeduped, key, nil)
			continue
		}
		liveEvents = append(liveEvents, ev)
		liveEventRefs = append(liveEventRefs, key)
	}
	if len(liveEvents) > 0 {
		jobs = append(jobs, job{
			text: renderChangeDigest(liveEvents),
			refs: liveEventRefs,
			done: make(chan []Outcome, 1),
		})
	}

	// Expiry alerts.
	var liveAlerts []inventory.ExpiryAlert
	var liveAlertRefs []string
	for _, a := range alerts {
		key := alertKey(a)
		if s.suppressed(key, window) {
			outcomes = append(outcomes, Outcome{Ref: key, Deduped: true})
			s.publish(eventbus.TopicNotifyDeduped, key, nil)
			continue
		}
		liveAlerts = append(liveAlerts, a)
		liveAlertRefs = append(liveAlertRefs, key)
	}
	if len(liveAlerts) > 0 {
		jobs = append(jobs, job{
			text: renderExpiryDigest(liveAlerts, thresholdDays),
			refs: liveAlertRefs,
			done: make(chan []Outcome, 1),
		})
	}

	for i := range jobs {
		select {
		case q <- jobs[i]:
		default:
			for _, ref := range jobs[i].refs {
				outcomes = append(outcomes, Outcome{Ref: ref, Err: ErrQueueFull})
			}
			jobs[i].done = nil
		}
	}

	for _, j := range jobs {
		if j.done == nil {
			continue
		}
		select {
		case out := <-j.done:
			outcomes = append(outcomes, out...)
		case <-ctx.Done():
			for _, ref := range j.refs {
				outcomes = append(outcomes, Outcome{Ref: ref, Err: ctx.Err()})
			}
		}
	}
	return outcomes, nil
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for j := range q {
		out := s.deliver(ctx, j)
		select {
		case j.done <- out:
		default:
		}
	}
}

func (s *Service) deliver(ctx context.Context, j job) []Outcome {
	s.mu.Lock()
	lim := s.limiter
	target := s.cfg.Target
	window := s.cfg.DedupWindow
	s.mu.Unlock()

	out := make([]Outcome, 0, len(j.refs))
	if err := lim.Wait(ctx); err != nil {
		for _, ref := range j.refs {
			out = append(out, Outcome{Ref: ref, Err: err})
		}
		return out
	}

	err := s.adapter.SendText(ctx, target, j.text, &transport.SendOptions{DisablePreview: true})
	if err != nil {
		for _, ref := range j.refs {
			nerr := &NotificationError{Ref: ref, Err: err}
			out = append(out, Outcome{Ref: ref, Err: nerr})
			s.publish(eventbus.TopicNotifyFailed, ref, err)
		}
		return out
	}

	// Delivery succeeded: only now do the items enter the suppression set,
	// so a failed send is retried on the next cycle.
	until := time.Now().Add(window)
	for _, ref := range j.refs {
		if window > 0 {
			s.markNotified(ref, until)
		}
		out = append(out, Outcome{Ref: ref, Delivered: true})
		s.publish(eventbus.TopicNotifySent, ref, nil)
	}
	if window > 0 {
		s.saveDedup()
	}
	return out
}

func (s *Service) publish(topic, ref string, err error) {
	if s.bus == nil {
		return
	}
	data := map[string]string{"ref": ref}
	if err != nil {
		data["error"] = err.Error()
	}
	s.bus.Publish(eventbus.Event{Topic: topic, Data: data})
}

// ---- suppression set ----

func (s *Service) suppressed(key string, window time.Duration) bool {
	if window <= 0 {
		return false
	}
	s.dmu.Lock()
	defer s.dmu.Unlock()
	until, ok := s.dedup[key]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(s.dedup, key)
		return false
	}
	return true
}

func (s *Service) markNotified(key string, until time.Time) {
	s.dmu.Lock()
	s.dedup[key] = until
	s.dmu.Unlock()
}

func (s *Service) loadDedup() {
	s.mu.Lock()
	path := s.cfg.DedupPath
	s.mu.Unlock()
	if path == "" {
		return
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("failed loading notify dedup state", logx.Err(err))
		}
		return
	}
	var m map[string]time.Time
	if err := json.Unmarshal(b, &m); err != nil {
		s.log.Warn("notify dedup state unreadable, starting fresh", logx.Err(err))
		return
	}
	now := time.Now()
	s.dmu.Lock()
	for k, until := range m {
		if until.After(now) {
			s.dedup[k] = until
		}
	}
	s.dmu.Unlock()
}

// saveDedup snapshots the suppression set atomically (tmp + rename).
func (s *Service) saveDedup() {
	s.mu.Lock()
	path := s.cfg.DedupPath
	s.mu.Unlock()
	if path == "" {
		return
	}

	now := time.Now()
	s.dmu.Lock()
	m := make(map[string]time.Time, len(s.dedup))
	for k, until := range s.dedup {
		if until.After(now) {
			m[k] = until
		} else {
			delete(s.dedup, k)
		}
	}
	s.dmu.Unlock()

	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		_ = os.MkdirAll(dir, 0o755)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		s.log.Warn("failed writing notify dedup state", logx.Err(err))
		return
	}
	if err := os.Rename(tmp, path); err != nil {
		s.log.Warn("failed committing notify dedup state", logx.Err(err))
	}
}

package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"stockwatch/internal/eventbus"
	"stockwatch/internal/inventory"
	"stockwatch/internal/notify"
	"stockwatch/pkg/logx"
)

// CycleResult summarizes one completed (or aborted) cycle.
type CycleResult struct {
	RunID      string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	SnapshotID int64         `json:"snapshot_id,omitempty"`
	Events     int           `json:"events"`
	Alerts     int           `json:"alerts"`
	Error      string        `json:"error,omitempty"`
}

func (s *Service) runCycle(ctx context.Context) (CycleResult, error) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	res := CycleResult{RunID: uuid.NewString(), StartedAt: time.Now()}
	log := s.log.With(logx.String("run_id", res.RunID))

	finish := func(err error) (CycleResult, error) {
		res.Duration = time.Since(res.StartedAt)
		if err != nil {
			res.Error = err.Error()
			s.publishCycle(eventbus.TopicCycleFailed, res)
		} else {
			s.publishCycle(eventbus.TopicCycleCompleted, res)
		}
		s.recordRun(res)
		return res, err
	}

	// COLLECT. A timeout is handled exactly like any other collection
	// failure: abort before diffing, baseline untouched.
	collectCtx, cancel := context.WithTimeout(ctx, cfg.CollectTimeout)
	snap, err := s.coll.Collect(collectCtx)
	cancel()
	if err != nil {
		log.Error("collection failed, cycle aborted", logx.Err(err))
		return finish(fmt.Errorf("collect: %w", err))
	}
	log.Info("collected inventory", logx.Int("products", len(snap.Observations)))

	// DIFF against the last durable snapshot (absent on the first cycle
	// ever, which only establishes the baseline).
	prev, err := s.store.Latest(ctx)
	if err != nil {
		log.Error("history read failed, cycle aborted", logx.Err(err))
		return finish(fmt.Errorf("history latest: %w", err))
	}
	events := inventory.Compare(prev, &snap, res.StartedAt)
	res.Events = len(events)
	if prev == nil {
		log.Info("first poll, baseline established")
	} else if len(events) > 0 {
		log.Info("changes detected", logx.Int("events", len(events)))
	}

	// EXPIRY_SCAN on the fresh snapshot, independent of the diff outcome.
	var alerts []inventory.ExpiryAlert
	if cfg.Expiry.Enabled {
		alerts = inventory.ScanExpiry(&snap, cfg.Expiry.ThresholdDays, res.StartedAt)
		res.Alerts = len(alerts)
		if len(alerts) > 0 {
			log.Info("near-expiry products found",
				logx.Int("alerts", len(alerts)),
				logx.Int("threshold_days", cfg.Expiry.ThresholdDays))
		}
	}

	// NOTIFY before persist, so message content always reflects a diff
	// against the prior durable baseline. Failures are per-item and
	// non-fatal.
	if s.disp != nil && (len(events) > 0 || len(alerts) > 0) {
		outcomes, derr := s.disp.Dispatch(ctx, events, alerts, cfg.Expiry.ThresholdDays)
		switch {
		case errors.Is(derr, notify.ErrDisabled):
			log.Debug("dispatcher disabled, skipping notify")
		case derr != nil:
			log.Warn("dispatch did not run", logx.Err(derr))
		default:
			for _, o := range outcomes {
				if o.Err != nil {
					log.Warn("notification failed", logx.String("ref", o.Ref), logx.Err(o.Err))
				}
			}
		}
	}

	// PERSIST. On failure the prior baseline stays authoritative and the
	// next successful cycle diffs against it again.
	id, err := s.store.Append(ctx, snap)
	if err != nil {
		log.Error("snapshot append failed, baseline unchanged", logx.Err(err))
		return finish(fmt.Errorf("history append: %w", err))
	}
	res.SnapshotID = id
	snap.ID = id
	log.Info("snapshot persisted", logx.Int64("snapshot_id", id))

	// MIRROR, best-effort after persist.
	if err := s.sink.MirrorSnapshot(ctx, snap); err != nil {
		log.Warn("snapshot mirror failed", logx.Err(err))
	}
	if len(events) > 0 {
		if err := s.sink.MirrorChanges(ctx, events); err != nil {
			log.Warn("changes mirror failed", logx.Err(err))
		}
	}

	return finish(nil)
}

func (s *Service) publishCycle(topic string, res CycleResult) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(eventbus.Event{Topic: topic, Data: res})
}

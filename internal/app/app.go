// Package app wires configuration, logging, storage, collection, notification,
// mirroring and the monitor into one runnable unit.
package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"stockwatch/internal/collector"
	"stockwatch/internal/config"
	"stockwatch/internal/eventbus"
	"stockwatch/internal/history"
	"stockwatch/internal/mirror"
	"stockwatch/internal/monitor"
	"stockwatch/internal/notify"
	"stockwatch/internal/transport"
	"stockwatch/internal/transport/telegram"
	"stockwatch/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  logx.Logger
	logs *logx.Service

	store   history.Store
	adapter transport.Adapter
	notif   *notify.Service
	mon     *monitor.Service
	bus     eventbus.Bus

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	busyTimeout, err := config.ParseDurationField("history.busy_timeout", cfg.History.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := history.Open(history.Config{
		Driver:      cfg.History.Driver,
		Path:        cfg.History.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "history")))
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	collectorTimeout, err := config.ParseDurationField("collector.timeout", cfg.Collector.Timeout)
	if err != nil {
		return nil, err
	}
	coll, err := collector.NewHTTP(collector.Config{
		URL:      cfg.Collector.URL,
		LoginURL: cfg.Collector.LoginURL,
		Username: cfg.Collector.Username,
		Password: cfg.Collector.Password,
		Timeout:  collectorTimeout,
	}, log.With(logx.String("comp", "collector")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// The Telegram adapter only exists when the notifier can use it; a
	// disabled notifier keeps the whole transport out of the process.
	var adapter transport.Adapter
	if cfg.Notifier != nil && cfg.Notifier.Enabled {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		adapter, err = telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, log.With(logx.String("comp", "telegram")))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
	}

	notifCfg, err := notifyConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	notif := notify.New(notifCfg, adapter, bus, log.With(logx.String("comp", "notify")))

	sink := mirror.Sink(mirror.Nop{})
	if cfg.Mirror != nil && cfg.Mirror.Enabled {
		s, err := mirror.NewSheets(ctx, mirror.SheetsConfig{
			SpreadsheetID:   cfg.Mirror.SpreadsheetID,
			CredentialsFile: cfg.Mirror.CredentialsFile,
			SnapshotSheet:   cfg.Mirror.SnapshotSheet,
			ChangesSheet:    cfg.Mirror.ChangesSheet,
		}, log.With(logx.String("comp", "mirror")))
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("mirror: %w", err)
		}
		sink = s
	}

	monCfg, err := monitorConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	mon := monitor.New(monCfg, coll, store, notif, sink, bus, log.With(logx.String("comp", "monitor")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		adapter: adapter,
		notif:   notif,
		mon:     mon,
		bus:     bus,
	}, nil
}

// Bus exposes the in-process event stream (cycle and notify outcomes).
func (a *App) Bus() eventbus.Bus { return a.bus }

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	a.notif.Start(runCtx)
	if err := a.mon.Start(runCtx); err != nil {
		cancel()
		return err
	}

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(runCtx, sub)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	a.log.Info("app started")
	return nil
}

// RunOnce executes exactly one monitoring cycle and returns its outcome.
// The notifier is started for the duration of the cycle so digests still go
// out in one-shot mode.
func (a *App) RunOnce(ctx context.Context) (monitor.CycleResult, error) {
	a.notif.Start(ctx)
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		a.notif.Stop(stopCtx)
		cancel()
	}()
	return a.mon.RunOnce(ctx)
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	a.mon.Stop(ctx)
	a.notif.Stop(ctx)
	if a.adapter != nil {
		_ = a.adapter.Stop(ctx)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown deadline reached before background loops exited")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("history close failed", logx.Err(err))
	}
	_ = a.logs.Close()
	a.log.Info("stopped")
	return nil
}

// reloadLoop applies validated config revisions to the live services.
func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config in the channel.
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					goto APPLY
				}
			}
		APPLY:
			sections, attrs := config.SummarizeChange(lastApplied, newCfg)
			lastApplied = newCfg
			if len(sections) == 0 {
				a.log.Debug("config reload received, but no effective changes detected")
				continue
			}

			a.logs.Apply(logx.Config{
				Level:   newCfg.Logging.Level,
				Console: newCfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: newCfg.Logging.File.Enabled,
					Path:    newCfg.Logging.File.Path,
				},
			})

			if ncfg, err := notifyConfig(newCfg); err != nil {
				a.log.Warn("notifier config not applied", logx.Err(err))
			} else {
				a.notif.Apply(ncfg)
			}

			if mcfg, err := monitorConfig(newCfg); err != nil {
				a.log.Warn("monitor config not applied", logx.Err(err))
			} else {
				a.mon.Apply(mcfg)
			}

			a.log.Info("config reloaded",
				append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)...)
		}
	}
}

func notifyConfig(cfg *config.Config) (notify.Config, error) {
	n := cfg.Notifier
	if n == nil {
		return notify.Config{}, nil
	}
	window, err := config.ParseDurationField("notifier.dedup_window", n.DedupWindow)
	if err != nil {
		return notify.Config{}, err
	}
	return notify.Config{
		Enabled:     n.Enabled,
		Workers:     n.Workers,
		QueueSize:   n.QueueSize,
		RatePerSec:  n.RatePerSec,
		DedupWindow: window,
		DedupPath:   n.DedupPath,
		Target: transport.ChatTarget{
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		},
	}, nil
}

func monitorConfig(cfg *config.Config) (monitor.Config, error) {
	interval, err := config.ParseDurationOrDefault("monitor.interval", cfg.Monitor.Interval, time.Hour)
	if err != nil {
		return monitor.Config{}, err
	}
	collectTimeout, err := config.ParseDurationField("monitor.collect_timeout", cfg.Monitor.CollectTimeout)
	if err != nil {
		return monitor.Config{}, err
	}
	return monitor.Config{
		Enabled:        cfg.Monitor.Enabled,
		Interval:       interval,
		CollectTimeout: collectTimeout,
		Expiry: monitor.ExpiryConfig{
			Enabled:       cfg.Monitor.Expiry.Enabled,
			ThresholdDays: cfg.Monitor.Expiry.ThresholdDays,
		},
		HistorySize: cfg.Monitor.HistorySize,
	}, nil
}

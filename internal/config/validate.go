package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate rejects configs that cannot possibly run. It is wired as the
// Watch() validator so a bad edit never replaces a working config.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if cfg.Monitor.Enabled && strings.TrimSpace(cfg.Collector.URL) == "" {
		return errors.New("collector.url is required when monitor.enabled")
	}

	switch strings.TrimSpace(strings.ToLower(cfg.History.Driver)) {
	case "", "file", "sqlite":
	default:
		return fmt.Errorf("history.driver: unknown driver %q", cfg.History.Driver)
	}

	if cfg.Notifier != nil && cfg.Notifier.Enabled {
		if strings.TrimSpace(cfg.Telegram.Token) == "" {
			return errors.New("telegram.token is required when notifier.enabled")
		}
		if cfg.Telegram.ChatID == 0 {
			return errors.New("telegram.chat_id is required when notifier.enabled")
		}
	}

	if cfg.Mirror != nil && cfg.Mirror.Enabled && strings.TrimSpace(cfg.Mirror.SpreadsheetID) == "" {
		return errors.New("mirror.spreadsheet_id is required when mirror.enabled")
	}

	if cfg.Monitor.Expiry.ThresholdDays < 0 {
		return errors.New("monitor.expiry.threshold_days must be >= 0")
	}

	// Duration strings must at least parse; defaults fill zero values later.
	for _, d := range []struct{ path, raw string }{
		{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
		{"monitor.interval", cfg.Monitor.Interval},
		{"monitor.collect_timeout", cfg.Monitor.CollectTimeout},
		{"collector.timeout", cfg.Collector.Timeout},
		{"history.busy_timeout", cfg.History.BusyTimeout},
	} {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	if cfg.Notifier != nil {
		if _, err := ParseDurationField("notifier.dedup_window", cfg.Notifier.DedupWindow); err != nil {
			return err
		}
	}
	return nil
}

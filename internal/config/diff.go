package config

import (
	"reflect"
	"sort"
	"strings"

	"stockwatch/pkg/logx"
)

// SummarizeChange returns (1) a compact list of changed sections and (2) safe
// structured attrs for logging (never includes secrets like tokens or
// passwords).
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 20)

	// Telegram (never log token)
	if oldCfg.Telegram.ChatID != newCfg.Telegram.ChatID ||
		oldCfg.Telegram.ThreadID != newCfg.Telegram.ThreadID ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		(strings.TrimSpace(oldCfg.Telegram.Token) != "") != (strings.TrimSpace(newCfg.Telegram.Token) != "") {
		changed = append(changed, "telegram")
		attrs = append(attrs,
			logx.Int64("telegram.chat_id", newCfg.Telegram.ChatID),
			logx.Int("telegram.thread_id", newCfg.Telegram.ThreadID),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	// Logging
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logx.level", newCfg.Logging.Level),
			logx.Bool("logx.console", newCfg.Logging.Console),
			logx.Bool("logx.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	// Monitor
	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.Bool("monitor.enabled", newCfg.Monitor.Enabled),
			logx.String("monitor.interval", strings.TrimSpace(newCfg.Monitor.Interval)),
			logx.Bool("monitor.expiry_enabled", newCfg.Monitor.Expiry.Enabled),
			logx.Int("monitor.expiry_threshold_days", newCfg.Monitor.Expiry.ThresholdDays),
		)
	}

	// Collector (never log password)
	if oldCfg.Collector.URL != newCfg.Collector.URL ||
		oldCfg.Collector.LoginURL != newCfg.Collector.LoginURL ||
		oldCfg.Collector.Username != newCfg.Collector.Username ||
		strings.TrimSpace(oldCfg.Collector.Timeout) != strings.TrimSpace(newCfg.Collector.Timeout) ||
		(oldCfg.Collector.Password != "") != (newCfg.Collector.Password != "") {
		changed = append(changed, "collector")
		attrs = append(attrs,
			logx.String("collector.url", newCfg.Collector.URL),
			logx.Bool("collector.login_set", strings.TrimSpace(newCfg.Collector.LoginURL) != ""),
			logx.String("collector.timeout", strings.TrimSpace(newCfg.Collector.Timeout)),
		)
	}

	// History
	if oldCfg.History != newCfg.History {
		changed = append(changed, "history")
		attrs = append(attrs,
			logx.String("history.driver", strings.TrimSpace(newCfg.History.Driver)),
			logx.Bool("history.path_set", strings.TrimSpace(newCfg.History.Path) != ""),
		)
	}

	// Notifier. A nil section is a disabled dispatcher; the remaining
	// defaults mirror the dispatcher's own fallbacks so spelling them out
	// explicitly is not reported as a change.
	defN := &NotifierConfig{
		Workers:    2,
		QueueSize:  64,
		RatePerSec: 3,
	}
	oldN := oldCfg.Notifier
	newN := newCfg.Notifier
	if oldN == nil {
		oldN = defN
	}
	if newN == nil {
		newN = defN
	}
	if !reflect.DeepEqual(*oldN, *newN) {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.Enabled),
			logx.Int("notifier.workers", newN.Workers),
			logx.Int("notifier.queue_size", newN.QueueSize),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
			logx.String("notifier.dedup_window", strings.TrimSpace(newN.DedupWindow)),
		)
	}

	// Mirror. Nil means disabled.
	oldM := oldCfg.Mirror
	newM := newCfg.Mirror
	if oldM == nil {
		oldM = &MirrorConfig{}
	}
	if newM == nil {
		newM = &MirrorConfig{}
	}
	if *oldM != *newM {
		changed = append(changed, "mirror")
		attrs = append(attrs,
			logx.Bool("mirror.enabled", newM.Enabled),
			logx.Bool("mirror.spreadsheet_set", strings.TrimSpace(newM.SpreadsheetID) != ""),
		)
	}

	sort.Strings(changed)
	return changed, attrs
}

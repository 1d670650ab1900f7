package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Monitor   MonitorConfig   `json:"monitor"`
	Collector CollectorConfig `json:"collector"`
	History   HistoryConfig   `json:"history"`

	// Notifier controls the async notification pipeline. Nil means disabled.
	Notifier *NotifierConfig `json:"notifier,omitempty"`

	// Mirror controls the optional Google Sheets mirror. Nil means disabled.
	Mirror *MirrorConfig `json:"mirror,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChatID is the destination chat for digests; ThreadID targets a forum
	// topic inside it and may be 0.
	ChatID   int64 `json:"chat_id"`
	ThreadID int   `json:"thread_id,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// MonitorConfig controls the polling loop.
//
// All durations are Go duration strings (e.g. "30s", "10m", "1h").
//
// Defaults (when fields are omitted/zero):
//   - interval: "1h"
//   - collect_timeout: "2m"
//   - expiry.threshold_days: 30
//   - history_size: 100
type MonitorConfig struct {
	Enabled bool `json:"enabled"`

	// Interval between polling cycles.
	Interval string `json:"interval,omitempty"`

	// CollectTimeout bounds one collection attempt; a timed-out collection
	// aborts the cycle.
	CollectTimeout string `json:"collect_timeout,omitempty"`

	Expiry ExpiryConfig `json:"expiry"`

	// HistorySize bounds the in-memory ring of recent cycle outcomes.
	HistorySize int `json:"history_size,omitempty"`
}

type ExpiryConfig struct {
	Enabled       bool `json:"enabled"`
	ThresholdDays int  `json:"threshold_days,omitempty"`
}

// CollectorConfig points at the warehouse portal. If login_url is set, a form
// login runs before each fetch using username/password.
type CollectorConfig struct {
	URL      string `json:"url"`
	LoginURL string `json:"login_url,omitempty"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	// Timeout is a Go duration string for the HTTP client.
	Timeout string `json:"timeout,omitempty"`
}

// HistoryConfig controls the snapshot store.
//
// Example:
//
//	"history": { "driver": "sqlite", "path": "./stockwatch.db" }
type HistoryConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierConfig controls the async notification pipeline.
//
// All durations are Go duration strings (e.g. "500ms", "10s", "1m").
type NotifierConfig struct {
	Enabled     bool   `json:"enabled"`
	Workers     int    `json:"workers,omitempty"`
	QueueSize   int    `json:"queue_size,omitempty"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
	DedupWindow string `json:"dedup_window,omitempty"`
	// DedupPath persists the suppression set across restarts. Empty keeps it
	// in memory only.
	DedupPath string `json:"dedup_path,omitempty"`
}

type MirrorConfig struct {
	Enabled         bool   `json:"enabled"`
	SpreadsheetID   string `json:"spreadsheet_id"`
	CredentialsFile string `json:"credentials_file,omitempty"`
	SnapshotSheet   string `json:"snapshot_sheet,omitempty"`
	ChangesSheet    string `json:"changes_sheet,omitempty"`
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: "123:abc"
  chat_id: -100200300
logging:
  level: debug
  console: true
  file:
    enabled: false
    path: ""
monitor:
  enabled: true
  interval: "30m"
  collect_timeout: "90s"
  expiry:
    enabled: true
    threshold_days: 14
collector:
  url: "https://warehouse.example/inventory"
  timeout: "20s"
history:
  driver: file
  path: "./history.jsonl"
notifier:
  enabled: true
  workers: 2
  dedup_window: "2h"
`

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Monitor.Interval != "30m" || cfg.Monitor.Expiry.ThresholdDays != 14 {
		t.Fatalf("monitor section mismatch: %+v", cfg.Monitor)
	}
	if cfg.History.Driver != "file" {
		t.Fatalf("history driver mismatch: %+v", cfg.History)
	}
	if cfg.Notifier == nil || cfg.Notifier.DedupWindow != "2h" {
		t.Fatalf("notifier section mismatch: %+v", cfg.Notifier)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get must return the committed config")
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML+"\nlegacy_section:\n  x: 1\n"))
	if _, err := m.Load(); err == nil {
		t.Fatalf("unknown top-level key must be rejected")
	}
}

func TestValidate(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("sample config must validate: %v", err)
	}

	bad := *cfg
	bad.Collector.URL = ""
	if err := Validate(&bad); err == nil {
		t.Fatalf("enabled monitor without collector url must fail")
	}

	bad = *cfg
	bad.History.Driver = "postgres"
	if err := Validate(&bad); err == nil {
		t.Fatalf("unknown history driver must fail")
	}

	bad = *cfg
	bad.Monitor.Interval = "sometimes"
	if err := Validate(&bad); err == nil {
		t.Fatalf("unparseable duration must fail")
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", " 90s "); err != nil || d != 90*time.Second {
		t.Fatalf("got %v, %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty must be zero, got %v, %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatalf("negative duration must fail")
	}
	if d, err := ParseDurationOrDefault("x", "", time.Hour); err != nil || d != time.Hour {
		t.Fatalf("default must apply, got %v, %v", d, err)
	}
}

func TestSummarizeChange(t *testing.T) {
	m := NewManager(writeConfig(t, "config.yaml", sampleYAML))
	oldCfg, err := m.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	newCfg := *oldCfg
	newCfg.Monitor.Interval = "15m"
	newCfg.Logging.Level = "info"

	changed, _ := SummarizeChange(oldCfg, &newCfg)
	want := []string{"logging", "monitor"}
	if len(changed) != len(want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	for i := range want {
		if changed[i] != want[i] {
			t.Fatalf("changed = %v, want %v", changed, want)
		}
	}

	if changed, _ := SummarizeChange(oldCfg, oldCfg); len(changed) != 0 {
		t.Fatalf("identical configs must report no changes, got %v", changed)
	}
}

func TestSummarizeChangeNilNotifierIsDisabled(t *testing.T) {
	// An omitted notifier section behaves like a disabled dispatcher with its
	// own fallbacks; a config that merely spells those out is not a change.
	without := &Config{}
	explicit := &Config{Notifier: &NotifierConfig{
		Enabled:    false,
		Workers:    2,
		QueueSize:  64,
		RatePerSec: 3,
	}}
	if changed, _ := SummarizeChange(without, explicit); len(changed) != 0 {
		t.Fatalf("explicit defaults must match the nil section, got %v", changed)
	}

	enabled := &Config{Notifier: &NotifierConfig{Enabled: true, Workers: 2, QueueSize: 64, RatePerSec: 3}}
	changed, _ := SummarizeChange(without, enabled)
	if len(changed) != 1 || changed[0] != "notifier" {
		t.Fatalf("enabling the notifier must be reported, got %v", changed)
	}
}

package notify

import (
	"fmt"
	"time"

	"stockwatch/internal/inventory"
	"stockwatch/internal/transport"
)

// Config controls the dispatch pipeline.
type Config struct {
	Enabled    bool
	Workers    int
	QueueSize  int
	RatePerSec int

	// DedupWindow suppresses re-delivery of an identical item across cycles.
	// Zero disables suppression. DedupPath, when set, persists the
	// suppression set so restarts do not re-notify.
	DedupWindow time.Duration
	DedupPath   string

	Target transport.ChatTarget
}

// Outcome is the per-item delivery result the monitor logs. Exactly one of
// Delivered/Deduped is true on success; Err is set when delivery failed.
type Outcome struct {
	Ref       string // dedup key of the item
	Delivered bool
	Deduped   bool
	Err       error
}

// NotificationError wraps a single failed delivery. It is always non-fatal.
type NotificationError struct {
	Ref string
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.Ref, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// changeKey identifies a change event for cross-cycle suppression. The delta
// is part of the key so a genuinely new shipment of the same product is never
// swallowed.
func changeKey(ev inventory.ChangeEvent) string {
	return fmt.Sprintf("change|%s|%s|%d", ev.Kind, ev.ProductKey, ev.Delta)
}

// alertKey identifies an expiry alert: the same product/date pair repeats
// every cycle until the stock moves, which is exactly what the window is for.
func alertKey(a inventory.ExpiryAlert) string {
	return fmt.Sprintf("expiry|%s|%s", a.ProductKey, a.ExpiryDate.Format("2006-01-02"))
}

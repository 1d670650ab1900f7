// Package collector acquires raw inventory observations from the remote
// source. Its mechanism is opaque to the monitoring core: the core only sees
// Collect() succeed with a full snapshot or fail with a *CollectionError.
package collector

import (
	"context"
	"fmt"

	"stockwatch/internal/inventory"
)

// Collector produces one unpersisted snapshot per call.
//
// A failed collection must never return partial data: either every row of the
// source was visited (individually unreadable fields degrade to absent), or
// the call fails as a whole.
type Collector interface {
	Collect(ctx context.Context) (inventory.Snapshot, error)
}

// CollectionError wraps any acquisition failure (network, authentication,
// page-level parse). The monitor aborts the cycle on it and keeps the prior
// baseline.
type CollectionError struct {
	Stage string // "login", "fetch", "decode"
	Err   error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collect: %s: %v", e.Stage, e.Err)
}

func (e *CollectionError) Unwrap() error { return e.Err }

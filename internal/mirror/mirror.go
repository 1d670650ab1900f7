// Package mirror copies persisted history to a remote tabular sink for
// external visibility. Mirroring is strictly best-effort: every error is
// reported to the caller for logging and none may ever block or roll back a
// local persist.
package mirror

import (
	"context"

	"stockwatch/internal/inventory"
)

// Sink receives a copy of each persisted snapshot and the change events of
// the cycle that produced it.
type Sink interface {
	MirrorSnapshot(ctx context.Context, snap inventory.Snapshot) error
	MirrorChanges(ctx context.Context, events []inventory.ChangeEvent) error
}

// Nop is the sink used when mirroring is not configured.
type Nop struct{}

func (Nop) MirrorSnapshot(ctx context.Context, snap inventory.Snapshot) error { return nil }

func (Nop) MirrorChanges(ctx context.Context, events []inventory.ChangeEvent) error { return nil }

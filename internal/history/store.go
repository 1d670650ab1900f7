// Package history provides the durable, append-only snapshot log.
//
// The log is the single source of truth for "what was last observed": every
// diff runs against Latest(), and a snapshot that fails to append leaves the
// previous baseline authoritative.
//
// Two drivers are supported:
//   - "file": dependency-free JSONL append log
//   - "sqlite": SQLite database file
package history

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockwatch/internal/inventory"
	"stockwatch/pkg/logx"
)

var (
	// ErrNotFound is returned by Get for ids outside the stored range.
	ErrNotFound = errors.New("snapshot not found")
	// ErrIDAssigned guards against re-appending an already-persisted snapshot.
	ErrIDAssigned = errors.New("snapshot already has an id")
)

// Config configures the history store.
//
// Driver values: "file" (default) or "sqlite".
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the append-only snapshot log.
//
// Append assigns the next id (exactly previous+1, first id is 1) and persists
// atomically: on error the latest pointer is unchanged and no partial write is
// observable. Entries are immutable once appended, so concurrent reads are
// always safe; appends are serialized by the single-cycle discipline of the
// monitor and additionally by each driver's own locking.
type Store interface {
	Append(ctx context.Context, snap inventory.Snapshot) (int64, error)
	Latest(ctx context.Context) (*inventory.Snapshot, error)
	Get(ctx context.Context, id int64) (*inventory.Snapshot, error)
	Range(ctx context.Context, fromID, toID int64) ([]inventory.Snapshot, error)
	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown history driver: %q", cfg.Driver)
	}
}

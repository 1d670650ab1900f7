package history

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"stockwatch/internal/inventory"
	"stockwatch/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Append(ctx context.Context, snap inventory.Snapshot) (int64, error) {
	if snap.ID != 0 {
		return 0, ErrIDAssigned
	}
	obs, err := json.Marshal(snap.Observations)
	if err != nil {
		return 0, fmt.Errorf("encode observations: %w", err)
	}

	// The id is derived and inserted in one transaction so a failed append
	// can never advance the counter.
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var last int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM snapshots`).Scan(&last); err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}
	id := last + 1
	_, err = tx.ExecContext(ctx,
		`INSERT INTO snapshots(id, captured_at, observations) VALUES(?,?,?)`,
		id, snap.CapturedAt.Format(time.RFC3339Nano), string(obs),
	)
	if err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}
	return id, nil
}

func (s *sqliteStore) Latest(ctx context.Context) (*inventory.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, captured_at, observations FROM snapshots ORDER BY id DESC LIMIT 1`)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return snap, err
}

func (s *sqliteStore) Get(ctx context.Context, id int64) (*inventory.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, captured_at, observations FROM snapshots WHERE id = ?`, id)
	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return snap, err
}

func (s *sqliteStore) Range(ctx context.Context, fromID, toID int64) ([]inventory.Snapshot, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, captured_at, observations FROM snapshots WHERE id >= ? AND id <= ? ORDER BY id ASC`,
		fromID, toID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []inventory.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *snap)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(r rowScanner) (*inventory.Snapshot, error) {
	var (
		id       int64
		captured string
		obsJSON  string
	)
	if err := r.Scan(&id, &captured, &obsJSON); err != nil {
		return nil, err
	}
	at, err := time.Parse(time.RFC3339Nano, captured)
	if err != nil {
		return nil, fmt.Errorf("snapshot %d: bad captured_at: %w", id, err)
	}
	var obs map[string]inventory.Observation
	if err := json.Unmarshal([]byte(obsJSON), &obs); err != nil {
		return nil, fmt.Errorf("snapshot %d: decode observations: %w", id, err)
	}
	return &inventory.Snapshot{ID: id, CapturedAt: at, Observations: obs}, nil
}

package history

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"stockwatch/internal/inventory"
	"stockwatch/pkg/logx"
)

// fileStore is a dependency-free append-only backend: one JSON-encoded
// snapshot per line. Replay on open recovers the latest id; a trailing
// partial line (crash mid-write) is truncated away so the log always ends on
// a complete record.
type fileStore struct {
	log logx.Logger

	mu   sync.Mutex
	f    *os.File
	path string

	lastID int64
	latest *inventory.Snapshot
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("history.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}

	st := &fileStore{log: log, f: f, path: path}
	if err := st.replay(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return st, nil
}

// replay scans the log, validates id continuity, and truncates any trailing
// garbage left by an interrupted append.
func (s *fileStore) replay() error {
	if _, err := s.f.Seek(0, 0); err != nil {
		return err
	}
	var (
		goodEnd int64
		lastID  int64
		latest  *inventory.Snapshot
	)
	sc := bufio.NewScanner(s.f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		var snap inventory.Snapshot
		if err := json.Unmarshal(line, &snap); err != nil {
			s.log.Warn("history: truncating corrupt tail", logx.Int64("after_id", lastID))
			break
		}
		if snap.ID != lastID+1 {
			return fmt.Errorf("history log corrupt: id %d follows %d", snap.ID, lastID)
		}
		lastID = snap.ID
		latest = &snap
		goodEnd += int64(len(line)) + 1 // newline
	}
	if err := sc.Err(); err != nil && !errors.Is(err, bufio.ErrTooLong) {
		return err
	}

	if fi, err := s.f.Stat(); err == nil && fi.Size() > goodEnd {
		if err := s.f.Truncate(goodEnd); err != nil {
			return err
		}
	}
	if _, err := s.f.Seek(0, 2); err != nil {
		return err
	}
	s.lastID = lastID
	s.latest = latest
	return nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	return err
}

func (s *fileStore) Append(ctx context.Context, snap inventory.Snapshot) (int64, error) {
	_ = ctx
	if snap.ID != 0 {
		return 0, ErrIDAssigned
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return 0, errors.New("history log closed")
	}

	snap.ID = s.lastID + 1
	line, err := json.Marshal(snap)
	if err != nil {
		return 0, fmt.Errorf("encode snapshot: %w", err)
	}
	line = append(line, '\n')

	// Remember the pre-write size so a short write can be rolled back and
	// never becomes observable.
	fi, err := s.f.Stat()
	if err != nil {
		return 0, fmt.Errorf("append: %w", err)
	}
	if _, err := s.f.Write(line); err != nil {
		_ = s.f.Truncate(fi.Size())
		return 0, fmt.Errorf("append: %w", err)
	}
	// An unsynced line must not stay in the log either: lastID does not
	// advance on this path, so leaving it would make the next append reuse
	// the same id and corrupt the sequence.
	if err := s.f.Sync(); err != nil {
		_ = s.f.Truncate(fi.Size())
		return 0, fmt.Errorf("append: %w", err)
	}

	s.lastID = snap.ID
	s.latest = &snap
	return snap.ID, nil
}

func (s *fileStore) Latest(ctx context.Context) (*inventory.Snapshot, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, nil
	}
	cp := *s.latest
	return &cp, nil
}

func (s *fileStore) Get(ctx context.Context, id int64) (*inventory.Snapshot, error) {
	snaps, err := s.Range(ctx, id, id)
	if err != nil {
		return nil, err
	}
	if len(snaps) == 0 {
		return nil, ErrNotFound
	}
	return &snaps[0], nil
}

func (s *fileStore) Range(ctx context.Context, fromID, toID int64) ([]inventory.Snapshot, error) {
	_ = ctx
	s.mu.Lock()
	path := s.path
	s.mu.Unlock()

	// Entries are immutable, so reads re-scan the log without holding the
	// append lock.
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []inventory.Snapshot
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		var snap inventory.Snapshot
		if err := json.Unmarshal(sc.Bytes(), &snap); err != nil {
			break
		}
		if snap.ID > toID {
			break
		}
		if snap.ID >= fromID {
			out = append(out, snap)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, bufio.ErrTooLong) {
		return nil, err
	}
	return out, nil
}

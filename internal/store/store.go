// Package store persists enriched records as a single JSON snapshot keyed by
// (name, year).
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/kervino2/Meteora/internal/model"
)

// ErrStoreLocked is returned when another writer holds the snapshot lock past the deadline
var ErrStoreLocked = errors.New("store is locked by another writer")

const defaultLockTimeout = 30 * time.Second

// Collection is the in-memory view of a snapshot
type Collection map[model.Key]model.MeteoriteRecord

// Records returns the records sorted by name then year
func (c Collection) Records() []model.MeteoriteRecord {
	out := make([]model.MeteoriteRecord, 0, len(c))
	for _, r := range c {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Year < out[j].Year
	})
	return out
}

// Store reads and writes the snapshot file. Save is a load-merge-write cycle
// serialized in-process by a mutex and across processes by a lock file.
type Store struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration
	mu          sync.Mutex
	logger      *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithLockTimeout bounds how long Save waits for the lock file
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockTimeout = d
		}
	}
}

// New creates a store for the snapshot at path
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: defaultLockTimeout,
		logger:      slog.Default().With("component", "store"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the snapshot location
func (s *Store) Path() string {
	return s.path
}

// Load reads the snapshot. A missing, empty or unparsable file yields an
// empty collection; only unexpected read failures are returned.
func (s *Store) Load(ctx context.Context) (Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.load()
}

// Keys returns the set of persisted keys
func (s *Store) Keys(ctx context.Context) (map[model.Key]struct{}, error) {
	c, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	keys := make(map[model.Key]struct{}, len(c))
	for k := range c {
		keys[k] = struct{}{}
	}
	return keys, nil
}

// Save overlays records onto the current snapshot (later records replace
// earlier ones with the same key) and writes the merged snapshot atomically.
// It returns the number of records in the written snapshot.
func (s *Store) Save(ctx context.Context, records []model.MeteoriteRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return 0, fmt.Errorf("create store directory: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("%w: %s", ErrStoreLocked, s.path)
		}
		return 0, fmt.Errorf("acquire store lock: %w", err)
	}
	if !locked {
		return 0, fmt.Errorf("%w: %s", ErrStoreLocked, s.path)
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.logger.Warn("release store lock", "error", err)
		}
	}()

	current, err := s.load()
	if err != nil {
		return 0, err
	}
	for _, r := range records {
		current[r.Key()] = r
	}

	if err := s.write(current); err != nil {
		return 0, err
	}

	s.logger.Debug("snapshot written", "path", s.path, "added", len(records), "total", len(current))
	return len(current), nil
}

func (s *Store) load() (Collection, error) {
	c := make(Collection)

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return c, nil
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if len(data) == 0 {
		return c, nil
	}

	var records []model.MeteoriteRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn("snapshot unreadable, starting empty", "path", s.path, "error", err)
		return c, nil
	}
	for _, r := range records {
		c[r.Key()] = r
	}
	return c, nil
}

// write replaces the snapshot via a temp file and rename
func (s *Store) write(c Collection) error {
	data, err := json.MarshalIndent(c.Records(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/GridwatchAI/gridwatch-mvp/engine/domain"
	"github.com/GridwatchAI/gridwatch-mvp/engine/index"
)

// ArtifactSyncer fetches index artifacts from remote storage into a local
// directory.
type ArtifactSyncer interface {
	Sync(ctx context.Context, dir string) error
}

// Snapshot is one immutable generation of the serving stack: a loaded index
// and the pipeline built over it. Readers take the whole snapshot so a
// reload never splits a request across generations.
type Snapshot struct {
	Index    *index.Flat
	Pipeline *Pipeline
	Count    int
}

// ReloadManager owns the current serving snapshot and swaps it atomically
// when new index artifacts arrive. Reloads are serialized; a failed reload
// leaves the previous snapshot serving.
type ReloadManager struct {
	dir    string
	dim    int
	syncer ArtifactSyncer // nil when serving from local disk only
	build  func(*index.Flat) *Pipeline
	logger *slog.Logger

	mu      sync.Mutex // serializes Init and Reload
	current atomic.Pointer[Snapshot]
}

// NewReloadManager creates a ReloadManager. build constructs the pipeline
// over a freshly loaded index and is called on every successful reload.
func NewReloadManager(dir string, dim int, syncer ArtifactSyncer, build func(*index.Flat) *Pipeline, logger *slog.Logger) *ReloadManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReloadManager{dir: dir, dim: dim, syncer: syncer, build: build, logger: logger}
}

// Current returns the serving snapshot, or nil before Init.
func (m *ReloadManager) Current() *Snapshot {
	return m.current.Load()
}

// Init loads the initial snapshot. Missing artifacts are not an error; the
// service starts with an empty index and waits for the first reload.
func (m *ReloadManager) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.syncer != nil {
		if err := m.syncer.Sync(ctx, m.dir); err != nil {
			return fmt.Errorf("retrieval: initial artifact sync: %w", err)
		}
	}

	snap, err := m.load(ctx, true)
	if err != nil {
		return err
	}
	m.current.Store(snap)
	m.logger.Info("index snapshot loaded", "dir", m.dir, "chunks", snap.Count)
	return nil
}

// Reload re-syncs artifacts, loads them into a fresh index and swaps the
// snapshot. Returns the chunk counts before and after. On error the
// previous snapshot keeps serving and the returned counts are both the
// previous count.
func (m *ReloadManager) Reload(ctx context.Context) (previous, current int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev := m.current.Load(); prev != nil {
		previous = prev.Count
	}

	if m.syncer != nil {
		if err := m.syncer.Sync(ctx, m.dir); err != nil {
			return previous, previous, fmt.Errorf("retrieval: artifact sync: %w", err)
		}
	}

	snap, err := m.load(ctx, false)
	if err != nil {
		return previous, previous, err
	}
	m.current.Store(snap)
	m.logger.Info("index snapshot swapped", "previous", previous, "current", snap.Count)
	return previous, snap.Count, nil
}

// load builds a snapshot from the artifacts on disk. The old snapshot's
// index is never touched; a fresh Flat absorbs the artifacts or the whole
// load fails. Missing artifacts are tolerated only on the initial load:
// a running service must never trade a populated index for an empty one
// because the files vanished.
func (m *ReloadManager) load(ctx context.Context, initial bool) (*Snapshot, error) {
	flat := index.NewFlat(m.dim)
	if err := flat.Load(m.dir); err != nil {
		if !initial || !errors.Is(err, domain.ErrIndexNotFound) {
			return nil, fmt.Errorf("retrieval: load index: %w", err)
		}
		m.logger.Warn("no index artifacts found, serving empty index", "dir", m.dir)
	}
	count, err := flat.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Index: flat, Pipeline: m.build(flat), Count: count}, nil
}

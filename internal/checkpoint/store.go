// Package checkpoint implements the Checkpoint Store (spec.md §4.2):
// file-per-source JSON persisted via write-temp-then-rename, with an
// in-memory LRU front for the dedup window's hot-path seen() lookups.
//
// The atomic-write discipline is grounded on the teacher's file-based
// artifact reads in internal/attractor/runstate/snapshot.go (read
// final.json / live.json defensively, tolerate absence) generalized to
// the write side: every Put goes through a temp file and rename so a
// crash between write and rename leaves the previous value intact
// (spec.md §8 round-trip property).
package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/orgloop/engine/internal/metrics"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/orgerr"
)

const dedupCacheSize = 4096

// Store is a file-per-source checkpoint store. Writes are serialized per
// source ID; reads are lock-free snapshots of an in-memory cache kept
// consistent with disk.
type Store struct {
	dir string
	log *logrus.Entry

	mu      sync.RWMutex
	locks   map[string]*sync.Mutex
	cache   map[string]model.Checkpoint
	seenLRU *lru.Cache[string, time.Time] // fingerprint -> expiry, hot-path front for Seen()
}

func Open(dir string, log *logrus.Entry) (*Store, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "checkpoint: create dir")
	}
	c, err := lru.New[string, time.Time](dedupCacheSize)
	if err != nil {
		return nil, err
	}
	s := &Store{
		dir:     dir,
		log:     log.WithField("component", "checkpoint"),
		locks:   map[string]*sync.Mutex{},
		cache:   map[string]model.Checkpoint{},
		seenLRU: c,
	}
	if err := s.preload(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) preload() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.Wrap(err, "checkpoint: read dir")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		b, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}
		var cp model.Checkpoint
		if err := json.Unmarshal(b, &cp); err != nil {
			s.log.WithError(err).WithField("file", e.Name()).Warn("checkpoint: skipping unreadable file")
			continue
		}
		s.cache[cp.SourceID] = cp
	}
	return nil
}

func (s *Store) lockFor(sourceID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[sourceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[sourceID] = l
	}
	return l
}

func (s *Store) path(sourceID string) string {
	return filepath.Join(s.dir, sourceID+".json")
}

// Get returns a snapshot of the persisted checkpoint for sourceID, or the
// zero value if none exists yet.
func (s *Store) Get(sourceID string) model.Checkpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cp, ok := s.cache[sourceID]
	if !ok {
		return model.Checkpoint{SourceID: sourceID}
	}
	return cp.Clone()
}

// Put persists cp via write-temp-then-rename, enforcing the monotonic
// UpdatedAt invariant (spec.md §3) and serializing writes per source.
func (s *Store) Put(cp model.Checkpoint) error {
	lock := s.lockFor(cp.SourceID)
	lock.Lock()
	defer lock.Unlock()

	existing := s.Get(cp.SourceID)
	if !existing.UpdatedAt.IsZero() && cp.UpdatedAt.Before(existing.UpdatedAt) {
		return orgerr.New(orgerr.CheckpointWriteError, "checkpoint", cp.SourceID,
			errors.New("updated_at must be monotonically non-decreasing"))
	}
	return s.writeAndCache(cp)
}

// writeAndCache serializes cp via write-temp-then-rename and updates the
// in-memory cache. Callers must already hold the per-source lock.
func (s *Store) writeAndCache(cp model.Checkpoint) error {
	b, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return orgerr.Wrap(orgerr.CheckpointWriteError, "checkpoint", cp.SourceID, err)
	}

	final := s.path(cp.SourceID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		metrics.CheckpointWritesTotal.WithLabelValues(cp.SourceID, "error").Inc()
		return orgerr.Wrap(orgerr.CheckpointWriteError, "checkpoint", cp.SourceID, err)
	}
	if err := os.Rename(tmp, final); err != nil {
		metrics.CheckpointWritesTotal.WithLabelValues(cp.SourceID, "error").Inc()
		return orgerr.Wrap(orgerr.CheckpointWriteError, "checkpoint", cp.SourceID, err)
	}
	metrics.CheckpointWritesTotal.WithLabelValues(cp.SourceID, "ok").Inc()

	s.mu.Lock()
	s.cache[cp.SourceID] = cp.Clone()
	s.mu.Unlock()
	return nil
}

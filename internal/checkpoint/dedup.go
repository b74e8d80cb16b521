package checkpoint

import (
	"time"

	"github.com/orgloop/engine/internal/model"
)

// dedupCacheKey namespaces the shared LRU by source, since fingerprints are
// only meaningful within one source's dedup window.
func dedupCacheKey(sourceID, fp string) string {
	return sourceID + "\x00" + fp
}

// ObserveFingerprint records fp as seen for sourceID until ttl elapses,
// both in the hot-path LRU and in the persisted checkpoint so the window
// survives restarts (spec.md §4.2, §4.6 dedup transform).
func (s *Store) ObserveFingerprint(sourceID, fp string, ttl time.Duration) error {
	expiresAt := time.Now().Add(ttl)
	s.seenLRU.Add(dedupCacheKey(sourceID, fp), expiresAt)

	lock := s.lockFor(sourceID)
	lock.Lock()
	defer lock.Unlock()

	cp := s.Get(sourceID)
	cp.DedupEntries = append(cp.DedupEntries, model.DedupEntry{Fingerprint: fp, ExpiresAt: expiresAt})
	if cp.UpdatedAt.IsZero() {
		cp.UpdatedAt = time.Now().UTC()
	}
	return s.writeAndCache(cp)
}

// Seen reports whether fp is currently within sourceID's dedup window.
// It checks the LRU first, falling back to the persisted checkpoint so a
// cold cache (e.g. right after restart) still suppresses re-emission
// (spec.md §8 invariant 3).
func (s *Store) Seen(sourceID, fp string) bool {
	if expiresAt, ok := s.seenLRU.Get(dedupCacheKey(sourceID, fp)); ok {
		return time.Now().Before(expiresAt)
	}

	cp := s.Get(sourceID)
	for _, e := range cp.DedupEntries {
		if e.Fingerprint == fp {
			if time.Now().Before(e.ExpiresAt) {
				s.seenLRU.Add(dedupCacheKey(sourceID, fp), e.ExpiresAt)
				return true
			}
		}
	}
	return false
}

// SweepExpired removes dedup entries whose TTL has elapsed from every
// source's persisted checkpoint (spec.md §4.2 periodic cleanup).
func (s *Store) SweepExpired() error {
	s.mu.RLock()
	sourceIDs := make([]string, 0, len(s.cache))
	for id := range s.cache {
		sourceIDs = append(sourceIDs, id)
	}
	s.mu.RUnlock()

	now := time.Now()
	for _, id := range sourceIDs {
		if err := s.sweepOne(id, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) sweepOne(sourceID string, now time.Time) error {
	lock := s.lockFor(sourceID)
	lock.Lock()
	defer lock.Unlock()

	cp := s.Get(sourceID)
	kept := cp.DedupEntries[:0]
	for _, e := range cp.DedupEntries {
		if now.Before(e.ExpiresAt) {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(cp.DedupEntries) {
		return nil
	}
	cp.DedupEntries = kept
	return s.writeAndCache(cp)
}

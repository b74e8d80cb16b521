package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/orgloop/engine/internal/model"
)

func TestStore_PutGetRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	cp := model.Checkpoint{SourceID: "gh", Cursor: "abc123", UpdatedAt: time.Now().UTC()}
	require.NoError(t, s.Put(cp))

	got := s.Get("gh")
	require.Equal(t, cp.Cursor, got.Cursor)
}

func TestStore_RejectsNonMonotonicUpdate(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.Put(model.Checkpoint{SourceID: "gh", Cursor: "b", UpdatedAt: now}))
	err = s.Put(model.Checkpoint{SourceID: "gh", Cursor: "a", UpdatedAt: now.Add(-time.Minute)})
	require.Error(t, err)
}

func TestStore_PartialWriteCrashPreservesPreviousValue(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)

	require.NoError(t, s.Put(model.Checkpoint{SourceID: "gh", Cursor: "first", UpdatedAt: time.Now().UTC()}))

	// Simulate a crash between temp-write and rename: leave a stray .tmp
	// file without completing the rename.
	tmpPath := filepath.Join(dir, "gh.json.tmp")
	require.NoError(t, os.WriteFile(tmpPath, []byte(`{"source_id":"gh","cursor":"half-written"`), 0o644))

	s2, err := Open(dir, nil)
	require.NoError(t, err)
	got := s2.Get("gh")
	require.Equal(t, "first", got.Cursor)
}

func TestStore_DedupSeenWithinWindow(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	require.False(t, s.Seen("gh", "fp1"))
	require.NoError(t, s.ObserveFingerprint("gh", "fp1", time.Minute))
	require.True(t, s.Seen("gh", "fp1"))
}

func TestStore_DedupExpires(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, s.ObserveFingerprint("gh", "fp1", time.Millisecond))
	time.Sleep(5 * time.Millisecond)
	require.False(t, s.Seen("gh", "fp1"))
}

func TestStore_SweepExpiredRemovesStaleEntries(t *testing.T) {
	s, err := Open(t.TempDir(), nil)
	require.NoError(t, err)

	require.NoError(t, s.ObserveFingerprint("gh", "old", time.Millisecond))
	require.NoError(t, s.ObserveFingerprint("gh", "fresh", time.Hour))
	time.Sleep(5 * time.Millisecond)

	require.NoError(t, s.SweepExpired())
	cp := s.Get("gh")
	require.Len(t, cp.DedupEntries, 1)
	require.Equal(t, "fresh", cp.DedupEntries[0].Fingerprint)
}

func TestStore_DedupSurvivesRestartWithColdCache(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.ObserveFingerprint("gh", "fp1", time.Hour))

	s2, err := Open(dir, nil)
	require.NoError(t, err)
	require.True(t, s2.Seen("gh", "fp1"))
}

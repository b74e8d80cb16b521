// Package wal implements the durable, append-only write-ahead-logged event
// bus described in spec.md §4.1: append, tail (replay + live subscribe),
// and truncate, backed by length-prefixed JSON records with a CRC32C
// trailer over rotating segment files.
//
// The framing is grounded on the teacher corpus's line-delimited JSON
// message framing (dwarri-gazette/message/json_framing.go) generalized to
// a length-prefixed binary frame with a checksum, and the append/recovery
// discipline follows the shape of dwarri-gazette's journal broker
// (broker/append_fsm.go): one writer lock serializes appends, and
// corruption during recovery is classified rather than silently ignored.
package wal

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/orgloop/engine/internal/metrics"
	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/orgerr"
)

// FsyncPolicy controls when Append durably syncs to disk.
type FsyncPolicy struct {
	// Batched, when true, syncs on a fixed interval rather than after
	// every record.
	Batched  bool
	Interval time.Duration
}

// PerRecordSync fsyncs after every append (the safe default).
func PerRecordSync() FsyncPolicy { return FsyncPolicy{} }

// BatchedSync fsyncs every interval instead of per record.
func BatchedSync(interval time.Duration) FsyncPolicy {
	return FsyncPolicy{Batched: true, Interval: interval}
}

// Options configures a Bus.
type Options struct {
	Dir             string
	Fsync           FsyncPolicy
	MaxSegmentBytes int64
	Logger          *logrus.Entry
}

// Appended is delivered to tail subscribers.
type Appended struct {
	Offset uint64
	Event  model.Event
}

// tailSub is a wake-only notification: the tail goroutine re-reads
// sequentially from disk on each wake rather than receiving events over a
// channel, so a slow or backpressured tailer can never lose an event (it
// simply falls behind and catches up), unlike the Observer Bus.
type tailSub struct {
	wake chan struct{}
}

// Bus is a durable, append-only event log over one or more segment files.
type Bus struct {
	dir             string
	maxSegmentBytes int64
	fsync           FsyncPolicy
	log             *logrus.Entry

	mu         sync.Mutex // serializes appends and subscriber registration
	cur        *segment
	sealed     []sealedSegment // closed segments, oldest first
	nextOffset uint64
	subs       map[*tailSub]struct{}
	closed     bool

	syncTicker *time.Ticker
	syncDone   chan struct{}
}

type sealedSegment struct {
	path        string
	startOffset uint64
	// endOffset is exclusive: the segment holds [startOffset, endOffset).
	endOffset uint64
}

// Open opens or creates the WAL in opts.Dir, recovering the append
// position from the tail segment per spec.md §4.1.
func Open(opts Options) (*Bus, error) {
	if opts.Dir == "" {
		return nil, errors.New("wal: Dir is required")
	}
	if opts.MaxSegmentBytes <= 0 {
		opts.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	if opts.Logger == nil {
		opts.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	log := opts.Logger.WithField("component", "wal")

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "wal: create dir")
	}

	offsets, err := listSegments(opts.Dir)
	if err != nil {
		return nil, errors.Wrap(err, "wal: list segments")
	}

	b := &Bus{
		dir:             opts.Dir,
		maxSegmentBytes: opts.MaxSegmentBytes,
		fsync:           opts.Fsync,
		log:             log,
		subs:            map[*tailSub]struct{}{},
	}

	if len(offsets) == 0 {
		seg, err := openSegmentForAppend(opts.Dir, 0)
		if err != nil {
			return nil, err
		}
		b.cur = seg
		b.nextOffset = 0
	} else {
		for _, start := range offsets[:len(offsets)-1] {
			// Sealed segments are trusted for their record count, which is
			// implied by the next segment's start offset; full validation
			// happens lazily when a tailer actually reads them.
			b.sealed = append(b.sealed, sealedSegment{path: segmentPath(opts.Dir, start), startOffset: start})
		}
		for i := range b.sealed[:max0(len(b.sealed)-1)] {
			b.sealed[i].endOffset = b.sealed[i+1].startOffset
		}
		tailStart := offsets[len(offsets)-1]
		if len(b.sealed) > 0 {
			b.sealed[len(b.sealed)-1].endOffset = tailStart
		}

		nextOffset, err := recoverTail(opts.Dir, tailStart, log)
		if err != nil {
			return nil, err
		}
		seg, err := openSegmentForAppend(opts.Dir, tailStart)
		if err != nil {
			return nil, err
		}
		if _, err := seg.file.Seek(0, os.SEEK_END); err != nil {
			return nil, errors.Wrap(err, "wal: seek tail segment")
		}
		b.cur = seg
		b.nextOffset = nextOffset
	}

	if opts.Fsync.Batched {
		b.syncTicker = time.NewTicker(opts.Fsync.Interval)
		b.syncDone = make(chan struct{})
		go b.syncLoop()
	}

	log.WithField("next_offset", b.nextOffset).Info("wal opened")
	return b, nil
}

func max0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

func (b *Bus) syncLoop() {
	for {
		select {
		case <-b.syncTicker.C:
			b.mu.Lock()
			if b.cur != nil {
				_ = b.cur.file.Sync()
			}
			b.mu.Unlock()
		case <-b.syncDone:
			return
		}
	}
}

// Append durably writes event and returns its monotonically increasing
// offset (spec.md §4.1). A single appender observes FIFO offsets;
// concurrent appenders are serialized by the writer lock.
func (b *Bus) Append(ctx context.Context, event model.Event) (uint64, error) {
	start := time.Now()
	defer func() { metrics.BusAppendSeconds.Observe(time.Since(start).Seconds()) }()

	body, err := json.Marshal(event)
	if err != nil {
		return 0, orgerr.Wrap(orgerr.ConfigInvalid, "wal", event.ID, err)
	}
	rec := encodeRecord(body)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, errors.New("wal: closed")
	}

	if b.cur.size+int64(len(rec)) > b.maxSegmentBytes && b.cur.size > 0 {
		if err := b.rotateLocked(); err != nil {
			return 0, err
		}
	}

	n, err := b.cur.file.Write(rec)
	if err != nil {
		return 0, orgerr.Wrap(orgerr.BusCorruption, "wal", event.ID, err)
	}
	b.cur.size += int64(n)

	if !b.fsync.Batched {
		if err := b.cur.file.Sync(); err != nil {
			return 0, orgerr.Wrap(orgerr.BusCorruption, "wal", event.ID, err)
		}
	}

	offset := b.nextOffset
	b.nextOffset++
	metrics.BusAppendedTotal.WithLabelValues(event.Source).Inc()

	for sub := range b.subs {
		select {
		case sub.wake <- struct{}{}:
		default:
			// A wake is already pending; the tailer will catch up to the
			// new nextOffset when it processes it.
		}
	}

	return offset, nil
}

func (b *Bus) rotateLocked() error {
	if err := b.cur.file.Sync(); err != nil {
		return errors.Wrap(err, "wal: sync before rotate")
	}
	if err := b.cur.file.Close(); err != nil {
		return errors.Wrap(err, "wal: close before rotate")
	}
	b.sealed = append(b.sealed, sealedSegment{
		path:        b.cur.path,
		startOffset: b.cur.startOffset,
		endOffset:   b.nextOffset,
	})
	seg, err := openSegmentForAppend(b.dir, b.nextOffset)
	if err != nil {
		return err
	}
	b.cur = seg
	return nil
}

// Truncate removes whole segments whose highest offset is < beforeOffset.
// It never rewrites within a segment (spec.md §4.1).
func (b *Bus) Truncate(beforeOffset uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.sealed[:0]
	for _, s := range b.sealed {
		highest := s.endOffset
		if highest == 0 {
			highest = s.startOffset
		} else {
			highest--
		}
		if highest < beforeOffset {
			if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
				return errors.Wrap(err, "wal: remove segment")
			}
			b.log.WithField("segment", s.path).Info("wal segment truncated")
			continue
		}
		kept = append(kept, s)
	}
	b.sealed = kept
	return nil
}

// SealedSegmentStats describes one closed segment for compaction decisions.
type SealedSegmentStats struct {
	EndOffset uint64 // exclusive upper bound; safe Truncate argument
	Bytes     int64
	ModTime   time.Time
}

// SealedStats returns per-segment stats for every closed segment, oldest
// first, for the compaction ticker to decide what is safe to truncate
// (spec.md supplemented compaction: age and total-size thresholds).
func (b *Bus) SealedStats() ([]SealedSegmentStats, error) {
	b.mu.Lock()
	sealed := make([]sealedSegment, len(b.sealed))
	copy(sealed, b.sealed)
	b.mu.Unlock()

	stats := make([]SealedSegmentStats, 0, len(sealed))
	for _, s := range sealed {
		fi, err := os.Stat(s.path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, errors.Wrap(err, "wal: stat segment")
		}
		stats = append(stats, SealedSegmentStats{EndOffset: s.endOffset, Bytes: fi.Size(), ModTime: fi.ModTime()})
	}
	return stats, nil
}

// Close syncs and closes the active segment and stops background syncing.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	if b.syncTicker != nil {
		b.syncTicker.Stop()
		close(b.syncDone)
	}
	for sub := range b.subs {
		close(sub.wake)
	}
	b.subs = nil
	if err := b.cur.file.Sync(); err != nil {
		return err
	}
	return b.cur.file.Close()
}

package wal

import (
	"bufio"
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/orgloop/engine/internal/model"
	"github.com/orgloop/engine/internal/orgerr"
)

// Handler processes one appended record during replay or live tailing.
type Handler func(Appended) error

// Tail replays records >= fromOffset, then streams new appends as they
// occur, calling handler for each in strict offset order. It blocks until
// ctx is cancelled, the bus is closed, or handler returns an error
// (spec.md §4.1). Multiple concurrent tails are supported; a slow handler
// only delays that tailer's own catch-up, it never drops events and never
// affects other tailers or the appender.
func (b *Bus) Tail(ctx context.Context, fromOffset uint64, handler Handler) error {
	sub := &tailSub{wake: make(chan struct{}, 1)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("wal: closed")
	}
	b.subs[sub] = struct{}{}
	upTo := b.nextOffset
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.subs, sub)
		b.mu.Unlock()
	}()

	cur := fromOffset
	for {
		if upTo > cur {
			recs, err := b.collectRange(cur, upTo)
			if err != nil {
				return err
			}
			for _, r := range recs {
				if err := handler(r); err != nil {
					return err
				}
				cur = r.Offset + 1
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-sub.wake:
			if !ok {
				return errors.New("wal: closed")
			}
			b.mu.Lock()
			upTo = b.nextOffset
			b.mu.Unlock()
		}
	}
}

type segRef struct {
	path  string
	start uint64
}

// collectRange reads every record in [fromOffset, upTo) across however
// many segments that range spans. It is safe to call concurrently with
// Append: segments below upTo are only read for bytes already durably
// written before upTo was snapshotted by the caller.
func (b *Bus) collectRange(fromOffset, upTo uint64) ([]Appended, error) {
	if fromOffset >= upTo {
		return nil, nil
	}

	b.mu.Lock()
	var list []segRef
	for _, s := range b.sealed {
		list = append(list, segRef{path: s.path, start: s.startOffset})
	}
	list = append(list, segRef{path: b.cur.path, start: b.cur.startOffset})
	b.mu.Unlock()

	var out []Appended
	for i, s := range list {
		segEnd := upTo
		if i+1 < len(list) {
			segEnd = list[i+1].start
		}
		if segEnd <= s.start || upTo <= s.start {
			continue
		}
		lo, hi := s.start, segEnd
		if fromOffset > lo {
			lo = fromOffset
		}
		if upTo < hi {
			hi = upTo
		}
		if lo >= hi {
			continue
		}
		recs, err := readSegmentRange(s.path, s.start, lo, hi)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func readSegmentRange(path string, segStart, lo, hi uint64) ([]Appended, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, orgerr.Wrap(orgerr.BusCorruption, "wal", path, err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	offset := segStart
	var out []Appended

	for offset < hi {
		body, result, _, err := readRecord(r)
		switch result {
		case recordOK:
			if offset >= lo {
				var ev model.Event
				if jerr := json.Unmarshal(body, &ev); jerr != nil {
					return nil, orgerr.Wrap(orgerr.BusCorruption, "wal", path, jerr)
				}
				out = append(out, Appended{Offset: offset, Event: ev})
			}
			offset++
		case recordCorrupt:
			return nil, orgerr.New(orgerr.BusCorruption, "wal", path, err)
		default:
			return nil, orgerr.New(orgerr.BusCorruption, "wal", path,
				errors.Errorf("unexpected end of segment before reaching offset %d", hi))
		}
	}
	return out, nil
}

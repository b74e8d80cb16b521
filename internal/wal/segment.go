package wal

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
)

// DefaultMaxSegmentBytes is the rotation threshold from spec.md §6 (64 MiB).
const DefaultMaxSegmentBytes = 64 * 1024 * 1024

var segmentNamePattern = regexp.MustCompile(`^wal-([0-9a-f]{16})\.log$`)

// segment is one on-disk WAL file. startOffset is the offset of the first
// record it contains.
type segment struct {
	path        string
	startOffset uint64
	file        *os.File
	size        int64
}

func segmentPath(dir string, startOffset uint64) string {
	return filepath.Join(dir, fmt.Sprintf("wal-%016x.log", startOffset))
}

// listSegments returns every wal-*.log file in dir, sorted by start offset.
func listSegments(dir string) ([]uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var offsets []uint64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := segmentNamePattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		v, err := strconv.ParseUint(m[1], 16, 64)
		if err != nil {
			continue
		}
		offsets = append(offsets, v)
	}
	sort.Slice(offsets, func(i, j int) bool { return offsets[i] < offsets[j] })
	return offsets, nil
}

func openSegmentForAppend(dir string, startOffset uint64) (*segment, error) {
	path := segmentPath(dir, startOffset)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	fi, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{path: path, startOffset: startOffset, file: f, size: fi.Size()}, nil
}

package wal

import (
	"bufio"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/orgloop/engine/internal/orgerr"
)

// recoverTail scans the tail segment starting at startOffset and returns
// the next offset to append at. It stops at the first invalid or
// zero-filled record (tolerated trailing corruption from a partial write)
// and truncates the file there; a complete-looking record whose checksum
// fails is treated as mid-segment corruption and is fatal (spec.md §4.1,
// §7 BusCorruption).
func recoverTail(dir string, startOffset uint64, log *logrus.Entry) (uint64, error) {
	path := segmentPath(dir, startOffset)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return startOffset, nil
		}
		return 0, errors.Wrap(err, "wal: open tail segment for recovery")
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	offset := startOffset
	var validBytes int64

	for {
		_, result, consumed, err := readRecord(r)
		switch result {
		case recordEOF:
			return offset, nil
		case recordOK:
			validBytes += consumed
			offset++
		case recordTrailingShort, recordZeroLength:
			log.WithFields(logrus.Fields{
				"segment": path,
				"offset":  offset,
			}).Warn("wal recovery: tolerating trailing corruption, truncating segment")
			if terr := os.Truncate(path, validBytes); terr != nil {
				return 0, errors.Wrap(terr, "wal: truncate corrupt tail")
			}
			return offset, nil
		case recordCorrupt:
			return 0, orgerr.New(orgerr.BusCorruption, "wal", path, err)
		}
	}
}

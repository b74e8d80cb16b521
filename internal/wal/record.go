package wal

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// Record wire format (spec.md §6): [4-byte length BE][JSON body][4-byte CRC32C].
// The length field covers only the JSON body.

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

const (
	lengthFieldSize = 4
	crcFieldSize    = 4
)

// encodeRecord returns the on-disk bytes for one body.
func encodeRecord(body []byte) []byte {
	out := make([]byte, lengthFieldSize+len(body)+crcFieldSize)
	binary.BigEndian.PutUint32(out[:lengthFieldSize], uint32(len(body)))
	copy(out[lengthFieldSize:], body)
	sum := crc32.Checksum(body, castagnoli)
	binary.BigEndian.PutUint32(out[lengthFieldSize+len(body):], sum)
	return out
}

// recordReadResult describes the outcome of attempting to read one record
// from a tail position during recovery or replay.
type recordReadResult int

const (
	recordOK recordReadResult = iota
	recordTrailingShort          // truncated/partial write: tolerated
	recordZeroLength             // zero-filled trailing space: tolerated
	recordCorrupt                // CRC mismatch on a complete-looking record: fatal
	recordEOF                    // clean end of stream
)

// readRecord reads one record from r. It returns the body, the outcome, and
// the number of bytes consumed for a successful or tolerated-partial read
// (used by the caller to know where to truncate).
func readRecord(r io.Reader) ([]byte, recordReadResult, int64, error) {
	lenBuf := make([]byte, lengthFieldSize)
	n, err := io.ReadFull(r, lenBuf)
	if err == io.EOF && n == 0 {
		return nil, recordEOF, 0, nil
	}
	if err != nil {
		return nil, recordTrailingShort, int64(n), nil
	}

	length := binary.BigEndian.Uint32(lenBuf)
	if length == 0 {
		return nil, recordZeroLength, lengthFieldSize, nil
	}

	body := make([]byte, length)
	n, err = io.ReadFull(r, body)
	if err != nil {
		return nil, recordTrailingShort, int64(lengthFieldSize + n), nil
	}

	crcBuf := make([]byte, crcFieldSize)
	n, err = io.ReadFull(r, crcBuf)
	if err != nil {
		return nil, recordTrailingShort, int64(lengthFieldSize) + int64(length) + int64(n), nil
	}

	wantCRC := binary.BigEndian.Uint32(crcBuf)
	gotCRC := crc32.Checksum(body, castagnoli)
	consumed := int64(lengthFieldSize) + int64(length) + int64(crcFieldSize)
	if wantCRC != gotCRC {
		return nil, recordCorrupt, consumed, errors.Errorf("crc mismatch: want %x got %x", wantCRC, gotCRC)
	}
	return body, recordOK, consumed, nil
}

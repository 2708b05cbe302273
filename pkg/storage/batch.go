package storage

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Batch files hold a sequence of event records, each framed as a 4-byte
// big-endian length followed by the payload. File names encode the batch
// creation time in unix milliseconds, so lexicographic-by-number order is
// oldest-first.

const recordHeaderSize = 4

// fileNameForTime returns the batch file name for a creation instant.
func fileNameForTime(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

// timeFromFileName recovers the creation instant from a batch file name.
func timeFromFileName(name string) (time.Time, bool) {
	millis, err := strconv.ParseInt(name, 10, 64)
	if err != nil || millis < 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(millis), true
}

// appendRecord appends one framed payload to the batch file at path,
// creating it if needed.
func appendRecord(path string, payload []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open batch %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	var header [recordHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := f.Write(header[:]); err != nil {
		return fmt.Errorf("write batch %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("write batch %s: %w", filepath.Base(path), err)
	}
	return nil
}

// readRecords decodes all complete records from the batch file at path.
// A truncated tail (a crash mid-append) is not an error: decoding stops at
// the last complete record and returns what came before it.
func readRecords(path string) ([][]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch %s: %w", filepath.Base(path), err)
	}

	var records [][]byte
	off := 0
	for off+recordHeaderSize <= len(data) {
		n := int(binary.BigEndian.Uint32(data[off : off+recordHeaderSize]))
		start := off + recordHeaderSize
		if n < 0 || start+n > len(data) {
			// Truncated tail; keep the complete prefix.
			break
		}
		record := make([]byte, n)
		copy(record, data[start:start+n])
		records = append(records, record)
		off = start + n
	}
	return records, nil
}

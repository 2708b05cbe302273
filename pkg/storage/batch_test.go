package storage

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "1700000000000")
	payloads := [][]byte{[]byte("a"), []byte("bb"), []byte(""), []byte("ccc")}
	for _, p := range payloads {
		require.NoError(t, appendRecord(path, p))
	}

	got, err := readRecords(path)
	require.NoError(t, err)
	require.Len(t, got, len(payloads))
	for i := range payloads {
		assert.Equal(t, payloads[i], got[i])
	}
}

func TestReadRecords_TruncatedTailTolerated(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "1700000000000")
	require.NoError(t, appendRecord(path, []byte("complete")))

	// Simulate a crash mid-append: a header promising more bytes than
	// exist.
	var header [recordHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], 100)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.Write(header[:])
	require.NoError(t, err)
	_, err = f.Write([]byte("part"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := readRecords(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []byte("complete"), got[0])
}

func TestReadRecords_TruncatedHeaderTolerated(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "1700000000000")
	require.NoError(t, appendRecord(path, []byte("x")))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o600)
	require.NoError(t, err)
	_, err = f.Write([]byte{0x00, 0x01})
	require.NoError(t, err)
	require.NoError(t, f.Close())

	got, err := readRecords(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFileNameEncodesCreationTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 7, 15, 10, 30, 0, 0, time.UTC)
	name := fileNameForTime(at)

	back, ok := timeFromFileName(name)
	require.True(t, ok)
	assert.Equal(t, at.UnixMilli(), back.UnixMilli())
}

func TestTimeFromFileName_RejectsForeignNames(t *testing.T) {
	t.Parallel()

	for _, name := range []string{"", "batch.tmp", ".DS_Store", "-42", "12x"} {
		_, ok := timeFromFileName(name)
		assert.False(t, ok, "name %q", name)
	}
}

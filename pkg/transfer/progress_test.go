package transfer

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdateProgressComputableTotal(t *testing.T) {
	xfer, err := New("https://example.com", nil)
	require.NoError(t, err)

	xfer.updateProgress(50, 100)

	assert.Equal(t, 0.5, xfer.Progress())
	assert.EqualValues(t, 50, xfer.BytesTransferred())
	assert.EqualValues(t, 100, xfer.TotalBytes())
}

func TestUpdateProgressKeepsStaleFraction(t *testing.T) {
	xfer, err := New("https://example.com", nil)
	require.NoError(t, err)

	xfer.updateProgress(50, 100)

	// An event without a computable total overwrites the counters but
	// leaves the fraction alone.
	xfer.updateProgress(60, 0)

	assert.Equal(t, 0.5, xfer.Progress())
	assert.EqualValues(t, 60, xfer.BytesTransferred())
	assert.EqualValues(t, 0, xfer.TotalBytes())
}

func TestProgressReaderReportsReads(t *testing.T) {
	var processed, total int64
	reader := NewProgressReader(
		strings.NewReader("0123456789"), 10,
		func(p, n int64) { processed, total = p, n },
	)

	_, err := io.ReadAll(reader)

	require.NoError(t, err)
	assert.EqualValues(t, 10, processed)
	assert.EqualValues(t, 10, total)
	assert.Equal(t, 10, reader.Len())
}

func TestProgressReaderSeekResetsCount(t *testing.T) {
	var processed int64
	reader := NewProgressReader(
		strings.NewReader("0123456789"), 10,
		func(p, n int64) { processed = p },
	)

	_, err := io.ReadAll(reader)
	require.NoError(t, err)

	_, err = reader.Seek(0, io.SeekStart)
	require.NoError(t, err)

	assert.EqualValues(t, 0, processed)
}

func TestProgressWriterReportsWrites(t *testing.T) {
	var buf bytes.Buffer
	var processed, total int64
	writer := NewProgressWriter(&buf, 4,
		func(p, n int64) { processed, total = p, n })

	_, err := writer.Write([]byte("ab"))
	require.NoError(t, err)
	_, err = writer.Write([]byte("cd"))
	require.NoError(t, err)

	assert.Equal(t, "abcd", buf.String())
	assert.EqualValues(t, 4, processed)
	assert.EqualValues(t, 4, total)
}

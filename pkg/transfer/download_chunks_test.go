package transfer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateDownloadChunksSmallFile(t *testing.T) {
	chunks := calculateDownloadChunks(250 * 1024 * 1024)

	require.Len(t, chunks, 3)
	assert.Equal(t, byteRange{0, 100*1024*1024 - 1}, chunks[0])
	assert.Equal(t, byteRange{100 * 1024 * 1024, 200*1024*1024 - 1}, chunks[1])
	assert.Equal(t, byteRange{200 * 1024 * 1024, 250*1024*1024 - 1}, chunks[2])
}

func TestCalculateDownloadChunksExactMultiple(t *testing.T) {
	chunks := calculateDownloadChunks(200 * 1024 * 1024)

	require.Len(t, chunks, 2)
	assert.EqualValues(t, 200*1024*1024-1, chunks[1].End)
}

func TestCalculateDownloadChunksHugeFileStaysWithinPartLimit(t *testing.T) {
	size := int64(5 * 1024 * 1024 * 1024 * 1024) // 5TB

	chunks := calculateDownloadChunks(size)

	assert.LessOrEqual(t, len(chunks), parallelDownloadMaxParts)
	assert.EqualValues(t, size-1, chunks[len(chunks)-1].End)

	chunkSize := chunks[0].End - chunks[0].Start + 1
	assert.Zero(t, chunkSize%4096, "chunk size should be a multiple of 4096")

	var covered int64
	for _, chunk := range chunks {
		covered += chunk.End - chunk.Start + 1
	}
	assert.Equal(t, size, covered)
}

func TestDownloadChunkWritesAtOffset(t *testing.T) {
	content := []byte("0123456789")
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			var start, end int64
			_, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end)
			require.NoError(t, err)

			w.Header().Set("Content-Range",
				fmt.Sprintf("bytes %d-%d/%d", start, end, len(content)))
			w.WriteHeader(http.StatusPartialContent)
			_, _ = w.Write(content[start : end+1])
		}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	file, err := fs.OpenFile("out", os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	defer file.Close()
	require.NoError(t, file.Truncate(int64(len(content))))

	xfer, err := New(server.URL, nil)
	require.NoError(t, err)

	var reported int64
	err = xfer.downloadChunk(
		context.Background(), file, server.URL, nil,
		byteRange{Start: 4, End: 7},
		func(n int64) { reported += n },
	)

	require.NoError(t, err)
	assert.EqualValues(t, 4, reported)

	written, err := afero.ReadFile(fs, "out")
	require.NoError(t, err)
	assert.Equal(t, []byte("0123"), written[:4])
	assert.Equal(t, []byte("4567"), written[4:8])
}

func TestDownloadChunkRequiresPartialContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("full body despite the range"))
		}))
	defer server.Close()

	fs := afero.NewMemMapFs()
	file, err := fs.OpenFile("out", os.O_RDWR|os.O_CREATE, 0644)
	require.NoError(t, err)
	defer file.Close()

	xfer, err := New(server.URL, nil)
	require.NoError(t, err)

	err = xfer.downloadChunk(
		context.Background(), file, server.URL, nil,
		byteRange{Start: 0, End: 9},
		func(int64) {},
	)

	assert.ErrorContains(t, err, "ranged request")
}

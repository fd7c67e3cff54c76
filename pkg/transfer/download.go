package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"
)

const (
	// Files at least this large are downloaded in parallel ranged requests.
	parallelDownloadMinFileSize = 2 * 1024 * 1024 * 1024

	// The size of individual ranged requests, except possibly the last.
	parallelDownloadChunkSize = 100 * 1024 * 1024

	// The most ranged requests to make for one file.
	parallelDownloadMaxParts = 10_000

	// How many ranged requests to run at a time.
	parallelDownloadWorkers = 8
)

// DownloadToFile runs the transfer as a GET and streams the response
// body to a file instead of buffering it in memory.
//
// The destination's parent directories are created as needed. When the
// expected size hint is at least 2GB the body is fetched with parallel
// ranged requests; the server must support the Range header for such
// downloads. The transfer settles the same way Do does: cancellation
// resolves with no error, and failures capture an error message.
func (t *Transfer) DownloadToFile(ctx context.Context, fs afero.Fs, path string) error {
	ctx, err := t.begin(ctx)
	if err != nil {
		return err
	}
	t.notify(t.Snapshot())

	t.mu.Lock()
	target := t.url.String()
	headers := maps.Clone(t.headers)
	expectedSize := t.expectedSize
	t.mu.Unlock()

	if err := fs.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return t.settleError(fmt.Errorf(
			"transfer: failed to create destination directory: %v", err))
	}

	file, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return t.settleError(fmt.Errorf(
			"transfer: failed to open destination file: %v", err))
	}
	defer file.Close()

	if expectedSize >= parallelDownloadMinFileSize {
		err = t.downloadParallel(ctx, file, target, headers, expectedSize)
	} else {
		err = t.downloadSerial(ctx, file, target, headers, expectedSize)
	}

	if err != nil {
		if ctx.Err() != nil {
			t.settleCancelled()
			return nil
		}
		return t.settleError(err)
	}

	if err := file.Sync(); err != nil {
		return t.settleError(fmt.Errorf(
			"transfer: failed to sync destination file: %v", err))
	}

	t.settleSuccess(nil)
	return nil
}

func (t *Transfer) downloadSerial(
	ctx context.Context,
	file afero.File,
	target string,
	headers map[string]string,
	expectedSize int64,
) error {
	req, err := retryablehttp.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	t.mu.Lock()
	t.statusCode = resp.StatusCode
	t.mu.Unlock()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.New(resp.Status)
	}

	total := resp.ContentLength
	if total <= 0 {
		total = expectedSize
	}

	writer := NewProgressWriter(file, total, t.downloadProgress(target))
	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("transfer: failed to write response to file: %v", err)
	}
	return nil
}

// byteRange is an inclusive range of response bytes for a ranged request.
type byteRange struct {
	Start int64
	End   int64
}

// downloadParallel fetches the body with concurrent ranged requests,
// each writing its chunk at its offset in the file.
func (t *Transfer) downloadParallel(
	ctx context.Context,
	file afero.File,
	target string,
	headers map[string]string,
	size int64,
) error {
	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("transfer: failed to allocate destination file: %v", err)
	}

	var downloaded atomic.Int64
	report := t.downloadProgress(target)

	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(parallelDownloadWorkers)

	for _, chunk := range calculateDownloadChunks(size) {
		group.Go(func() error {
			return t.downloadChunk(
				ctx, file, target, headers, chunk,
				func(n int64) { report(downloaded.Add(n), size) },
			)
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	t.mu.Lock()
	t.statusCode = http.StatusPartialContent
	t.mu.Unlock()
	return nil
}

func (t *Transfer) downloadChunk(
	ctx context.Context,
	file afero.File,
	target string,
	headers map[string]string,
	chunk byteRange,
	report func(n int64),
) error {
	req, err := retryablehttp.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", chunk.Start, chunk.End))

	resp, err := t.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return fmt.Errorf(
			"transfer: server returned %s for a ranged request", resp.Status)
	}

	writer := &countingWriter{
		Writer: io.NewOffsetWriter(file, chunk.Start),
		Report: report,
	}
	if _, err := io.Copy(writer, resp.Body); err != nil {
		return fmt.Errorf("transfer: failed to write chunk to file: %v", err)
	}
	return nil
}

// calculateDownloadChunks splits a file of the given size into ranged
// request chunks.
//
// Chunks are 100MB unless more than 10,000 would be needed, in which
// case they grow to the smallest multiple of 4096 bytes that keeps the
// count within the limit.
func calculateDownloadChunks(size int64) []byteRange {
	chunkSize := int64(parallelDownloadChunkSize)
	if chunkSize*parallelDownloadMaxParts < size {
		chunkSize = (size + parallelDownloadMaxParts - 1) / parallelDownloadMaxParts

		// Round up to a multiple of the usual filesystem block size.
		if chunkSize%4096 != 0 {
			chunkSize += 4096 - chunkSize%4096
		}
	}

	var chunks []byteRange
	for start := int64(0); start < size; start += chunkSize {
		end := start + chunkSize - 1
		if end >= size {
			end = size - 1
		}
		chunks = append(chunks, byteRange{Start: start, End: end})
	}
	return chunks
}

// countingWriter forwards writes and reports the bytes written.
type countingWriter struct {
	Writer io.Writer
	Report func(n int64)
}

func (w *countingWriter) Write(p []byte) (int, error) {
	n, err := w.Writer.Write(p)
	if n > 0 {
		w.Report(int64(n))
	}
	return n, err
}

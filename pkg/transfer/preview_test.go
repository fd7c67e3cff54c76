package transfer_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knoxville-utilities-board/nrg-transfer/pkg/transfer"
)

func TestPreviewNilBodyIsEmpty(t *testing.T) {
	xfer := mustNew(t, "https://example.com", nil)

	preview, err := xfer.Preview()

	require.NoError(t, err)
	assert.Empty(t, preview)
}

func TestPreviewStringBodyIsItself(t *testing.T) {
	xfer := mustNew(t, "https://example.com", nil).
		SetBody("hello world")

	preview, err := xfer.Preview()

	require.NoError(t, err)
	assert.Equal(t, "hello world", preview)
}

func TestPreviewBytesResolveToBlob(t *testing.T) {
	xfer := mustNew(t, "https://example.com", nil).
		SetBody([]byte{0xCA, 0xFE})

	preview, err := xfer.Preview()

	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(preview, "blob:nrg-transfer/"))

	payload, ok := transfer.ResolvePreview(preview)
	require.True(t, ok)
	blob, ok := payload.(*transfer.Blob)
	require.True(t, ok)
	assert.Equal(t, []byte{0xCA, 0xFE}, blob.Data)
	assert.Empty(t, blob.ContentType)
}

func TestPreviewBlobResolvesToItself(t *testing.T) {
	blob := &transfer.Blob{ContentType: "text/csv", Data: []byte("a,b")}
	xfer := mustNew(t, "https://example.com", nil).SetBody(blob)

	preview, err := xfer.Preview()

	require.NoError(t, err)
	payload, ok := transfer.ResolvePreview(preview)
	require.True(t, ok)
	assert.Same(t, blob, payload)
}

func TestPreviewFileBodyResolvesToItself(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "report.csv", []byte("a,b"), 0644))
	file, err := fs.Open("report.csv")
	require.NoError(t, err)
	defer file.Close()
	body := transfer.FileBody{File: file}
	xfer := mustNew(t, "https://example.com", nil).SetBody(body)

	preview, err := xfer.Preview()

	require.NoError(t, err)
	payload, ok := transfer.ResolvePreview(preview)
	require.True(t, ok)
	assert.Equal(t, body, payload)
}

func TestPreviewReleasesPreviousHandle(t *testing.T) {
	xfer := mustNew(t, "https://example.com", nil).
		SetBody([]byte("v1"))

	first, err := xfer.Preview()
	require.NoError(t, err)

	xfer.SetBody([]byte("v2"))
	second, err := xfer.Preview()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	_, ok := transfer.ResolvePreview(first)
	assert.False(t, ok)
	_, ok = transfer.ResolvePreview(second)
	assert.True(t, ok)
}

func TestReleasePreviewUnknownHandleIsNoOp(t *testing.T) {
	transfer.ReleasePreview("blob:nrg-transfer/doesnotexist")
}

func TestPreviewFormOnGetAppendsQueryParams(t *testing.T) {
	xfer := mustNew(t, "https://example.com/search?lang=en", nil).
		SetBody(url.Values{"q": {"meter readings"}})

	preview, err := xfer.Preview()

	require.NoError(t, err)
	assert.Equal(t, "https://example.com/search?lang=en&q=meter+readings", preview)
}

func TestPreviewFormOnPostIsJSON(t *testing.T) {
	xfer := mustNew(t, "https://example.com/search",
		&transfer.Params{Method: http.MethodPost}).
		SetBody(url.Values{"tag": {"a", "b"}, "q": {"x"}})

	preview, err := xfer.Preview()

	require.NoError(t, err)
	assert.JSONEq(t, `{"tag": ["a", "b"], "q": "x"}`, preview)
}

func TestPreviewProducerIsNotInvoked(t *testing.T) {
	invoked := false
	xfer := mustNew(t, "https://example.com", nil).
		SetBody(transfer.Producer(func() (any, error) {
			invoked = true
			return "never", nil
		}))

	preview, err := xfer.Preview()

	require.NoError(t, err)
	assert.False(t, invoked)
	assert.Contains(t, preview, "transfer_test.")
}

func TestPreviewPendingIsNotConsumed(t *testing.T) {
	pending := make(chan any, 1)
	pending <- "queued"
	xfer := mustNew(t, "https://example.com", nil).
		SetBody(transfer.Pending(pending))

	preview, err := xfer.Preview()

	require.NoError(t, err)
	assert.Equal(t, "transfer.Pending", preview)
	assert.Len(t, pending, 1)
}

func TestPreviewStructuredBodyIsJSON(t *testing.T) {
	xfer := mustNew(t, "https://example.com", nil).
		SetBody(map[string]any{"meter": 44812, "active": true})

	preview, err := xfer.Preview()

	require.NoError(t, err)
	assert.JSONEq(t, `{"meter": 44812, "active": true}`, preview)
}

func TestSendReleasesPreviewHandle(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()
	xfer := mustNew(t, server.URL, &transfer.Params{Method: http.MethodPost}).
		SetBody([]byte("data"))

	handle, err := xfer.Preview()
	require.NoError(t, err)
	_, ok := transfer.ResolvePreview(handle)
	require.True(t, ok)

	_, err = xfer.Do(context.Background())
	require.NoError(t, err)

	_, ok = transfer.ResolvePreview(handle)
	assert.False(t, ok)
}

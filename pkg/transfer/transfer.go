// Package transfer wraps a single HTTP request with progress reporting,
// cancellation, and flexible request-body coercion.
//
// A Transfer is configured with chained calls, started with Do, and
// reaches a terminal state (success, error, or cancelled) exactly once.
// Starting a second transfer on the same instance is rejected.
//
// Progress, bytes transferred and total bytes are only meaningful while
// the transfer is in flight; they are overwritten on every progress
// event from the transport.
package transfer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"mime/multipart"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"

	"github.com/knoxville-utilities-board/nrg-transfer/internal/debounce"
	"github.com/knoxville-utilities-board/nrg-transfer/internal/httpclient"
	"github.com/knoxville-utilities-board/nrg-transfer/internal/observability"
	"github.com/knoxville-utilities-board/nrg-transfer/internal/transferstats"
)

// State is a Transfer's position in its lifecycle.
type State int

const (
	StateIdle = State(iota)
	StateSending
	StateSuccess
	StateError
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateSuccess:
		return "success"
	case StateError:
		return "error"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Snapshot is a plain record of a Transfer's observable state.
//
// It is passed to progress observers and safe to retain.
type Snapshot struct {
	State            State
	BytesTransferred int64
	TotalBytes       int64

	// Progress is the last computed fraction of the transfer.
	//
	// It is only recomputed on progress events that report a computable
	// total, so it may lag BytesTransferred.
	Progress float64
}

type Params struct {
	// Client is the HTTP client that runs the transfer.
	//
	// Defaults to a client that performs no retries.
	Client *retryablehttp.Client

	// Logger for the transfer.
	Logger *observability.CoreLogger

	// Stats aggregates this transfer's byte counts with other transfers.
	Stats transferstats.Stats

	// Kind categorizes the payload for Stats.
	Kind transferstats.TransferKind

	// Method is the HTTP method to use. Defaults to GET.
	Method string

	// ProgressRate throttles progress notifications to observers.
	//
	// Zero notifies on every progress event.
	ProgressRate rate.Limit
}

// Transfer configures and executes exactly one HTTP transfer, surfacing
// progress and outcome to its caller.
//
// Methods that configure the transfer return the same instance for
// chaining and must not be called once the transfer has started.
// Concurrent calls to Do on one instance are rejected; queries are safe
// from any goroutine.
type Transfer struct {
	client *retryablehttp.Client
	logger *observability.CoreLogger
	stats  transferstats.Stats
	kind   transferstats.TransferKind

	mu sync.Mutex

	url          *url.URL
	method       string
	headers      map[string]string
	body         any
	responseType ResponseType
	expectedSize int64

	state      State
	loaded     int64
	total      int64
	fraction   float64
	result     any
	errMsg     string
	statusCode int

	cancel context.CancelFunc

	previewHandle string

	notifyMu  sync.Mutex
	observers []func(Snapshot)
	debouncer *debounce.Debouncer
}

// New creates a Transfer targeting the given absolute or relative address.
func New(target string, params *Params) (*Transfer, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("transfer: invalid target address %q: %v", target, err)
	}

	if params == nil {
		params = &Params{}
	}

	client := params.Client
	if client == nil {
		client = httpclient.New()
	}

	logger := params.Logger
	if logger == nil {
		logger = observability.NewNoOpLogger()
	}

	method := params.Method
	if method == "" {
		method = http.MethodGet
	}

	var debouncer *debounce.Debouncer
	if params.ProgressRate > 0 {
		debouncer = debounce.NewDebouncer(params.ProgressRate, 1, logger)
	}

	return &Transfer{
		client:    client,
		logger:    logger,
		stats:     params.Stats,
		kind:      params.Kind,
		url:       u,
		method:    method,
		headers:   make(map[string]string),
		debouncer: debouncer,
	}, nil
}

// SetHeader records a header to send. Duplicate names overwrite.
func (t *Transfer) SetHeader(name, value string) *Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.headers[name] = value
	return t
}

// SetQueryParams replaces the target address's query string wholesale.
//
// Accepts url.Values, a map[string]string, or nil to clear the query.
// Other types are ignored with a warning.
func (t *Transfer) SetQueryParams(params any) *Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch v := params.(type) {
	case nil:
		t.url.RawQuery = ""
	case url.Values:
		t.url.RawQuery = v.Encode()
	case map[string]string:
		values := url.Values{}
		for key, value := range v {
			values.Set(key, value)
		}
		t.url.RawQuery = values.Encode()
	default:
		t.logger.CaptureWarn(
			"transfer: ignoring query params of unsupported type",
			"type", fmt.Sprintf("%T", params),
		)
	}
	return t
}

// SetBody configures the request body payload.
//
// The value is stored as-is and coerced at send or preview time; see
// coerceBody for the accepted forms.
func (t *Transfer) SetBody(body any) *Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.body = body
	return t
}

// SetResponseType sets the expected kind of the response payload.
//
// Must be called before the transfer starts.
func (t *Transfer) SetResponseType(kind ResponseType) *Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.responseType = kind
	return t
}

// SetExpectedSize hints the size of a download, enabling the ranged
// parallel path for very large files.
func (t *Transfer) SetExpectedSize(size int64) *Transfer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.expectedSize = size
	return t
}

// OnProgress subscribes an observer to progress and state changes.
func (t *Transfer) OnProgress(fn func(Snapshot)) *Transfer {
	t.notifyMu.Lock()
	defer t.notifyMu.Unlock()
	t.observers = append(t.observers, fn)
	return t
}

// Cancel requests an abort of an in-flight transfer.
//
// Safe to call at any time; a no-op if the transfer is not in flight.
func (t *Transfer) Cancel() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// IsUpload reports whether a body payload has been configured.
func (t *Transfer) IsUpload() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.body != nil
}

// IsInProgress reports whether the transfer has started and not yet
// reached a terminal state.
func (t *Transfer) IsInProgress() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state == StateSending
}

// IsSuccessful reports whether the transport returned a 2xx status.
//
// Only meaningful once a response has been received.
func (t *Transfer) IsSuccessful() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statusCode >= 200 && t.statusCode <= 299
}

// Progress returns the last computed transfer fraction.
func (t *Transfer) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fraction
}

// BytesTransferred returns the bytes moved so far.
func (t *Transfer) BytesTransferred() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loaded
}

// TotalBytes returns the total bytes reported by the transport.
func (t *Transfer) TotalBytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// URL returns the effective target address.
func (t *Transfer) URL() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url.String()
}

// Snapshot returns the current observable state.
func (t *Transfer) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Transfer) snapshotLocked() Snapshot {
	return Snapshot{
		State:            t.state,
		BytesTransferred: t.loaded,
		TotalBytes:       t.total,
		Progress:         t.fraction,
	}
}

// Result returns the terminal payload of the transfer.
//
// It returns an error carrying the captured error message if the
// transfer finished unsuccessfully, (nil, nil) while the transfer is
// still in flight or was cancelled, and the payload once it finished
// successfully.
func (t *Transfer) Result() (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateError:
		return nil, errors.New(t.errMsg)
	case StateSuccess:
		return t.result, nil
	default:
		return nil, nil
	}
}

// Do starts the transfer and blocks until it settles.
//
// It returns the terminal payload on success, (nil, nil) if the
// transfer was cancelled, and the captured error on transport failure.
func (t *Transfer) Do(ctx context.Context) (any, error) {
	ctx, err := t.begin(ctx)
	if err != nil {
		return nil, err
	}
	t.notify(t.Snapshot())

	t.mu.Lock()
	method := t.method
	target := t.url.String()
	headers := maps.Clone(t.headers)
	body := t.body
	responseType := t.responseType
	t.mu.Unlock()

	coerced, err := coerceBody(ctx, body)
	if err != nil {
		if ctx.Err() != nil {
			t.settleCancelled()
			return nil, nil
		}
		return nil, t.settleError(err)
	}

	reqBody, contentType, err := t.sendableBody(coerced, target)
	if err != nil {
		return nil, t.settleError(err)
	}

	req, err := retryablehttp.NewRequest(method, target, reqBody)
	if err != nil {
		return nil, t.settleError(err)
	}
	req = req.WithContext(ctx)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}

	t.logger.Debug("transfer: sending", "method", method, "url", target)

	// The preview reference is released once the transfer is sent.
	t.releasePreview()

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			t.settleCancelled()
			return nil, nil
		}
		return nil, t.settleError(err)
	}
	defer resp.Body.Close()

	t.mu.Lock()
	t.statusCode = resp.StatusCode
	t.mu.Unlock()

	total := resp.ContentLength
	if total < 0 {
		total = 0
	}

	var buf bytes.Buffer
	writer := NewProgressWriter(&buf, total, t.downloadProgress(target))
	if _, err := io.Copy(writer, resp.Body); err != nil {
		if ctx.Err() != nil {
			t.settleCancelled()
			return nil, nil
		}
		return nil, t.settleError(
			fmt.Errorf("transfer: failed to read response: %v", err))
	}
	data := buf.Bytes()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := resp.Status
		if responseType.isTextual() && len(data) > 0 {
			msg = string(data)
		}
		return nil, t.settleError(errors.New(msg))
	}

	payload, err := decodePayload(responseType, resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, t.settleError(err)
	}

	t.settleSuccess(payload)
	return payload, nil
}

// begin transitions the transfer from idle to sending.
func (t *Transfer) begin(ctx context.Context) (context.Context, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.state {
	case StateSending:
		return nil, errors.New("transfer: already in progress")
	case StateSuccess, StateError, StateCancelled:
		return nil, errors.New("transfer: already finished")
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.state = StateSending
	t.errMsg = ""
	return ctx, nil
}

// settleError records the first captured error message and moves the
// transfer to its terminal error state.
//
// Returns the error for the caller to propagate, preserving its cause
// chain.
func (t *Transfer) settleError(err error) error {
	t.mu.Lock()
	if t.errMsg == "" {
		t.errMsg = err.Error()
	}
	t.state = StateError
	t.releaseContextLocked()
	t.mu.Unlock()

	t.logger.CaptureError(fmt.Errorf("transfer: failed: %v", err), "url", t.URL())
	t.notifySettled()
	return err
}

// releaseContextLocked cancels the derived request context, releasing its
// resources once the transfer settles.
func (t *Transfer) releaseContextLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *Transfer) settleCancelled() {
	t.mu.Lock()
	t.state = StateCancelled
	t.releaseContextLocked()
	t.mu.Unlock()

	t.logger.Debug("transfer: cancelled", "url", t.URL())
	t.notifySettled()
}

// settleSuccess records the terminal payload.
//
// Stats need no closing update here: the upload progress callback already
// reported the terminal byte counts, and by settle time the counters hold
// the response's values instead.
func (t *Transfer) settleSuccess(payload any) {
	t.mu.Lock()
	t.result = payload
	t.state = StateSuccess
	t.releaseContextLocked()
	t.mu.Unlock()

	t.notifySettled()
}

// updateProgress overwrites the progress counters from a transport
// progress event.
//
// The fraction is only recomputed when the event reports a computable
// total; otherwise the last known fraction goes stale.
func (t *Transfer) updateProgress(loaded, total int64) {
	t.mu.Lock()
	t.loaded = loaded
	t.total = total
	if total > 0 {
		t.fraction = float64(loaded) / float64(total)
	}
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snapshot)
}

func (t *Transfer) uploadProgress(key string) func(processed, total int64) {
	return func(processed, total int64) {
		t.updateProgress(processed, total)

		if t.stats != nil {
			t.stats.UpdateUploadStats(transferstats.UploadInfo{
				Key:           key,
				Kind:          t.kind,
				UploadedBytes: processed,
				TotalBytes:    total,
			})
		}
	}
}

func (t *Transfer) downloadProgress(key string) func(processed, total int64) {
	return func(processed, total int64) {
		t.updateProgress(processed, total)

		if t.stats != nil {
			t.stats.UpdateDownloadStats(transferstats.DownloadInfo{
				Key:             key,
				DownloadedBytes: processed,
				TotalBytes:      total,
			})
		}
	}
}

func (t *Transfer) notify(snapshot Snapshot) {
	t.notifyMu.Lock()
	observers := slices.Clone(t.observers)
	deliver := true
	if t.debouncer != nil {
		deliver = false
		t.debouncer.SetNeedsDebounce()
		t.debouncer.Debounce(func() { deliver = true })
	}
	t.notifyMu.Unlock()

	if !deliver {
		return
	}

	// Observers run outside the lock so they may call back into the
	// Transfer, including subscribing more observers.
	for _, fn := range observers {
		fn(snapshot)
	}
}

// notifySettled always reaches observers, bypassing the debouncer's
// rate limit for the terminal snapshot.
func (t *Transfer) notifySettled() {
	snapshot := t.Snapshot()

	t.notifyMu.Lock()
	observers := slices.Clone(t.observers)
	deliver := true
	if t.debouncer != nil {
		deliver = false
		t.debouncer.SetNeedsDebounce()
		t.debouncer.Flush(func() { deliver = true })
	}
	t.notifyMu.Unlock()

	if !deliver {
		return
	}

	for _, fn := range observers {
		fn(snapshot)
	}
}

// sendableBody converts a coerced body into a request body and an
// optional default content type.
func (t *Transfer) sendableBody(coerced any, key string) (any, string, error) {
	switch v := coerced.(type) {
	case nil:
		return nil, "", nil

	case []byte:
		// Due to historical mistakes, net/http interprets a 0 value of
		// Request.ContentLength as "unknown" if the body is non-nil, and
		// doesn't send the Content-Length header which is usually required.
		//
		// To have it understand 0 as 0, the body must be set to nil or
		// the NoBody sentinel.
		if len(v) == 0 {
			return http.NoBody, "", nil
		}
		return NewProgressReader(
			bytes.NewReader(v), int64(len(v)), t.uploadProgress(key),
		), "", nil

	case *Blob:
		if len(v.Data) == 0 {
			return http.NoBody, v.ContentType, nil
		}
		return NewProgressReader(
			bytes.NewReader(v.Data), int64(len(v.Data)), t.uploadProgress(key),
		), v.ContentType, nil

	case jsonText:
		return NewProgressReader(
			strings.NewReader(string(v)), int64(len(v)), t.uploadProgress(key),
		), "application/json", nil

	case string:
		if v == "" {
			return http.NoBody, "", nil
		}
		return NewProgressReader(
			strings.NewReader(v), int64(len(v)), t.uploadProgress(key),
		), "text/plain; charset=utf-8", nil

	case url.Values:
		encoded, contentType, err := encodeMultipart(v)
		if err != nil {
			return nil, "", err
		}
		return NewProgressReader(
			bytes.NewReader(encoded), int64(len(encoded)), t.uploadProgress(key),
		), contentType, nil

	case FileBody:
		return t.fileBody(v, key)

	case io.Reader:
		// Length unknown; the transport never reports a computable total.
		return v, "", nil

	default:
		text := fmt.Sprint(v)
		return NewProgressReader(
			strings.NewReader(text), int64(len(text)), t.uploadProgress(key),
		), "text/plain; charset=utf-8", nil
	}
}

func (t *Transfer) fileBody(v FileBody, key string) (any, string, error) {
	stat, err := v.File.Stat()
	if err != nil {
		return nil, "", fmt.Errorf(
			"transfer: upload: error when stat-ing %s: %v", v.File.Name(), err)
	}

	// Don't try to upload directories.
	if stat.IsDir() {
		return nil, "", fmt.Errorf(
			"transfer: upload: cannot upload directory %v", stat.Name())
	}

	if v.Offset+v.Size > stat.Size() {
		// If the range exceeds the file size, there was some kind of
		// error upstream.
		return nil, "", errors.New(
			"transfer: upload: offset + size exceeds the file size")
	}

	size := v.Size
	if size == 0 {
		// If Size is 0, upload the remainder of the file.
		size = stat.Size() - v.Offset
	}

	if size == 0 {
		return http.NoBody, "", nil
	}

	return NewProgressReader(
		io.NewSectionReader(v.File, v.Offset, size),
		size,
		t.uploadProgress(key),
	), "", nil
}

func encodeMultipart(values url.Values) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, key := range slices.Sorted(maps.Keys(values)) {
		for _, value := range values[key] {
			if err := writer.WriteField(key, value); err != nil {
				return nil, "", fmt.Errorf(
					"transfer: failed to encode form field %s: %v", key, err)
			}
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("transfer: failed to encode form: %v", err)
	}

	return buf.Bytes(), writer.FormDataContentType(), nil
}

// releasePreview revokes the current preview reference, if any.
func (t *Transfer) releasePreview() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.releasePreviewLocked()
}

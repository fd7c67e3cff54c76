package transfer

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"runtime"
	"sync"

	"github.com/wandb/simplejsonext"

	"github.com/knoxville-utilities-board/nrg-transfer/internal/randomid"
)

// previewScheme prefixes handles returned by Preview for binary payloads.
const previewScheme = "blob:nrg-transfer/"

// previewRegistry maps live preview handles to the payload they reference.
//
// Handles are registered by Preview and removed when the transfer is sent,
// when Preview is called again, or by ReleasePreview.
var previewRegistry = struct {
	sync.Mutex
	payloads map[string]any
}{payloads: make(map[string]any)}

func registerPreview(payload any) string {
	previewRegistry.Lock()
	defer previewRegistry.Unlock()

	handle := previewScheme + randomid.GenerateUniqueID(32)
	previewRegistry.payloads[handle] = payload
	return handle
}

// ResolvePreview returns the payload referenced by a live preview handle.
func ResolvePreview(handle string) (any, bool) {
	previewRegistry.Lock()
	defer previewRegistry.Unlock()

	payload, ok := previewRegistry.payloads[handle]
	return payload, ok
}

// ReleasePreview revokes a preview handle, dropping its payload reference.
//
// Revoking an unknown or already-released handle is a no-op.
func ReleasePreview(handle string) {
	previewRegistry.Lock()
	defer previewRegistry.Unlock()
	delete(previewRegistry.payloads, handle)
}

// Preview computes a representation of the transfer's request without
// sending anything.
//
// Binary-like bodies produce a handle resolvable with ResolvePreview;
// the handle stays live until the transfer is sent, Preview is called
// again, or it is released explicitly. Form values on a GET or HEAD
// transfer produce the target address with the form appended as query
// parameters. Textual and structured bodies produce their text. Lazy
// bodies are never invoked or consumed; they produce a description of
// the pending computation.
func (t *Transfer) Preview() (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Each call replaces the previous preview reference.
	t.releasePreviewLocked()

	switch v := t.body.(type) {
	case nil:
		return "", nil

	case []byte:
		// Raw bytes are previewed through a Blob with no content type.
		// Sending leaves them bare.
		handle := registerPreview(&Blob{Data: v})
		t.previewHandle = handle
		return handle, nil

	case *Blob, FileBody:
		handle := registerPreview(v)
		t.previewHandle = handle
		return handle, nil

	case Pending, <-chan any, chan any:
		return fmt.Sprintf("%T", v), nil

	case Producer:
		return producerName(v), nil
	case func() (any, error):
		return producerName(Producer(v)), nil
	case func() any:
		return producerName(v), nil

	case string:
		return v, nil

	case url.Values:
		return t.previewFormLocked(v)

	case io.Reader:
		handle := registerPreview(v)
		t.previewHandle = handle
		return handle, nil

	default:
		if isPrimitive(v) {
			return fmt.Sprint(v), nil
		}

		text, err := simplejsonext.MarshalToString(v)
		if err != nil {
			return "", fmt.Errorf("transfer: failed to serialize body: %v", err)
		}
		return text, nil
	}
}

// previewFormLocked renders form values either as the target address with
// the form in the query string, for methods without a request body, or as
// JSON text.
func (t *Transfer) previewFormLocked(values url.Values) (string, error) {
	if t.method == http.MethodGet || t.method == http.MethodHead {
		address := *t.url

		query := address.Query()
		for key, formValues := range values {
			for _, value := range formValues {
				query.Add(key, value)
			}
		}
		address.RawQuery = query.Encode()

		return address.String(), nil
	}

	form := make(map[string]any, len(values))
	for key, formValues := range values {
		if len(formValues) == 1 {
			form[key] = formValues[0]
		} else {
			form[key] = formValues
		}
	}

	text, err := simplejsonext.MarshalToString(form)
	if err != nil {
		return "", fmt.Errorf("transfer: failed to serialize form: %v", err)
	}
	return text, nil
}

func producerName(fn any) string {
	pc := reflect.ValueOf(fn).Pointer()
	if details := runtime.FuncForPC(pc); details != nil {
		return details.Name()
	}
	return fmt.Sprintf("%T", fn)
}

func (t *Transfer) releasePreviewLocked() {
	if t.previewHandle == "" {
		return
	}
	ReleasePreview(t.previewHandle)
	t.previewHandle = ""
}

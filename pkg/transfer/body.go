package transfer

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"reflect"

	"github.com/spf13/afero"
	"github.com/wandb/simplejsonext"
)

// Blob is an in-memory binary payload with an optional content type.
type Blob struct {
	ContentType string
	Data        []byte
}

// FileBody uploads a window of a file.
//
// If Size is zero, all bytes starting at Offset are uploaded; if non-zero,
// that many bytes starting from Offset are uploaded.
type FileBody struct {
	File   afero.File
	Offset int64
	Size   int64
}

// Producer lazily yields a request body when the transfer is sent.
//
// The returned value goes through body coercion again, so a producer may
// yield bytes, a Blob, form values, a structured value, a string, or even
// a Pending value that settles later.
type Producer func() (any, error)

// Pending is a value that settles after the transfer begins.
//
// Receiving an error value from the channel fails the transfer; any other
// value is coerced into the request body.
type Pending <-chan any

// jsonText is a structured body serialized to JSON at coercion time.
type jsonText string

// producerError wraps failures from body-producing functions.
func producerError(cause error) error {
	return fmt.Errorf("transfer: body producer rejected: %w", cause)
}

// coerceBody normalizes a configured body into a primitive sendable form.
//
// The protocol is applied recursively until a primitive form is reached:
//
//  1. nil stays nil (no body).
//  2. Binary-like forms (bytes, Blob, file, reader, form values) pass
//     through unchanged.
//  3. A Pending value is treated as a zero-argument producer wrapping
//     that same value; the recursion resolves once the value settles.
//  4. Any other structured (non-function, non-primitive) value is
//     serialized to JSON text.
//  5. A producer is invoked with no arguments and the result re-coerced;
//     a producer failure is wrapped with the original error as the cause.
//  6. Anything else is primitive and sent as-is.
func coerceBody(ctx context.Context, body any) (any, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil

	case []byte, *Blob, FileBody, url.Values:
		return v, nil

	case Pending:
		return coerceBody(ctx, producerFromPending(ctx, v))
	case <-chan any:
		return coerceBody(ctx, producerFromPending(ctx, v))
	case chan any:
		return coerceBody(ctx, producerFromPending(ctx, v))

	case Producer:
		return invokeProducer(ctx, v)
	case func() (any, error):
		return invokeProducer(ctx, v)
	case func() any:
		return invokeProducer(ctx, func() (any, error) { return v(), nil })

	case string:
		return v, nil

	case io.Reader:
		// Streams are binary-like and pass through unchanged.
		return v, nil

	default:
		if isPrimitive(v) {
			return v, nil
		}

		data, err := simplejsonext.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("transfer: failed to serialize body: %v", err)
		}
		return jsonText(data), nil
	}
}

func invokeProducer(ctx context.Context, produce Producer) (any, error) {
	result, err := produce()
	if err != nil {
		return nil, producerError(err)
	}

	return coerceBody(ctx, result)
}

func producerFromPending(ctx context.Context, pending <-chan any) Producer {
	return func() (any, error) {
		select {
		case value := <-pending:
			if err, ok := value.(error); ok {
				return nil, err
			}
			return value, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func isPrimitive(v any) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

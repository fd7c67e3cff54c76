// Package httpclient constructs the HTTP clients that run transfers.
//
// The returned clients are retryablehttp clients with retries turned off:
// every transport failure is surfaced to the caller. Retrying is strictly
// opt-in via WithRetryMax and WithRetryPolicy.
package httpclient

import (
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/knoxville-utilities-board/nrg-transfer/internal/observability"
)

func New(opts ...Option) *retryablehttp.Client {
	client := retryablehttp.NewClient()

	// No retries unless the caller opts in. RetryNever also keeps
	// retryablehttp from converting retryable responses into "giving up"
	// errors, so non-2xx responses reach the caller intact.
	client.RetryMax = 0
	client.CheckRetry = RetryNever
	client.Logger = nil

	for _, opt := range opts {
		opt(client)
	}
	return client
}

type Option func(rc *retryablehttp.Client)

func WithLogger(logger *observability.CoreLogger) Option {
	return func(rc *retryablehttp.Client) {
		rc.Logger = slog.NewLogLogger(logger.Logger.Handler(), slog.LevelDebug)
	}
}

func WithRetryMax(retryMax int) Option {
	return func(rc *retryablehttp.Client) {
		rc.RetryMax = retryMax
	}
}

func WithRetryWaitMin(retryWaitMin time.Duration) Option {
	return func(rc *retryablehttp.Client) {
		rc.RetryWaitMin = retryWaitMin
	}
}

func WithRetryWaitMax(retryWaitMax time.Duration) Option {
	return func(rc *retryablehttp.Client) {
		rc.RetryWaitMax = retryWaitMax
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(rc *retryablehttp.Client) {
		rc.HTTPClient.Timeout = timeout
	}
}

func WithTransport(transport http.RoundTripper) Option {
	return func(rc *retryablehttp.Client) {
		rc.HTTPClient.Transport = transport
	}
}

func WithRetryPolicy(retryPolicy retryablehttp.CheckRetry) Option {
	return func(rc *retryablehttp.Client) {
		rc.CheckRetry = retryPolicy
	}
}

func WithBackoff(backoff retryablehttp.Backoff) Option {
	return func(rc *retryablehttp.Client) {
		rc.Backoff = backoff
	}
}

// WithResponseLogger logs error response bodies through the given logger.
//
// logResponse decides whether a particular response should be logged; a nil
// logResponse logs every response passed to the hook.
func WithResponseLogger(logger *slog.Logger, logResponse func(resp *http.Response) bool) Option {
	return func(rc *retryablehttp.Client) {
		rc.ResponseLogHook = func(_ retryablehttp.Logger, resp *http.Response) {
			if logResponse != nil && !logResponse(resp) {
				return
			}
			body, err := io.ReadAll(resp.Body)
			if err == nil {
				logger.Info("HTTP Error", "status", resp.StatusCode, "body", string(body))
			}
		}
	}
}

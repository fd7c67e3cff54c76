package httplayers

import (
	"net/http"

	"golang.org/x/time/rate"
)

// RateLimited limits the rate of outgoing requests.
//
// Requests block until the limiter allows them or their context is done.
func RateLimited(limit rate.Limit, burst int) HTTPWrapper {
	return rateLimitWrapper{rate.NewLimiter(limit, burst)}
}

type rateLimitWrapper struct {
	rateLimiter *rate.Limiter
}

// WrapHTTP implements HTTPWrapper.WrapHTTP.
func (w rateLimitWrapper) WrapHTTP(send HTTPDoFunc) HTTPDoFunc {
	return func(req *http.Request) (*http.Response, error) {
		if err := w.rateLimiter.Wait(req.Context()); err != nil {
			// Errors happen if:
			//   - The request is canceled
			//   - The rate limit exceeds the request deadline
			return nil, URLError(req, err)
		}

		return send(req)
	}
}

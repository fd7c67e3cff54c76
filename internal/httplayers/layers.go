// Package httplayers provides composable layers of HTTP functionality
// that can be injected into a transfer client's transport.
package httplayers

import "net/http"

// HTTPDoFunc sends an HTTP request, like http.Client's Do.
type HTTPDoFunc func(*http.Request) (*http.Response, error)

// HTTPWrapper adds functionality around sending an HTTP request.
type HTTPWrapper interface {
	// WrapHTTP returns a function that sends an HTTP request using the
	// given function, running extra logic before or after.
	WrapHTTP(send HTTPDoFunc) HTTPDoFunc
}

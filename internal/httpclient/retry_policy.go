package httpclient

import (
	"context"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
)

type ContextKey string

const CtxRetryPolicyKey ContextKey = "retryFunc"

// RetryNever is the retry policy for clients whose callers opted in to
// retries on some requests but not others.
func RetryNever(ctx context.Context, _ *http.Response, _ error) (bool, error) {
	return false, ctx.Err()
}

// RetryMostFailures is a retry policy that retries most client (4xx) errors,
// server (5xx) errors, and connection problems.
func RetryMostFailures(
	ctx context.Context,
	resp *http.Response,
	err error,
) (bool, error) {
	// Respect context cancellation and deadlines.
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	// Use retryablehttp's defaults for errors.
	//
	// Most errors are retryable, but a few are not. Unfortunately, the only
	// way to detect them is to match on the error string. We let retryablehttp
	// do this for us.
	//
	// Retryable errors are often connection issues. Non-retryable errors
	// include invalid usage, TLS verification problems, and too many redirects.
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return false, nil
	case http.StatusUnauthorized:
		return false, nil
	case http.StatusForbidden:
		return false, nil
	case http.StatusNotFound:
		return false, nil
	case http.StatusConflict:
		return false, nil
	case http.StatusGone:
		return false, nil
	case http.StatusRequestEntityTooLarge:
		return false, nil
	case http.StatusUnprocessableEntity:
		return false, nil
	case http.StatusNotImplemented:
		return false, nil
	}

	// Retry some invalid HTTP codes.
	if resp.StatusCode == 0 || resp.StatusCode >= 600 {
		return true, nil
	}

	// Retry any other client or server errors.
	return resp.StatusCode >= 400 && resp.StatusCode <= 599, nil
}

// CheckRetry dispatches to the retry policy in the request context, if any,
// and to RetryNever otherwise.
func CheckRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if err != nil || ctx.Err() != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}

	retryPolicy, ok := ctx.Value(CtxRetryPolicyKey).(func(context.Context, *http.Response, error) (bool, error))
	switch {
	case !ok, retryPolicy == nil:
		return RetryNever(ctx, resp, err)
	default:
		return retryPolicy(ctx, resp, err)
	}
}

package httpclient_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/knoxville-utilities-board/nrg-transfer/internal/httpclient"
)

func TestRetryMostFailures(t *testing.T) {
	testCases := []struct {
		name        string
		statusCode  int
		shouldRetry bool
	}{
		{"BadRequest", http.StatusBadRequest, false},
		{"Unauthorized", http.StatusUnauthorized, false},
		{"Forbidden", http.StatusForbidden, false},
		{"NotFound", http.StatusNotFound, false},
		{"Conflict", http.StatusConflict, false},
		{"Gone", http.StatusGone, false},
		{"ContentTooLarge", http.StatusRequestEntityTooLarge, false},
		{"UnprocessableEntity", http.StatusUnprocessableEntity, false},
		{"NotImplemented", http.StatusNotImplemented, false},
		{"Other4xxError", http.StatusTeapot, true},
		{"ServerError", http.StatusInternalServerError, true},
		{"BadGateway", http.StatusBadGateway, true},
		{"Success", http.StatusOK, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			resp := httptest.NewRecorder().Result()
			resp.StatusCode = tc.statusCode

			retry, err := httpclient.RetryMostFailures(context.Background(), resp, nil)

			assert.Equal(t, tc.shouldRetry, retry)
			assert.NoError(t, err)
		})
	}
}

func TestRetryMostFailures_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	retry, err := httpclient.RetryMostFailures(ctx, nil, nil)

	assert.False(t, retry)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryNever(t *testing.T) {
	resp := httptest.NewRecorder().Result()
	resp.StatusCode = http.StatusInternalServerError

	retry, err := httpclient.RetryNever(context.Background(), resp, nil)

	assert.False(t, retry)
	assert.NoError(t, err)
}

func TestCheckRetry(t *testing.T) {
	// Mock a retry policy.
	mockRetryPolicy := func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		return resp.StatusCode == http.StatusForbidden, nil
	}

	ctx := context.WithValue(context.Background(), httpclient.CtxRetryPolicyKey, mockRetryPolicy)
	resp := httptest.NewRecorder().Result()

	resp.StatusCode = http.StatusForbidden
	retry, err := httpclient.CheckRetry(ctx, resp, nil)
	assert.True(t, retry)
	assert.NoError(t, err)

	resp.StatusCode = http.StatusNotFound
	retry, err = httpclient.CheckRetry(ctx, resp, nil)
	assert.False(t, retry)
	assert.NoError(t, err)

	// With no policy in the context, nothing is retried.
	ctx = context.Background()
	resp.StatusCode = http.StatusInternalServerError
	retry, err = httpclient.CheckRetry(ctx, resp, nil)
	assert.False(t, retry)
	assert.NoError(t, err)
}

func TestNewDoesNotRetryByDefault(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client := httpclient.New()

	resp, err := client.Get(server.URL)
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, 1, requests)
}

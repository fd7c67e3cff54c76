package sentryext

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

type Params struct {
	// DSN is the Data Source Name for the sentry client.
	//
	// If empty, the client is disabled and captures nothing.
	DSN string

	// AttachStacktrace is a flag to attach stacktrace to the sentry event
	AttachStacktrace bool

	// Release is the version of the library
	Release string

	// Environment is the environment the host application is running in
	Environment string

	// BeforeSend is a callback to modify the event before sending it to sentry
	BeforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event

	// LRUSize is the size of the recent-error cache
	LRUSize int
}

type Client struct {
	// Recent is the cache of recent errors sent to sentry to avoid sending
	// the same error multiple times
	Recent *cache
}

// New initializes the sentry client.
//
// If the DSN is not set, the client is effectively disabled and will not send
// any errors to sentry.
func New(params Params) *Client {
	if err := sentry.Init(
		sentry.ClientOptions{
			Dsn:              params.DSN,
			AttachStacktrace: params.AttachStacktrace,
			Release:          params.Release,
			BeforeSend:       params.BeforeSend,
			Environment:      params.Environment,
		}); err != nil {
		slog.Error("sentryext: New: failed to initialize sentry", "err", err)
	}

	cache, err := newCache(params.LRUSize)
	if err != nil {
		slog.Error("sentryext: New: failed to create cache", "err", err)
		return nil
	}

	return &Client{
		Recent: cache,
	}
}

// CaptureException captures an error and sends it to sentry.
//
// The error is sent to sentry as an error level event, enriched with the
// tags provided.
func (s *Client) CaptureException(err error, tags map[string]string) {
	if !s.Recent.shouldCapture(err) {
		return
	}

	localHub := sentry.CurrentHub().Clone()
	localHub.ConfigureScope(
		func(scope *sentry.Scope) {
			scope.SetTags(tags)
		},
	)
	localHub.CaptureException(err)
}

// CaptureMessage captures a non-error message and sends it to sentry.
func (s *Client) CaptureMessage(msg string, tags map[string]string) {
	if !s.Recent.shouldCapture(errors.New(msg)) {
		return
	}

	localHub := sentry.CurrentHub().Clone()
	localHub.ConfigureScope(
		func(scope *sentry.Scope) {
			scope.SetTags(tags)
		},
	)
	localHub.CaptureMessage(msg)
}

// Reraise captures an error and re-raises it.
//
// Used to capture unexpected panics.
func (s *Client) Reraise(err any, tags map[string]string) {
	if err != nil {
		if e, ok := err.(error); ok {
			s.CaptureException(e, tags)
		} else {
			s.CaptureException(fmt.Errorf("%v", err), tags)
		}
		sentry.Flush(time.Second * 2)
		panic(err)
	}
}

// Flush flushes the sentry client.
func (s *Client) Flush(timeout time.Duration) bool {
	hub := sentry.CurrentHub()
	return hub.Flush(timeout)
}

// Command nrg-transfer downloads or uploads a single file over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/knoxville-utilities-board/nrg-transfer/internal/httpclient"
	"github.com/knoxville-utilities-board/nrg-transfer/internal/httplayers"
	"github.com/knoxville-utilities-board/nrg-transfer/internal/observability"
	"github.com/knoxville-utilities-board/nrg-transfer/internal/sentryext"
	"github.com/knoxville-utilities-board/nrg-transfer/internal/settings"
	"github.com/knoxville-utilities-board/nrg-transfer/internal/version"
	"github.com/knoxville-utilities-board/nrg-transfer/pkg/transfer"
)

func main() {
	configPath := flag.String("config", "",
		"Path to a YAML settings file. Environment variables override it.")
	method := flag.String("method", http.MethodGet,
		"HTTP method to use for the transfer.")
	output := flag.String("output", "",
		"Write the response body to this file instead of stdout.")
	input := flag.String("input", "",
		"Send this file as the request body.")
	logLevel := flag.Int("log-level", 0,
		"Log level. -4: debug, 0: info, 4: warn, 8: error.")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "nrg-transfer %s\n\n", version.Version)
		fmt.Fprintf(os.Stderr, "Usage: %s [flags] <url>\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}
	target := flag.Arg(0)

	fs := afero.NewOsFs()

	config := settings.Defaults()
	if *configPath != "" {
		loaded, err := settings.Load(fs, *configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "nrg-transfer: %v\n", err)
			os.Exit(1)
		}
		config = loaded
	}
	config.ApplyEnv(os.Getenv)

	sentryClient := sentryext.New(sentryext.Params{
		DSN:         config.SentryDSN,
		Release:     version.Version,
		Environment: version.Environment,
	})
	defer sentryClient.Flush(2 * time.Second)

	logger := observability.NewCoreLogger(
		slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.Level(*logLevel),
		})),
		&observability.CoreLoggerParams{Sentry: sentryClient},
	)

	if err := run(fs, logger, config, *method, target, *input, *output); err != nil {
		logger.CaptureError(err)
		fmt.Fprintf(os.Stderr, "nrg-transfer: %v\n", err)
		os.Exit(1)
	}
}

func run(
	fs afero.Fs,
	logger *observability.CoreLogger,
	config *settings.Settings,
	method string,
	target string,
	input string,
	output string,
) error {
	ctx, stop := signal.NotifyContext(
		context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := httpclient.New(
		httpclient.WithLogger(logger),
		httpclient.WithRetryMax(config.RetryMax),
		httpclient.WithRetryWaitMin(config.RetryWaitMin()),
		httpclient.WithRetryWaitMax(config.RetryWaitMax()),
		httpclient.WithTimeout(config.Timeout()),
	)

	transport := http.DefaultTransport
	if config.RateLimitPerSecond > 0 {
		// Only requests to the target are rate limited.
		targetURL, err := url.Parse(target)
		if err != nil {
			return fmt.Errorf("invalid target address %q: %v", target, err)
		}
		targetURL.Path = ""

		transport = httplayers.WrapRoundTripper(
			transport,
			httplayers.LimitTo(
				targetURL,
				httplayers.RateLimited(
					rate.Limit(config.RateLimitPerSecond),
					config.RateLimitBurst,
				),
			),
		)
	}
	transport = httplayers.WrapRoundTripper(
		transport,
		httplayers.ExtraHeaders(http.Header{
			"User-Agent": []string{config.UserAgent},
		}),
	)
	client.HTTPClient.Transport = transport

	xfer, err := transfer.New(target, &transfer.Params{
		Client:       client,
		Logger:       logger,
		Method:       strings.ToUpper(method),
		ProgressRate: rate.Limit(4),
	})
	if err != nil {
		return err
	}

	xfer.OnProgress(func(s transfer.Snapshot) {
		if s.TotalBytes > 0 {
			fmt.Fprintf(os.Stderr, "\r%3.0f%% (%d/%d bytes)",
				s.Progress*100, s.BytesTransferred, s.TotalBytes)
		}
	})
	defer fmt.Fprintln(os.Stderr)

	if input != "" {
		file, err := fs.Open(input)
		if err != nil {
			return err
		}
		defer file.Close()
		xfer.SetBody(transfer.FileBody{File: file})
	}

	if output != "" {
		return xfer.DownloadToFile(ctx, fs, output)
	}

	xfer.SetResponseType(transfer.ResponseBytes)
	result, err := xfer.Do(ctx)
	if err != nil {
		return err
	}
	if data, ok := result.([]byte); ok {
		_, err = os.Stdout.Write(data)
	}
	return err
}

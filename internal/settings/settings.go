// Defines transfer client settings.
package settings

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Settings for transfer clients.
//
// The zero value is not useful; start from Defaults and override.
type Settings struct {
	// TimeoutSeconds is the HTTP timeout for a single transfer attempt.
	//
	// Zero means no timeout; callers use context deadlines instead.
	TimeoutSeconds float64 `yaml:"timeout_seconds"`

	// RetryMax is the maximum number of retries for a failed request.
	//
	// The default is zero: failures surface to the caller immediately.
	RetryMax int `yaml:"retry_max"`

	// RetryWaitMinSeconds is the minimum wait between retries.
	RetryWaitMinSeconds float64 `yaml:"retry_wait_min_seconds"`

	// RetryWaitMaxSeconds is the maximum wait between retries.
	RetryWaitMaxSeconds float64 `yaml:"retry_wait_max_seconds"`

	// RateLimitPerSecond caps outgoing requests per second.
	//
	// Zero disables rate limiting.
	RateLimitPerSecond float64 `yaml:"rate_limit_per_second"`

	// RateLimitBurst is the burst size for the rate limiter.
	RateLimitBurst int `yaml:"rate_limit_burst"`

	// UserAgent is sent on every request.
	UserAgent string `yaml:"user_agent"`

	// SentryDSN enables error reporting when non-empty.
	SentryDSN string `yaml:"sentry_dsn"`
}

func Defaults() *Settings {
	return &Settings{
		RetryWaitMinSeconds: 2,
		RetryWaitMaxSeconds: 60,
		RateLimitBurst:      10,
		UserAgent:           "nrg-transfer",
	}
}

// Load reads settings from a YAML file, applied on top of Defaults.
func Load(fs afero.Fs, path string) (*Settings, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("settings: failed to read %s: %v", path, err)
	}

	settings := Defaults()
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("settings: failed to parse %s: %v", path, err)
	}

	return settings, nil
}

// ApplyEnv overrides settings from environment variables.
//
// getenv is usually os.Getenv; tests pass a fake.
func (s *Settings) ApplyEnv(getenv func(string) string) {
	if v := getenv("NRG_TRANSFER_TIMEOUT_SECONDS"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			s.TimeoutSeconds = parsed
		}
	}
	if v := getenv("NRG_TRANSFER_RETRY_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			s.RetryMax = parsed
		}
	}
	if v := getenv("NRG_TRANSFER_SENTRY_DSN"); v != "" {
		s.SentryDSN = v
	}
	if v := getenv("NRG_TRANSFER_USER_AGENT"); v != "" {
		s.UserAgent = v
	}
}

func (s *Settings) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds * float64(time.Second))
}

func (s *Settings) RetryWaitMin() time.Duration {
	return time.Duration(s.RetryWaitMinSeconds * float64(time.Second))
}

func (s *Settings) RetryWaitMax() time.Duration {
	return time.Duration(s.RetryWaitMaxSeconds * float64(time.Second))
}

package httpclient

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}

func durationToSeconds(duration time.Duration) float64 {
	return float64(duration) / float64(time.Second)
}

// ExponentialBackoffWithJitter returns a duration to sleep for based on the
// attempt number, the minimum and maximum durations, and the response.
// If the response is nil or not a 429, the response is ignored.
// If the response is a 429, the Retry-After header is used to determine the
// duration to sleep for.
// Otherwise, the sleep duration is calculated as:
//
//	min * 2^(attemptNum)
//
// If the calculated duration is greater than max, max is used instead.
// A random jitter of at most 25% is added to the calculated duration,
// unless the calculated duration is >= max.
func ExponentialBackoffWithJitter(min, max time.Duration, attemptNum int, resp *http.Response) time.Duration {
	addJitter := func(duration time.Duration) time.Duration {
		jitter := secondsToDuration(rand.Float64() * 0.25 * durationToSeconds(duration))
		return duration + jitter
	}

	if resp != nil {
		if resp.StatusCode == http.StatusTooManyRequests {
			if s, ok := resp.Header["Retry-After"]; ok {
				if sleep, err := strconv.ParseFloat(s[0], 64); err == nil {
					return addJitter(secondsToDuration(sleep))
				}
			}
		}
	}

	sleep := secondsToDuration(math.Pow(2, float64(attemptNum)) * durationToSeconds(min))
	sleep = addJitter(sleep)

	if sleep > max {
		sleep = max
	}
	return sleep
}

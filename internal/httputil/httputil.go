// Package httputil holds the HTTP plumbing shared by the source clients:
// response validation and a retrying transport implementing the upstream
// backoff contract.
package httputil

import (
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/quay/zlog"
)

// CheckResponse takes an http.Response and a variadic of ints representing
// acceptable http status codes. The error returned will attempt to include
// some content from the server's response.
func CheckResponse(resp *http.Response, acceptableCodes ...int) error {
	for _, code := range acceptableCodes {
		if resp.StatusCode == code {
			return nil
		}
	}
	limitBody, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err == nil && len(limitBody) != 0 {
		return fmt.Errorf("unexpected status code: %s (body starts: %q)", resp.Status, limitBody)
	}
	return fmt.Errorf("unexpected status code: %s", resp.Status)
}

// ParseRetryAfter interprets a Retry-After header value, either delay
// seconds or an HTTP date.
func ParseRetryAfter(v string, now time.Time) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	return 0, false
}

// RetryTransport retries transient upstream failures with exponential
// backoff and jitter, honoring Retry-After when the upstream provides one.
//
// Retries happen per request (and therefore per page of a paged fetch),
// never per job. Only GET and HEAD requests are retried; everything else
// passes through untouched.
type RetryTransport struct {
	// Next is the underlying RoundTripper; http.DefaultTransport when nil.
	Next http.RoundTripper
	// MaxAttempts caps total tries. Values below 1 mean DefaultMaxAttempts.
	MaxAttempts int
	// BaseDelay is the first backoff step; doubled each retry. Defaults to
	// DefaultBaseDelay.
	BaseDelay time.Duration
	// MaxDelay caps a single backoff sleep. Defaults to DefaultMaxDelay.
	MaxDelay time.Duration
}

// Defaults for RetryTransport.
const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = 1 * time.Second
	DefaultMaxDelay    = 2 * time.Minute
)

var _ http.RoundTripper = (*RetryTransport)(nil)

// RoundTrip implements http.RoundTripper.
func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	next := t.Next
	if next == nil {
		next = http.DefaultTransport
	}
	switch req.Method {
	case http.MethodGet, http.MethodHead:
	default:
		return next.RoundTrip(req)
	}

	attempts := t.MaxAttempts
	if attempts < 1 {
		attempts = DefaultMaxAttempts
	}
	base := t.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	max := t.MaxDelay
	if max <= 0 {
		max = DefaultMaxDelay
	}

	ctx := req.Context()
	var resp *http.Response
	var err error
	for i := 0; ; i++ {
		resp, err = next.RoundTrip(req)
		retryable := false
		var wait time.Duration
		switch {
		case err != nil:
			retryable = true
		case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
			retryable = true
			if d, ok := ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()); ok {
				wait = d
			}
		}
		if !retryable || i == attempts-1 {
			return resp, err
		}
		if resp != nil {
			// Drain so the connection can be reused.
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			resp.Body.Close()
		}
		if wait == 0 {
			wait = base << uint(i)
			wait += time.Duration(rand.Int63n(int64(wait) / 2))
		}
		if wait > max {
			wait = max
		}
		zlog.Debug(ctx).
			Str("url", req.URL.Redacted()).
			Int("attempt", i+1).
			Dur("wait", wait).
			Err(err).
			Msg("retrying upstream request")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

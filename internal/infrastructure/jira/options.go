package jira

import (
	"net/http"
	"time"
)

type options struct {
	timeout       time.Duration
	maxAttempts   int
	initialDelay  time.Duration
	maxConcurrent int64
	httpClient    *http.Client
}

func defaultOptions() options {
	return options{
		timeout:       30 * time.Second,
		maxAttempts:   3,
		initialDelay:  500 * time.Millisecond,
		maxConcurrent: 4,
	}
}

// Option configures the client.
type Option func(*options)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithRetry configures retry behaviour for reads.
func WithRetry(maxAttempts int, initialDelay time.Duration) Option {
	return func(o *options) {
		o.maxAttempts = maxAttempts
		o.initialDelay = initialDelay
	}
}

// WithMaxConcurrent bounds the number of requests in flight.
func WithMaxConcurrent(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxConcurrent = int64(n)
		}
	}
}

// WithHTTPClient sets the base transport client. OAuth2 wraps it.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

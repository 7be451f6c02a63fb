// Package httpretry retries outbound HTTP calls with exponential backoff and
// full jitter. The similarity scorer uses it to reach the remote scoring service.
package httpretry

import (
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/ignite/loadboard/internal/pkg/logger"
)

// Doer executes HTTP requests. *http.Client and *Client both satisfy it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options tunes a Client. Zero values pick the defaults.
type Options struct {
	MaxRetries int           // attempts after the first one (default 3)
	BaseDelay  time.Duration // first backoff ceiling (default 500ms)
	MaxDelay   time.Duration // backoff cap, also caps Retry-After (default 10s)
	Timeout    time.Duration // per-attempt timeout of the default transport (default 15s)
}

// Client wraps a Doer with retry logic.
type Client struct {
	next       Doer
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	sleep      func(req *http.Request, d time.Duration) error
}

// New wraps next. A nil next gets an *http.Client using opts.Timeout.
func New(next Doer, opts Options) *Client {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	} else if opts.MaxRetries == 0 {
		opts.MaxRetries = 3
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = 500 * time.Millisecond
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 10 * time.Second
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if next == nil {
		next = &http.Client{Timeout: opts.Timeout}
	}
	return &Client{
		next:       next,
		maxRetries: opts.MaxRetries,
		baseDelay:  opts.BaseDelay,
		maxDelay:   opts.MaxDelay,
		sleep:      sleepCtx,
	}
}

// Do retries on 429/500/502/503/504 and transport errors. Client errors and
// context cancellation are returned at once. The last retryable response is
// returned as-is so the caller can read its body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	var lastErr error
	var wait time.Duration

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if err := req.Context().Err(); err != nil {
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, err
		}

		if attempt > 0 {
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("httpretry: reset request body: %w", err)
				}
				req.Body = body
			}
			if wait <= 0 {
				wait = c.backoff(attempt)
			}
			logger.Debug("httpretry: retrying", "attempt", attempt, "max", c.maxRetries,
				"method", req.Method, "host", req.URL.Host, "path", req.URL.Path, "wait", wait)
			if err := c.sleep(req, wait); err != nil {
				if lastErr != nil {
					return nil, lastErr
				}
				return nil, err
			}
			wait = 0
		}

		resp, err := c.next.Do(req)
		if err != nil {
			lastErr = err
			if req.Context().Err() != nil {
				return nil, err
			}
			continue
		}

		if !retryable(resp.StatusCode) || attempt == c.maxRetries {
			return resp, nil
		}

		wait = c.retryAfter(resp)
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		lastErr = fmt.Errorf("httpretry: server returned retryable status %d", resp.StatusCode)
	}

	return nil, lastErr
}

// backoff is random(0, min(maxDelay, baseDelay*2^(attempt-1))) with a 10ms floor.
func (c *Client) backoff(attempt int) time.Duration {
	ceiling := float64(c.baseDelay) * math.Pow(2, float64(attempt-1))
	if ceiling > float64(c.maxDelay) {
		ceiling = float64(c.maxDelay)
	}
	d := time.Duration(rand.Float64() * ceiling)
	if d < 10*time.Millisecond {
		d = 10 * time.Millisecond
	}
	return d
}

// retryAfter honours a Retry-After header given in seconds, capped at maxDelay.
func (c *Client) retryAfter(resp *http.Response) time.Duration {
	secs, err := strconv.Atoi(resp.Header.Get("Retry-After"))
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > c.maxDelay {
		d = c.maxDelay
	}
	return d
}

func retryable(status int) bool {
	switch status {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func sleepCtx(req *http.Request, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-req.Context().Done():
		return req.Context().Err()
	}
}

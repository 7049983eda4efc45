// Package fetch retrieves source payloads over HTTP, retrying failed attempts,
// and classifies what came back.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/jdholdren/pulse/internal/pulse"
)

const (
	UserAgent   = "MarketPulse-Seed/1.0"
	MaxAttempts = 3

	// Upper bound on a payload read into memory.
	maxBodyBytes = 16 << 20
)

// DefaultDelays are waited after each failed attempt, indexed by attempt number.
var DefaultDelays = []time.Duration{0, time.Second, 3 * time.Second}

type (
	// Client performs GETs against source endpoints.
	Client struct {
		http   *http.Client
		delays []time.Duration
	}

	// Config holds the knobs of a [Client]. Zero values get defaults.
	Config struct {
		HTTPClient *http.Client
		Delays     []time.Duration
	}

	// Request is the per source part of a fetch.
	Request struct {
		Timeout time.Duration // Per attempt
		Headers map[string]string
	}

	Response struct {
		Status  int
		Payload Payload
	}
)

func NewClient(cfg Config) *Client {
	c := &Client{
		http:   cfg.HTTPClient,
		delays: cfg.Delays,
	}
	if c.http == nil {
		// Timeouts are applied per attempt through the request context
		c.http = &http.Client{}
	}
	if len(c.delays) == 0 {
		c.delays = DefaultDelays
	}

	return c
}

// delay is the wait after the given zero-indexed failed attempt, clamped to
// the last configured delay.
func delay(delays []time.Duration, attempt int) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	if attempt >= len(delays) {
		return delays[len(delays)-1]
	}

	return delays[attempt]
}

// Backoff between attempts. The wait after attempt n is delays[n], so with
// [MaxAttempts] attempts only the first MaxAttempts-1 delays are used.
func (c *Client) backoff() retry.Backoff {
	failed := 0
	return retry.BackoffFunc(func() (time.Duration, bool) {
		d := delay(c.delays, failed)
		failed++
		if failed >= MaxAttempts {
			return 0, true
		}

		return d, false
	})
}

// Fetch gets url, making up to [MaxAttempts] attempts. Any failure comes back as
// a [*pulse.FetchError] describing the last attempt.
func (c *Client) Fetch(ctx context.Context, url string, req Request) (Response, error) {
	var resp Response
	err := retry.Do(ctx, c.backoff(), func(ctx context.Context) error {
		r, err := c.attempt(ctx, url, req)
		if err != nil {
			return err
		}

		resp = r
		return nil
	})
	if err == nil {
		return resp, nil
	}

	fetchErr := &pulse.FetchError{}
	if !errors.As(err, &fetchErr) {
		fetchErr = &pulse.FetchError{URL: url, Err: err}
	}

	return resp, fetchErr
}

// A single attempt. Transport and status failures are retryable, a body that
// can't be decoded isn't.
func (c *Client) attempt(ctx context.Context, url string, req Request) (Response, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, retry.RetryableError(&pulse.FetchError{URL: url, Err: err})
	}
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.Header.Set("User-Agent", UserAgent)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, retry.RetryableError(&pulse.FetchError{URL: url, Err: err})
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxBodyBytes))
	if err != nil {
		return Response{}, retry.RetryableError(&pulse.FetchError{
			URL:    url,
			Status: res.StatusCode,
			Err:    fmt.Errorf("error reading body: %w", err),
		})
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Response{}, retry.RetryableError(&pulse.FetchError{URL: url, Status: res.StatusCode})
	}

	payload, err := Decode(body)
	if err != nil {
		return Response{}, &pulse.FetchError{URL: url, Status: res.StatusCode, Err: err}
	}

	return Response{
		Status:  res.StatusCode,
		Payload: payload,
	}, nil
}

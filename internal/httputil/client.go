// Package httputil holds the shared outbound HTTP plumbing: one client with
// a per-call timeout and a Fetcher that wraps GET requests in bounded
// exponential-backoff retry behind a per-upstream circuit breaker.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"
)

const DefaultTimeout = 30 * time.Second

const userAgent = "tripweather/1.0 (+https://github.com/lox/tripweather)"

// NewClient returns an HTTP client with the per-call timeout applied.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

// RetryPolicy bounds the attempts made for one logical request. The wait
// between attempts doubles from MinWait up to MaxWait.
type RetryPolicy struct {
	MaxAttempts int
	MinWait     time.Duration
	MaxWait     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 5,
		MinWait:     1 * time.Second,
		MaxWait:     16 * time.Second,
	}
}

// StatusError is a non-200 upstream response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// IsRetryable reports whether err is a transient upstream failure: a
// 502/503/504, a timeout, or a failed connection.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return false
}

// StatusCode extracts the upstream status from err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Fetcher performs GET requests against one upstream.
type Fetcher struct {
	name    string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
	policy  RetryPolicy
	logger  *slog.Logger
}

func NewFetcher(name string, client *http.Client, policy RetryPolicy, logger *slog.Logger) *Fetcher {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			// A 4xx says nothing about upstream health.
			return err == nil || !IsRetryable(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("httputil: circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &Fetcher{
		name:    name,
		client:  client,
		breaker: cb,
		policy:  policy,
		logger:  logger.With("component", "httputil", "upstream", name),
	}
}

// Get fetches url and returns the body of a 200 response. Retryable failures
// are retried per the policy; anything else returns after one attempt.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	attempt := 0
	op := func() ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, backoff.Permanent(err)
		}
		attempt++
		body, err := f.breaker.Execute(func() ([]byte, error) {
			return f.do(ctx, url)
		})
		if err == nil {
			return body, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, backoff.Permanent(fmt.Errorf("%s circuit breaker: %w", f.name, err))
		}
		if ctx.Err() != nil || !IsRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(f.policy.MinWait),
		backoff.WithMaxInterval(f.policy.MaxWait),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(f.policy.MaxAttempts-1)), ctx)

	body, err := backoff.RetryNotifyWithData(op, policy, func(err error, wait time.Duration) {
		f.logger.Warn("httputil: retrying request", "attempt", attempt, "wait", wait, "error", err)
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) do(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > 200 {
			snippet = snippet[:200]
		}
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

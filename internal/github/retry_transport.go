package github

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

const (
	defaultRetryAttempts = 3
	defaultRetryDelay    = time.Second
	retryMaxDelay        = 30 * time.Second
	retryMaxJitter       = 500 * time.Millisecond
	maxRequestSize       = 1 << 20
)

// RetryTransport retries rate-limited and server-error responses with
// exponential backoff and jitter. 401 and other client errors are returned
// immediately. When attempts run out on a retryable status the last response
// is returned so the caller sees the real status code.
type RetryTransport struct {
	Base     http.RoundTripper
	Attempts uint
	Delay    time.Duration
	Logger   *slog.Logger
}

func (t *RetryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attempts := t.Attempts
	if attempts == 0 {
		attempts = defaultRetryAttempts
	}
	delay := t.Delay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	ctx := req.Context()

	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(io.LimitReader(req.Body, maxRequestSize))
		if err != nil {
			return nil, err
		}
		if closeErr := req.Body.Close(); closeErr != nil {
			logger.DebugContext(ctx, "failed to close request body", "error", closeErr, "url", req.URL.String())
		}
	}

	var resp *http.Response
	var retryable bool
	err := retry.Do(
		func() error {
			if bodyBytes != nil {
				req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			}

			var err error
			retryable = false
			start := time.Now()
			resp, err = base.RoundTrip(req) //nolint:bodyclose // returned to the caller
			elapsed := time.Since(start)
			if err != nil {
				logger.DebugContext(ctx, "http request failed", "url", req.URL.String(), "error", err, "elapsed", elapsed)
				return err
			}

			logger.DebugContext(ctx, "http response", "status", resp.StatusCode, "url", req.URL.String(), "elapsed", elapsed)

			reason := retryReason(resp)
			if reason == "" {
				return nil
			}

			// Buffer the body so the final response stays readable if this was the last attempt.
			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				body = nil
			}
			if closeErr := resp.Body.Close(); closeErr != nil {
				logger.DebugContext(ctx, "failed to close response body", "error", closeErr)
			}
			resp.Body = io.NopCloser(bytes.NewReader(body))

			retryable = true
			logger.InfoContext(ctx, "http request will be retried", "status", resp.StatusCode, "url", req.URL.String(), "reason", reason)
			return &retryableError{StatusCode: resp.StatusCode}
		},
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.MaxDelay(retryMaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxJitter(retryMaxJitter),
		retry.RetryIf(func(err error) bool {
			var retryErr *retryableError
			return errors.As(err, &retryErr)
		}),
	)
	if err == nil {
		return resp, nil
	}

	if retryable && resp != nil && ctx.Err() == nil {
		return resp, nil
	}
	return nil, err
}

func retryReason(resp *http.Response) string {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "rate limited"
	case resp.StatusCode >= 500 && resp.StatusCode < 600:
		return "server error"
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-Ratelimit-Remaining") == "0":
		return "github rate limit exceeded"
	default:
		return ""
	}
}

type retryableError struct {
	StatusCode int
}

func (e *retryableError) Error() string {
	return http.StatusText(e.StatusCode)
}

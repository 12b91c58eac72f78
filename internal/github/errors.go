package github

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	gh "github.com/google/go-github/v71/github"
)

var (
	// ErrUnauthorized means GitHub rejected the token (HTTP 401).
	ErrUnauthorized = errors.New("github: unauthorized")
	// ErrUnreachable means GitHub could not be reached at all.
	ErrUnreachable = errors.New("github: unreachable")
)

// IsFatal reports whether err should stop a whole refresh cycle.
func IsFatal(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrUnreachable)
}

// classify wraps err with ErrUnauthorized or ErrUnreachable when it belongs
// to one of those classes. Context errors pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || (errors.Is(err, context.DeadlineExceeded) && !isTimeout(err)) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if statusCode(err) == http.StatusUnauthorized {
		return fmt.Errorf("%s: %w: %w", op, ErrUnauthorized, err)
	}
	if isNetworkError(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrUnreachable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func statusCode(err error) int {
	var errResp *gh.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return errResp.Response.StatusCode
	}
	return 0
}

func isNetworkError(err error) bool {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

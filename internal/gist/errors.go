package gist

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is a non-2xx response from the GitHub API.
type APIError struct {
	Op          string
	StatusCode  int
	Message     string
	RateLimited bool
	// RetryAfter is how long GitHub asked us to wait, when it said.
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("gist %s: %d %s", e.Op, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RateLimited {
		msg += " (rate limited"
		if e.RetryAfter > 0 {
			msg += fmt.Sprintf(", retry after %s", e.RetryAfter)
		}
		msg += ")"
	}
	return msg
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Temporary reports whether repeating the request may succeed.
func (e *APIError) Temporary() bool {
	return e.RateLimited || e.StatusCode >= 500
}

func newAPIError(op string, resp *http.Response, message string) *APIError {
	e := &APIError{Op: op, StatusCode: resp.StatusCode, Message: message}

	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			e.RetryAfter = time.Duration(secs) * time.Second
		}
	}
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.RateLimited = true
	case resp.StatusCode == http.StatusForbidden && (remaining == "0" || e.RetryAfter > 0 ||
		strings.Contains(strings.ToLower(message), "rate limit")):
		e.RateLimited = true
	}
	if e.RateLimited && e.RetryAfter == 0 && remaining == "0" {
		if reset, err := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64); err == nil {
			if wait := time.Until(time.Unix(reset, 0)); wait > 0 {
				e.RetryAfter = wait
			}
		}
	}
	return e
}

// Retryable reports whether err is worth retrying: rate limits, server
// errors and network failures.
func Retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

package gist

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/klauern/agentsync/internal/logging"
)

// Retrying decorates a Remote with exponential backoff for rate limits,
// server errors and network failures. Create is only retried on rate
// limits, since a 5xx may hide a gist that was in fact created.
type Retrying struct {
	remote          Remote
	maxRetries      uint64
	initialInterval time.Duration
	maxElapsed      time.Duration
}

var _ Remote = (*Retrying)(nil)

// NewRetrying wraps remote, retrying each call up to maxRetries times.
func NewRetrying(remote Remote, maxRetries int) *Retrying {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Retrying{
		remote:          remote,
		maxRetries:      uint64(maxRetries),
		initialInterval: 500 * time.Millisecond,
		maxElapsed:      2 * time.Minute,
	}
}

func (r *Retrying) retry(ctx context.Context, op string, retryable func(error) bool, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.initialInterval
	b.MaxElapsedTime = r.maxElapsed
	policy := backoff.WithContext(backoff.WithMaxRetries(b, r.maxRetries), ctx)

	operation := func() error {
		err := fn()
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		logging.WithContext(ctx).Info("retrying gist request",
			logging.Operation(op), logging.Err(err), "wait", wait)
	}

	err := backoff.RetryNotify(operation, policy, notify)
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return permanent.Err
	}
	return err
}

func rateLimitedOnly(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited
}

// Create retries only when the request was rejected for rate limiting.
func (r *Retrying) Create(ctx context.Context, description string, files map[string]string) (*Gist, error) {
	var g *Gist
	err := r.retry(ctx, "create", rateLimitedOnly, func() error {
		var err error
		g, err = r.remote.Create(ctx, description, files)
		return err
	})
	return g, err
}

// Get retries transient failures.
func (r *Retrying) Get(ctx context.Context, id string) (*Gist, error) {
	var g *Gist
	err := r.retry(ctx, "get", Retryable, func() error {
		var err error
		g, err = r.remote.Get(ctx, id)
		return err
	})
	return g, err
}

// Update retries transient failures. Updates are idempotent.
func (r *Retrying) Update(ctx context.Context, id, description string, files map[string]string) (*Gist, error) {
	var g *Gist
	err := r.retry(ctx, "update", Retryable, func() error {
		var err error
		g, err = r.remote.Update(ctx, id, description, files)
		return err
	})
	return g, err
}

// List retries transient failures.
func (r *Retrying) List(ctx context.Context) ([]Gist, error) {
	var gists []Gist
	err := r.retry(ctx, "list", Retryable, func() error {
		var err error
		gists, err = r.remote.List(ctx)
		return err
	})
	return gists, err
}

// ValidateToken retries transient failures.
func (r *Retrying) ValidateToken(ctx context.Context) (*TokenInfo, error) {
	var info *TokenInfo
	err := r.retry(ctx, "validate token", Retryable, func() error {
		var err error
		info, err = r.remote.ValidateToken(ctx)
		return err
	})
	return info, err
}

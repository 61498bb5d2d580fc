package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/labstack/gommon/log"
)

// RetryPolicy retries operations that fail with ErrUnavailable.
type RetryPolicy struct {
	// Attempts is the number of retries after the first try.
	Attempts int
	Base     time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Base: 50 * time.Millisecond}
}

// Do runs op with exponential backoff between tries. Any error other than
// ErrUnavailable ends the loop immediately and is returned as is.
func (p RetryPolicy) Do(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	if p.Base > 0 {
		eb.InitialInterval = p.Base
		eb.MaxInterval = 20 * p.Base
	}
	eb.MaxElapsedTime = 0
	eb.Reset()

	var policy backoff.BackOff = backoff.WithMaxRetries(eb, uint64(max(p.Attempts, 0)))
	policy = backoff.WithContext(policy, ctx)

	return backoff.RetryNotify(func() error {
		err := op()
		if err != nil && !errors.Is(err, ErrUnavailable) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, next time.Duration) {
		log.Warnf("[Retry] %v; next try in %s", err, next)
	})
}

// Get is Do for operations that return a value.
func Get[T any](ctx context.Context, p RetryPolicy, op func() (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func() error {
		v, err := op()
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// Package retry runs engine operations again after transient persistence failures.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Haseeb-Arshad/codingcam-backend/internal/domain"
)

// Policy bounds the retries applied to one operation.
type Policy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultPolicy is used when no explicit policy is configured.
var DefaultPolicy = Policy{MaxRetries: 3, InitialInterval: 50 * time.Millisecond, MaxInterval: time.Second}

// Do calls op until it succeeds, returns an error that is not retryable, the budget is
// spent or ctx is done. The last error from op is returned.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.MaxElapsedTime = 0
	if p.InitialInterval > 0 {
		eb.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		eb.MaxInterval = p.MaxInterval
	}
	bkoff := backoff.WithContext(backoff.WithMaxRetries(eb, p.MaxRetries), ctx)

	return backoff.Retry(func() error {
		err := op(ctx)
		if err != nil && !domain.IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bkoff)
}

// Persistence retries op up to maxRetries times with the default intervals.
func Persistence(ctx context.Context, maxRetries int, op func(ctx context.Context) error) error {
	p := DefaultPolicy
	if maxRetries >= 0 {
		p.MaxRetries = uint64(maxRetries)
	}
	return p.Do(ctx, op)
}

package retry

import (
	"context"
	"time"

	"activity-xp/internal/errs"

	"github.com/cenkalti/backoff/v5"
)

// Policy bounds a retry loop. Attempts counts the first call.
type Policy struct {
	Attempts uint
	Initial  time.Duration
	Max      time.Duration
}

// Once runs the operation a single time, for batch work that skips failures.
var Once = Policy{Attempts: 1}

func DefaultPolicy(attempts int) Policy {
	if attempts < 1 {
		attempts = 1
	}
	return Policy{Attempts: uint(attempts), Initial: 250 * time.Millisecond, Max: 2 * time.Second}
}

// Do retries fn while it fails with a transient error. Any other failure is
// returned immediately.
func Do(ctx context.Context, policy Policy, fn func(context.Context) error) error {
	attempts := policy.Attempts
	if attempts == 0 {
		attempts = 1
	}

	b := backoff.NewExponentialBackOff()
	if policy.Initial > 0 {
		b.InitialInterval = policy.Initial
	}
	if policy.Max > 0 {
		b.MaxInterval = policy.Max
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		if err := fn(ctx); err != nil {
			if !errs.Is(err, errs.KindTransient) {
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(attempts))
	return err
}

// Package retry runs external calls with a per-call timeout and linear backoff.
package retry

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Policy bounds one external call.
type Policy struct {
	Attempts int
	Backoff  time.Duration // sleep before attempt n is (n-1)*Backoff
	Timeout  time.Duration // per attempt, zero means none
}

type permanent struct{ err error }

func (p permanent) Error() string { return p.err.Error() }
func (p permanent) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanent{err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p permanent
	return errors.As(err, &p)
}

// Do calls fn until it succeeds, returns a permanent error, the attempts run
// out, or ctx is done. The last error is returned unwrapped from Permanent.
func Do(ctx context.Context, p Policy, log *zap.Logger, label string, fn func(ctx context.Context) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	if log == nil {
		log = zap.NewNop()
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return errors.Join(ctx.Err(), err)
			case <-time.After(time.Duration(attempt-1) * p.Backoff):
			}
		}

		err = call(ctx, p.Timeout, fn)
		if err == nil {
			return nil
		}
		if IsPermanent(err) {
			return errors.Unwrap(err)
		}
		if ctx.Err() != nil {
			return err
		}
		log.Warn("attempt failed",
			zap.String("call", label),
			zap.Int("attempt", attempt),
			zap.Int("of", attempts),
			zap.Error(err))
	}
	return err
}

func call(ctx context.Context, timeout time.Duration, fn func(ctx context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(cctx)
}

package bridge

import (
	"context"
	"time"

	protectbridge "github.com/wippyai/protect-bridge"
	"github.com/wippyai/protect-bridge/errors"
)

// RetryPolicy bounds attachment attempts.
type RetryPolicy struct {
	// MaxAttempts is the total number of Attach calls. Values below 1 mean 1.
	MaxAttempts int
	// Backoff is the fixed pause between attempts.
	Backoff time.Duration
}

// DefaultRetryPolicy returns 3 attempts with a 2ms backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Backoff: 2 * time.Millisecond}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// attach calls vm.Attach until it succeeds or the attempts run out.
// A closed runtime is not retried. onRetry runs before each pause.
func (p RetryPolicy) attach(ctx context.Context, vm protectbridge.VM, onRetry func(attempt int, err error)) (protectbridge.Env, error) {
	attempts := p.attempts()
	var last error
	for i := 1; i <= attempts; i++ {
		env, err := vm.Attach(ctx)
		if err == nil {
			return env, nil
		}
		last = err
		if errors.KindOf(err) == errors.KindClosed {
			return nil, errors.AttachFailed(i, err)
		}
		if i < attempts {
			if onRetry != nil {
				onRetry(i, err)
			}
			if p.Backoff > 0 {
				time.Sleep(p.Backoff)
			}
		}
	}
	return nil, errors.AttachFailed(attempts, last)
}

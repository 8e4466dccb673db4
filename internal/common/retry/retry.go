// File path: internal/common/retry/retry.go

// Package retry centralizes the bounded-backoff policy applied to every
// external service call (embedding and reasoning backends). Transient
// failures are retried with exponential backoff; terminal failures surface
// immediately.
package retry

import (
	"context"
	"time"

	retry "github.com/sethvargo/go-retry"

	"github.com/auditkit/sopcheck/internal/compliance"
)

// Policy bounds the retry loop for one class of external call.
type Policy struct {
	// Attempts is the total number of tries, including the first.
	Attempts int
	// Backoff is the base delay; it doubles after each failed attempt.
	Backoff time.Duration
}

// DefaultPolicy matches the indexing contract: up to 3 attempts with
// exponential backoff starting at 250ms.
func DefaultPolicy() Policy {
	return Policy{Attempts: 3, Backoff: 250 * time.Millisecond}
}

func (p Policy) normalized() Policy {
	out := p
	if out.Attempts <= 0 {
		out.Attempts = 1
	}
	if out.Backoff <= 0 {
		out.Backoff = 250 * time.Millisecond
	}
	return out
}

// Do runs fn under the policy. Only errors classified as transient by
// compliance.IsTransient are retried; everything else is terminal.
func Do(ctx context.Context, p Policy, fn func(ctx context.Context) error) error {
	p = p.normalized()
	b := retry.WithMaxRetries(uint64(p.Attempts-1), retry.NewExponential(p.Backoff))
	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if compliance.IsTransient(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

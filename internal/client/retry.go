package client

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy shapes the reconnect schedule. MaxAttempts of zero retries
// forever.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64
	MaxAttempts     uint64
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2,
	}
}

func (p RetryPolicy) backoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if p.InitialInterval > 0 {
		b.InitialInterval = p.InitialInterval
	}
	if p.MaxInterval > 0 {
		b.MaxInterval = p.MaxInterval
	}
	if p.Multiplier > 0 {
		b.Multiplier = p.Multiplier
	}
	// keep retrying until the attempt cap, not a wall-clock cap
	b.MaxElapsedTime = 0
	b.Reset()
	if p.MaxAttempts > 0 {
		return backoff.WithMaxRetries(b, p.MaxAttempts-1)
	}
	return b
}

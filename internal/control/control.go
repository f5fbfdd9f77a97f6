package control

import (
	"context"
	"time"
)

// Policy holds the retry limits for one proxy dispatch.
type Policy struct {
	MaxRetries     int
	RetryDelay     time.Duration
	RequestTimeout time.Duration
}

// DefaultPolicy returns three attempts, a fixed one-second delay and a
// sixty-second per-attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:     3,
		RetryDelay:     time.Second,
		RequestTimeout: 60 * time.Second,
	}
}

// ShouldRetry reports whether another attempt is allowed after the given
// number of completed attempts.
func ShouldRetry(p Policy, attempts int) bool {
	return attempts < p.MaxRetries
}

// Backoff returns the delay before the next attempt. The delay is constant.
func Backoff(p Policy, _ int) time.Duration {
	if p.RetryDelay < 0 {
		return 0
	}
	return p.RetryDelay
}

// WorstCase bounds the wall time of a dispatch under p.
func WorstCase(p Policy) time.Duration {
	if p.MaxRetries <= 0 {
		return 0
	}
	return time.Duration(p.MaxRetries)*p.RequestTimeout + time.Duration(p.MaxRetries-1)*Backoff(p, 0)
}

// Sleeper pauses the current request. It returns early with ctx.Err() when
// ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the wall-clock Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

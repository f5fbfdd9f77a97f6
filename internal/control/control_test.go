package control

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxRetries)
	assert.Equal(t, time.Second, p.RetryDelay)
	assert.Equal(t, 60*time.Second, p.RequestTimeout)
}

func TestShouldRetry(t *testing.T) {
	p := Policy{MaxRetries: 3}
	assert.True(t, ShouldRetry(p, 1))
	assert.True(t, ShouldRetry(p, 2))
	assert.False(t, ShouldRetry(p, 3))
	assert.False(t, ShouldRetry(Policy{}, 0))
}

func TestBackoffIsConstant(t *testing.T) {
	p := Policy{RetryDelay: time.Second}
	for attempt := 1; attempt <= 5; attempt++ {
		assert.Equal(t, time.Second, Backoff(p, attempt))
	}
	assert.Equal(t, time.Duration(0), Backoff(Policy{RetryDelay: -time.Second}, 1))
}

func TestWorstCase(t *testing.T) {
	assert.Equal(t, 182*time.Second, WorstCase(DefaultPolicy()))
	assert.Equal(t, time.Duration(0), WorstCase(Policy{}))
}

func TestSleep_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)

	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

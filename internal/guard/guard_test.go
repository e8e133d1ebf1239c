package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAttemptReturnsValueWhenFast(t *testing.T) {
	v, ok := Attempt(context.Background(), 100*time.Millisecond, -1, func(context.Context) (int, error) {
		return 42, nil
	})

	assert.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestAttemptFallsBackOnTimeout(t *testing.T) {
	start := time.Now()
	v, ok := Attempt(context.Background(), 20*time.Millisecond, "fallback", func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "late", nil
	})

	assert.False(t, ok)
	assert.Equal(t, "fallback", v)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestAttemptFallsBackOnError(t *testing.T) {
	v, ok := Attempt(context.Background(), 100*time.Millisecond, "fallback", func(context.Context) (string, error) {
		return "partial", errors.New("boom")
	})

	assert.False(t, ok)
	assert.Equal(t, "fallback", v)
}

func TestAttemptRespectsParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v, ok := Attempt(ctx, time.Second, 7, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, ctx.Err()
	})

	assert.False(t, ok)
	assert.Equal(t, 7, v)
}

package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ahoge-moe/Shiden/internal/config"
)

func testRetry() config.RetryConfig {
	return config.RetryConfig{
		Retries:    3,
		Factor:     2,
		MinTimeout: time.Second,
		MaxTimeout: 3 * time.Second,
	}
}

func TestBackoff_Exponential(t *testing.T) {
	b := NewBackoff(testRetry())

	var got []time.Duration
	for {
		d, ok := b.Next()
		if !ok {
			break
		}
		got = append(got, d)
	}
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, got)
	assert.Equal(t, 3, b.Attempt())
}

func TestBackoff_Randomize(t *testing.T) {
	cfg := testRetry()
	cfg.Randomize = true
	cfg.MaxTimeout = time.Minute
	b := NewBackoff(cfg)
	b.rand = func() float64 { return 0.5 }

	d, ok := b.Next()
	assert.True(t, ok)
	assert.Equal(t, 1500*time.Millisecond, d)

	d, _ = b.Next()
	assert.Equal(t, 3*time.Second, d)
}

func TestBackoff_Forever(t *testing.T) {
	cfg := testRetry()
	cfg.Forever = true
	cfg.MaxTimeout = time.Minute
	b := NewBackoff(cfg)

	for range 3 {
		_, ok := b.Next()
		assert.True(t, ok)
	}
	for range 5 {
		d, ok := b.Next()
		assert.True(t, ok)
		assert.Equal(t, 4*time.Second, d)
	}
}

func TestBackoff_ZeroRetries(t *testing.T) {
	cfg := testRetry()
	cfg.Retries = 0
	_, ok := NewBackoff(cfg).Next()
	assert.False(t, ok)

	cfg.Forever = true
	d, ok := NewBackoff(cfg).Next()
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
}

func TestBackoff_MaxRetryTime(t *testing.T) {
	cfg := testRetry()
	cfg.Forever = true
	cfg.MaxRetryTime = 10 * time.Second
	b := NewBackoff(cfg)

	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return clock }

	_, ok := b.Next()
	assert.True(t, ok)
	clock = clock.Add(9 * time.Second)
	_, ok = b.Next()
	assert.True(t, ok)
	clock = clock.Add(time.Second)
	_, ok = b.Next()
	assert.False(t, ok)
}

func TestBackoff_Reset(t *testing.T) {
	b := NewBackoff(testRetry())
	for range 3 {
		b.Next()
	}
	_, ok := b.Next()
	assert.False(t, ok)

	b.Reset()
	d, ok := b.Next()
	assert.True(t, ok)
	assert.Equal(t, time.Second, d)
}

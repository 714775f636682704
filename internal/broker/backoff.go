package broker

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/ahoge-moe/Shiden/internal/config"
)

// Backoff computes reconnection delays:
//
//	delay(n) = min(r * min_timeout * factor^n, max_timeout)
//
// where r is 1, or uniform in [1, 2) when randomize is set. After retries
// attempts Next reports false unless forever is set, in which case the last
// delay repeats. A non-zero max_retry_time also ends retrying once that much
// time has passed since the first failure.
type Backoff struct {
	cfg     config.RetryConfig
	attempt int
	first   time.Time
	now     func() time.Time
	rand    func() float64
}

// NewBackoff creates a Backoff for cfg.
func NewBackoff(cfg config.RetryConfig) *Backoff {
	return &Backoff{cfg: cfg, now: time.Now, rand: rand.Float64}
}

// Next returns the delay before the next attempt, or false once retries are exhausted.
func (b *Backoff) Next() (time.Duration, bool) {
	now := b.now()
	if b.attempt == 0 {
		b.first = now
	}
	if b.cfg.MaxRetryTime > 0 && now.Sub(b.first) >= b.cfg.MaxRetryTime {
		return 0, false
	}

	n := b.attempt
	if n >= b.cfg.Retries {
		if !b.cfg.Forever {
			return 0, false
		}
		n = max(b.cfg.Retries-1, 0)
	}
	b.attempt++
	return b.delay(n), true
}

// Reset starts a fresh sequence after a successful connection.
func (b *Backoff) Reset() {
	b.attempt = 0
	b.first = time.Time{}
}

// Attempt returns how many delays have been handed out since the last reset.
func (b *Backoff) Attempt() int {
	return b.attempt
}

func (b *Backoff) delay(n int) time.Duration {
	r := 1.0
	if b.cfg.Randomize {
		r += b.rand()
	}
	d := r * float64(b.cfg.MinTimeout) * math.Pow(b.cfg.Factor, float64(n))
	if d > float64(b.cfg.MaxTimeout) {
		return b.cfg.MaxTimeout
	}
	return time.Duration(math.Round(d))
}

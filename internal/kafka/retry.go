package kafka

import (
	"math"
	"math/rand"
	"time"
)

// RetryPolicy shapes the exponential backoff used when publishing and when
// reconnecting to the brokers.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
	Jitter         bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		BackoffFactor:  2.0,
		Jitter:         true,
	}
}

// Backoff returns the wait before retry number attempt, counted from zero.
// Jitter adds up to a quarter of the delay but never exceeds MaxBackoff.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	factor := p.BackoffFactor
	if factor < 1 {
		factor = 1
	}
	backoff := time.Duration(float64(p.InitialBackoff) * math.Pow(factor, float64(attempt)))

	if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
		backoff = p.MaxBackoff
	}

	if p.Jitter && backoff > 0 {
		if maxJitter := backoff / 4; maxJitter > 0 {
			backoff += time.Duration(rand.Int63n(int64(maxJitter)))
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}
	}

	return backoff
}

package session

import (
	"math"
	"math/rand"
	"time"
)

// RetryConfig is the prompt retransmission policy. The curve is exponential
// from InitialDelay by Multiplier, capped at MaxDelay; after MaxAttempts
// retransmissions the controller is expired for the round, which bounds
// worst-case round duration under persistent link loss.
type RetryConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	MaxAttempts  int
	Jitter       bool
}

// Delay returns the retry delay for attempt N (1-based).
func (c RetryConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	if c.InitialDelay <= 0 {
		return 0
	}
	if attempt <= 1 {
		return c.InitialDelay
	}
	mult := c.Multiplier
	if mult < 1.0 {
		mult = 1.0
	}
	delay := float64(c.InitialDelay) * math.Pow(mult, float64(attempt-1))
	if c.MaxDelay > 0 && delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter {
		f := 0.5
		if rng != nil {
			f = 0.5 + rng.Float64()
		}
		delay = delay * f
	}
	return time.Duration(delay)
}

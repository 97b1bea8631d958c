package session

import "time"

// Config defines round-lifecycle and retry policy defaults. The backoff
// curve and attempt budget are policy, not protocol, and are expected to be
// tuned per deployment.
type Config struct {
	TickInterval time.Duration
	Retry        RetryConfig
}

func DefaultConfig() Config {
	return Config{
		TickInterval: 250 * time.Millisecond,
		Retry: RetryConfig{
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   2.0,
			MaxDelay:     4 * time.Second,
			MaxAttempts:  5,
			Jitter:       false,
		},
	}
}

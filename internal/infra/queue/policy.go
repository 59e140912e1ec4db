package queue

import "time"

const maxRetryDelay = time.Hour

// RetryPolicy bounds how often and how quickly a failing job is retried.
type RetryPolicy struct {
	// MaxAttempts counts every execution, the first one included.
	MaxAttempts int
	Delay       time.Duration
	// Backoff doubles Delay after each failed attempt.
	Backoff bool
}

// DefaultRetryPolicy is 3 attempts, 1s then 2s apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, Delay: time.Second, Backoff: true}
}

// NextDelay returns the wait after the given 1-based attempt failed.
func (p RetryPolicy) NextDelay(attempt int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	if !p.Backoff || attempt <= 1 {
		return p.Delay
	}

	d := p.Delay
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return d
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	def := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = def.MaxAttempts
	}
	if p.Delay < 0 {
		p.Delay = 0
	}
	return p
}

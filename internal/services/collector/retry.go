package collector

import "time"

// RetryPolicy bounds per-ticker retries of transient failures.
type RetryPolicy struct {
	MaxAttempts int
	BackoffMin  time.Duration
	BackoffMax  time.Duration
}

package dispatcher

import "time"

// Backoff returns the delay before the next retry after the given failed
// attempt number: 2^n minutes (attempt 1 → 2m, 2 → 4m, 3 → 8m). Growth is
// unbounded; MaxAttempts caps how far it can go.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return time.Duration(1<<uint(attempt)) * time.Minute
}

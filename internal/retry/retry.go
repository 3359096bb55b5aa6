// ABOUTME: Exponential backoff policy shared by the provider adapters.
// ABOUTME: Delay doubles per attempt from a configured base, capped at the request timeout.

package retry

import "time"

// Delay returns the backoff before retry attempt n (0-based), doubling from
// base and never exceeding ceiling. The ceiling is the adapter's per-attempt
// timeout: waiting longer than one attempt takes buys nothing.
func Delay(attempt int, base, ceiling time.Duration) time.Duration {
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if ceiling <= 0 || ceiling < base {
		ceiling = base
	}

	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling {
			return ceiling
		}
	}
	return delay
}

package stream

import "time"

// Backoff computes reconnect delays: base doubled per attempt, capped at Max.
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns the wait before retry number attempt (1-based).
func (b Backoff) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	d := b.Base
	for i := 0; i < attempt; i++ {
		d *= 2
		// Overflow or past the cap: clamp.
		if d <= 0 || d >= b.Max {
			return b.Max
		}
	}
	return d
}

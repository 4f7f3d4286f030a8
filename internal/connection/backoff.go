package connection

import (
	"math/rand"
	"time"
)

// Backoff computes reconnect delays:
//
//	delay = min(Base * 2^attempt + random[0, Jitter], Max)
//
// Jitter is clamped to Base so delays never decrease as attempt grows.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter time.Duration

	rng *rand.Rand
}

// NewBackoff returns a Backoff. A nil rng uses a time-seeded source.
func NewBackoff(base, max, jitter time.Duration, rng *rand.Rand) *Backoff {
	if base <= 0 {
		base = time.Second
	}
	if max < base {
		max = base
	}
	if jitter < 0 {
		jitter = 0
	}
	if jitter > base {
		jitter = base
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Backoff{Base: base, Max: max, Jitter: jitter, rng: rng}
}

// Delay returns the wait before retry number attempt (0-based). Not safe for
// concurrent use; the manager calls it under its lock.
func (b *Backoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	// Base << attempt saturates at Max without being computed past it.
	delay := b.Max
	if attempt < 63 && b.Base <= b.Max>>attempt {
		delay = b.Base << attempt
	}

	if b.Jitter > 0 {
		j := time.Duration(b.rng.Int63n(int64(b.Jitter) + 1))
		if j > b.Max-delay {
			j = b.Max - delay
		}
		delay += j
	}
	return delay
}

package dutycycle

import "time"

// Clock is a monotonic millisecond counter that wraps at 2^32.
type Clock interface {
	NowMs() uint32
}

// Rand is the random source used for jitter and interval selection.
// *math/rand/v2.Rand satisfies it.
type Rand interface {
	IntN(n int) int
}

// SystemClock counts milliseconds since it was created.
type SystemClock struct {
	start time.Time
}

func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

func (c *SystemClock) NowMs() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// Reached reports whether now is at or past deadline on a wrapping clock.
func Reached(now, deadline uint32) bool {
	return int32(now-deadline) >= 0
}

// between draws uniformly from [lo, hi]. Swapped bounds are tolerated and
// equal bounds return lo without consuming randomness.
func between(rng Rand, lo, hi uint32) uint32 {
	if lo > hi {
		lo, hi = hi, lo
	}
	if lo == hi {
		return lo
	}
	return lo + uint32(rng.IntN(int(hi-lo)+1))
}

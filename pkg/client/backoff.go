package client

import (
	"math/rand"
	"time"
)

// RetryDelay yields the pause before the next WaitReady attempt.
type RetryDelay interface {
	Delay(attempt int) time.Duration
}

// ReadyBackoff spaces out health checks while the daemon opens its store and
// seeds the built-in catalog. Each attempt multiplies the previous pause by
// Multiplier up to Ceiling, then Spread shifts it by up to that fraction in
// either direction so several CLI invocations do not poll in lockstep.
type ReadyBackoff struct {
	Initial    time.Duration
	Ceiling    time.Duration
	Multiplier float64
	Spread     float64 // 0.0 to 1.0
}

// DefaultReadyBackoff waits 100ms, then 200ms, 400ms and so on up to 2s. A
// freshly started daemon is usually ready within the first few attempts, so
// the ceiling stays low.
func DefaultReadyBackoff() *ReadyBackoff {
	return &ReadyBackoff{
		Initial:    100 * time.Millisecond,
		Ceiling:    2 * time.Second,
		Multiplier: 2.0,
		Spread:     0.2,
	}
}

// Delay returns the pause after attempt (0-based) failed.
func (b *ReadyBackoff) Delay(attempt int) time.Duration {
	if attempt < 0 {
		return b.Initial
	}

	pause := float64(b.Initial)
	for i := 0; i < attempt && pause < float64(b.Ceiling); i++ {
		pause *= b.Multiplier
	}
	if pause > float64(b.Ceiling) {
		pause = float64(b.Ceiling)
	}

	if b.Spread > 0 {
		pause += pause * (rand.Float64()*2 - 1) * b.Spread
	}
	if pause < 0 {
		return 0
	}
	return time.Duration(pause)
}

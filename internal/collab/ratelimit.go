package collab

import (
	"sync"
	"time"
)

// tokenBucket is a plain per-connection inbound rate limiter for UPDATE
// frames. One bucket per client connection; refills at ratePerSecond
// tokens/sec up to its capacity.
type tokenBucket struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

func newTokenBucket(ratePerSecond int) *tokenBucket {
	capacity := float64(ratePerSecond)
	if capacity <= 0 {
		capacity = 1
	}
	return &tokenBucket{
		tokens:     capacity,
		capacity:   capacity,
		refillRate: capacity,
		last:       time.Now(),
	}
}

// Allow reports whether an inbound UPDATE frame may proceed, consuming a
// token if so.
func (b *tokenBucket) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(b.last).Seconds()
	b.last = now
	b.tokens += elapsed * b.refillRate
	if b.tokens > b.capacity {
		b.tokens = b.capacity
	}
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

package keepa

import (
	"sync"
	"time"
)

// tokenBucket is the local leaky-bucket accounting for the remote token
// economy. Two values stay distinct: the local capacity (how fast this
// process may issue calls) and the refill rate dictated by the remote.
// Every response carries the remote's authoritative tokensLeft and
// refillRate; Sync overwrites the local accounting from them so local drift
// never accumulates.
type tokenBucket struct {
	mu sync.Mutex

	capacity        int     // local ceiling
	tokensLeft      float64 // current balance
	refillPerMinute float64 // remote-dictated refill rate

	lastRefill time.Time
	nowFunc    func() time.Time
}

func newTokenBucket(capacity int, refillPerMinute float64) *tokenBucket {
	if capacity <= 0 {
		capacity = 200
	}
	if refillPerMinute <= 0 {
		refillPerMinute = 21
	}
	return &tokenBucket{
		capacity:        capacity,
		tokensLeft:      float64(capacity),
		refillPerMinute: refillPerMinute,
		nowFunc:         time.Now,
	}
}

// refillLocked credits tokens for elapsed time. Caller holds mu.
func (b *tokenBucket) refillLocked() {
	now := b.nowFunc()
	if !b.lastRefill.IsZero() {
		elapsed := now.Sub(b.lastRefill).Minutes()
		b.tokensLeft = min(float64(b.capacity), b.tokensLeft+elapsed*b.refillPerMinute)
	}
	b.lastRefill = now
}

// WaitTime returns how long the caller must sleep before cost tokens are
// available, derived from the refill rate. Zero when the balance suffices.
func (b *tokenBucket) WaitTime(cost int) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refillLocked()
	deficit := float64(cost) - b.tokensLeft
	if deficit <= 0 {
		return 0
	}
	if b.refillPerMinute <= 0 {
		return time.Minute
	}
	return time.Duration(deficit / b.refillPerMinute * float64(time.Minute))
}

// Consume debits the cost of an issued call.
func (b *tokenBucket) Consume(cost int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	b.tokensLeft = max(0, b.tokensLeft-float64(cost))
}

// Sync overwrites local accounting from a remote response.
func (b *tokenBucket) Sync(tokensLeft int, refillPerMinute float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tokensLeft = min(float64(b.capacity), float64(tokensLeft))
	if refillPerMinute > 0 {
		b.refillPerMinute = refillPerMinute
	}
	b.lastRefill = b.nowFunc()
}

// Status reports the current balance and refill rate.
func (b *tokenBucket) Status() (tokensLeft int, refillPerMinute float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refillLocked()
	return int(b.tokensLeft), b.refillPerMinute
}

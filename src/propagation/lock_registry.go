package propagation

import (
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash"
	"github.com/cotinet/cotinode/src/common"
)

// DefaultStripes is the number of stripes of a registry created with
// NewLockRegistry(0).
const DefaultStripes = 256

// LockRegistry serializes work per transaction hash over a fixed set of
// mutexes. A hash always maps to the same stripe, so two callers holding the
// same hash exclude each other. Distinct hashes only contend when they share
// a stripe.
type LockRegistry struct {
	stripes []sync.Mutex
	held    int64
}

// NewLockRegistry creates a registry with n stripes, or DefaultStripes if n is
// not positive.
func NewLockRegistry(n int) *LockRegistry {
	if n <= 0 {
		n = DefaultStripes
	}
	return &LockRegistry{
		stripes: make([]sync.Mutex, n),
	}
}

func (r *LockRegistry) stripe(hash common.Hash) int {
	return int(xxhash.Sum64(hash[:]) % uint64(len(r.stripes)))
}

// Acquire blocks until the caller holds the lock for hash. Every Acquire must
// be paired with exactly one Release of the same hash.
func (r *LockRegistry) Acquire(hash common.Hash) {
	atomic.AddInt64(&r.held, 1)
	r.stripes[r.stripe(hash)].Lock()
}

// Release unlocks hash.
func (r *LockRegistry) Release(hash common.Hash) {
	r.stripes[r.stripe(hash)].Unlock()
	atomic.AddInt64(&r.held, -1)
}

// WithLock runs fn while holding the lock for hash. The lock is released even
// if fn panics.
func (r *LockRegistry) WithLock(hash common.Hash, fn func()) {
	r.Acquire(hash)
	defer r.Release(hash)
	fn()
}

// Len returns the number of acquisitions currently held or awaited.
func (r *LockRegistry) Len() int {
	return int(atomic.LoadInt64(&r.held))
}

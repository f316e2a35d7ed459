package memory

import (
	"context"
	"sync"

	"tripnest/internal/apperr"
	domainbooking "tripnest/internal/domain/booking"
	domainlistings "tripnest/internal/domain/listings"
)

// LockRegistry hands out try-locks keyed by aggregate id. Acquisition never
// blocks: a held key fails fast with a transient error, matching the NOWAIT
// row locks of the relational store.
type LockRegistry struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{held: make(map[string]struct{})}
}

func (r *LockRegistry) tryAcquire(key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.held[key]; taken {
		return apperr.Transient("lock held: "+key, nil)
	}
	r.held[key] = struct{}{}
	return nil
}

func (r *LockRegistry) release(keys []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		delete(r.held, key)
	}
}

// unitLocks is the per-unit lock handle; acquired keys are released when the
// owning unit commits or rolls back.
type unitLocks struct {
	registry *LockRegistry
	mu       sync.Mutex
	keys     []string
}

func newUnitLocks(registry *LockRegistry) *unitLocks {
	return &unitLocks{registry: registry}
}

func (l *unitLocks) acquire(key string) error {
	l.mu.Lock()
	for _, existing := range l.keys {
		if existing == key {
			// Re-acquiring inside the same unit is a no-op.
			l.mu.Unlock()
			return nil
		}
	}
	l.mu.Unlock()
	if err := l.registry.tryAcquire(key); err != nil {
		return err
	}
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return nil
}

func (l *unitLocks) releaseAll() {
	l.mu.Lock()
	keys := l.keys
	l.keys = nil
	l.mu.Unlock()
	l.registry.release(keys)
}

func (l *unitLocks) LockListing(_ context.Context, id domainlistings.ListingID) error {
	return l.acquire("listing:" + string(id))
}

func (l *unitLocks) LockBooking(_ context.Context, id domainbooking.BookingID) error {
	return l.acquire("booking:" + string(id))
}

func (l *unitLocks) LockPaymentIntent(_ context.Context, intentID string) error {
	return l.acquire("intent:" + intentID)
}

package slides

import (
	"context"
	"fmt"
	"sync"
)

// LockRegistry serializes pipeline runs against the same output directory
// while letting distinct directories run fully in parallel. Waiters queue
// FIFO by chaining on the previous holder's release channel. The registry
// is an explicit value owned by whoever runs pipelines, not a package
// global.
type LockRegistry struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// NewLockRegistry creates an empty registry.
func NewLockRegistry() *LockRegistry {
	return &LockRegistry{tails: make(map[string]chan struct{})}
}

// Acquire blocks until the key's current holder (and every earlier
// waiter) has released, or ctx ends. The returned release function is
// idempotent and must eventually be called.
func (r *LockRegistry) Acquire(ctx context.Context, key string) (func(), error) {
	ticket := make(chan struct{})

	r.mu.Lock()
	prev := r.tails[key]
	r.tails[key] = ticket
	r.mu.Unlock()

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			// Forward the predecessor's release to our successor so the
			// chain survives an abandoned waiter.
			go func() {
				<-prev
				close(ticket)
			}()
			return nil, fmt.Errorf("slides: waiting for output directory lock: %w", ctx.Err())
		}
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			if r.tails[key] == ticket {
				delete(r.tails, key)
			}
			r.mu.Unlock()
			close(ticket)
		})
	}
	return release, nil
}

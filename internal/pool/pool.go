// Package pool provides bounded reusable-object pools.
//
// sync.Pool is deliberately not used here: it has no capacity bound and
// no hit/miss observability, and both are part of the contract.
package pool

import (
	"sync"
	"sync/atomic"

	"localnotify/internal/metrics"
)

// Pool is a fixed-capacity LIFO free list. acquire/release never block;
// a release over capacity drops the object for the GC to collect.
//
// Hit/miss counts are tracked with atomics and folded into the
// prometheus collectors by Fold, so metrics reads never take the pool
// lock.
type Pool[T any] struct {
	mu    sync.Mutex
	items []*T

	alloc func() *T
	reset func(*T)

	hits   atomic.Uint64
	misses atomic.Uint64

	// last folded values, only touched by Fold.
	foldedHits   uint64
	foldedMisses uint64

	name string
	mc   *metrics.Collector
}

// New builds a pool of at most capacity items. alloc produces a fresh
// object on a miss; reset clears an object before it re-enters the pool.
func New[T any](name string, capacity int, alloc func() *T, reset func(*T)) *Pool[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Pool[T]{
		items: make([]*T, 0, capacity),
		alloc: alloc,
		reset: reset,
		name:  name,
		mc:    metrics.Default(),
	}
}

// Acquire pops the most recently released object, or allocates fresh.
func (p *Pool[T]) Acquire() *T {
	p.mu.Lock()
	n := len(p.items)
	if n > 0 {
		obj := p.items[n-1]
		p.items[n-1] = nil
		p.items = p.items[:n-1]
		p.mu.Unlock()
		p.hits.Add(1)
		return obj
	}
	p.mu.Unlock()
	p.misses.Add(1)
	return p.alloc()
}

// Release resets obj and returns it to the pool if there is room.
func (p *Pool[T]) Release(obj *T) {
	if obj == nil {
		return
	}
	p.reset(obj)
	p.mu.Lock()
	if len(p.items) < cap(p.items) {
		p.items = append(p.items, obj)
	}
	p.mu.Unlock()
}

// Fold pushes the counter deltas since the last fold into prometheus.
// Called periodically from the dispatcher tick; must not be called
// concurrently with itself.
func (p *Pool[T]) Fold() {
	h := p.hits.Load()
	m := p.misses.Load()
	if d := h - p.foldedHits; d > 0 {
		p.mc.PoolHits.WithLabelValues(p.name).Add(float64(d))
	}
	if d := m - p.foldedMisses; d > 0 {
		p.mc.PoolMisses.WithLabelValues(p.name).Add(float64(d))
	}
	p.foldedHits = h
	p.foldedMisses = m
}

// Stats reports lifetime hit/miss counts.
func (p *Pool[T]) Stats() (hits, misses uint64) {
	return p.hits.Load(), p.misses.Load()
}

// Len reports how many objects are currently pooled.
func (p *Pool[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Package generic holds small type-parameterized helpers shared across the
// client.
package generic

import "sync"

// Pool is a typed wrapper around sync.Pool.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
}

// NewPool creates a pool producing values with generate.
func NewPool[T any](generate func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() any {
				return generate()
			},
		},
	}
}

// NewPoolWithReset creates a pool that applies reset to every value handed
// out by Get, so callers always start from a clean value.
func NewPoolWithReset[T any](generate func() T, reset func(T)) *Pool[T] {
	p := NewPool(generate)
	p.reset = reset
	return p
}

// NewHotPool pre-fills the pool with hotSize values. The reset hook behaves
// as in NewPoolWithReset and may be nil.
func NewHotPool[T any](generate func() T, reset func(T), hotSize int) *Pool[T] {
	p := NewPoolWithReset(generate, reset)
	for i := 0; i < hotSize; i++ {
		p.pool.Put(generate())
	}
	return p
}

// Get takes a value from the pool, creating one if none is cached.
func (p *Pool[T]) Get() T {
	value := p.pool.Get().(T)
	if p.reset != nil {
		p.reset(value)
	}
	return value
}

// Put returns a value to the pool for reuse.
func (p *Pool[T]) Put(value T) {
	p.pool.Put(value)
}

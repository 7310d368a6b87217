// Package pool provides a typed sync.Pool wrapper for reusable objects.
//
// The agent targets constrained devices, so per-cycle allocations such as
// report encode buffers are recycled through a Pool instead of being
// re-allocated every reporting period.
package pool

import (
	"bytes"
	"sync"
)

// Resetter is implemented by types that can be cleared for reuse.
type Resetter interface {
	Reset()
}

// Pool stores objects of type T and resets them before handing them back
// to the pool.
type Pool[T Resetter] struct {
	pool sync.Pool
}

// New creates a Pool[T] backed by newFunc, which is called when the pool
// is empty.
func New[T Resetter](newFunc func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{
			New: func() interface{} {
				return newFunc()
			},
		},
	}
}

// Get returns an object from the pool or a freshly created one.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put resets obj and returns it to the pool.
func (p *Pool[T]) Put(obj T) {
	obj.Reset()
	p.pool.Put(obj)
}

// Buffer is a bytes.Buffer wrapper satisfying Resetter, used for report
// encoding.
type Buffer struct {
	bytes.Buffer
}

// NewBufferPool returns a Pool of encode buffers.
func NewBufferPool() *Pool[*Buffer] {
	return New(func() *Buffer {
		return &Buffer{}
	})
}

package pool

import (
	"reflect"
	"sync"
)

type registryKey struct {
	typ   reflect.Type
	batch int
}

// Registry owns one pool per (element type, batch size) pair.
// Lookups are synchronized; the pools themselves are not.
type Registry struct {
	pools map[registryKey]any
	mu    sync.Mutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{pools: make(map[registryKey]any)}
}

// Rebind returns the pool for element type U with the batch size from opts,
// creating it on first use. Options other than the batch size only apply
// when the pool is created.
func Rebind[U any](r *Registry, opts ...Option) *Pool[U] {
	o := buildOptions(opts)
	key := registryKey{typ: reflect.TypeFor[U](), batch: o.batch}

	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[key]; ok {
		return p.(*Pool[U])
	}
	p := New[U](opts...)
	r.pools[key] = p
	return p
}

// Len returns the number of distinct pools.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

type closer interface {
	Close()
}

// Close releases every pool in the registry.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, p := range r.pools {
		if c, ok := p.(closer); ok {
			c.Close()
		}
		delete(r.pools, k)
	}
}

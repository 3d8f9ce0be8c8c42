package pool

import (
	"fmt"
	"reflect"

	"go.uber.org/zap"

	"github.com/x64dbg/bridge/errors"
)

// DefaultBatchSize is the number of objects per slab.
const DefaultBatchSize = 1024

// Handle refers to one slot of a pool. Handle 0 is reserved and always invalid.
type Handle uint32

// Allocator is the allocate/deallocate contract shared by Pool and GoAllocator.
type Allocator[T any] interface {
	// Allocate returns a handle to an object-sized slot. The slot holds the
	// zero value of T.
	Allocate() (Handle, error)

	// Deallocate releases the slot. The handle is invalid afterwards.
	Deallocate(Handle)

	// Get returns the live slot for h.
	Get(Handle) *T

	// Len returns the number of live slots.
	Len() int
}

type slotState uint8

const (
	slotUnused slotState = iota
	slotLive
	slotFree
)

type slot[T any] struct {
	value T
	next  Handle
	state slotState
}

// Pool is a slab allocator for objects of type T.
type Pool[T any] struct {
	slabs    [][]slot[T]
	typeName string
	batch    int
	maxSlabs int
	bump     int
	live     int
	free     Handle
}

var _ Allocator[int] = (*Pool[int])(nil)

// Option configures a Pool.
type Option func(*options)

type options struct {
	batch    int
	maxSlabs int
}

// WithBatchSize sets the number of objects per slab.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batch = n
		}
	}
}

// WithMaxSlabs caps the number of slabs; 0 means unlimited.
// Growth past the cap is reported as an allocation failure.
func WithMaxSlabs(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxSlabs = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{batch: DefaultBatchSize}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New creates an empty pool. No slab is allocated until the first Allocate.
func New[T any](opts ...Option) *Pool[T] {
	o := buildOptions(opts)
	return &Pool[T]{
		typeName: reflect.TypeFor[T]().String(),
		batch:    o.batch,
		maxSlabs: o.maxSlabs,
	}
}

// Allocate returns a free slot in O(1), growing a new slab when the current
// ones are exhausted.
func (p *Pool[T]) Allocate() (Handle, error) {
	if p.free != 0 {
		h := p.free
		s := p.slot(h)
		p.free = s.next
		s.next = 0
		s.state = slotLive
		p.live++
		return h, nil
	}

	if len(p.slabs) == 0 || p.bump == p.batch {
		if err := p.grow(); err != nil {
			return 0, err
		}
	}

	idx := (len(p.slabs)-1)*p.batch + p.bump
	p.bump++
	h := Handle(idx + 1)
	p.slot(h).state = slotLive
	p.live++
	return h, nil
}

func (p *Pool[T]) grow() error {
	if p.maxSlabs > 0 && len(p.slabs) >= p.maxSlabs {
		return errors.PoolExhausted(p.typeName, p.maxSlabs, p.batch)
	}
	if uint64(len(p.slabs)+1)*uint64(p.batch) > uint64(^uint32(0)) {
		return errors.PoolExhausted(p.typeName, len(p.slabs), p.batch)
	}
	p.slabs = append(p.slabs, make([]slot[T], p.batch))
	p.bump = 0
	Logger().Debug("pool grew",
		zap.String("type", p.typeName),
		zap.Int("slabs", len(p.slabs)),
		zap.Int("batch", p.batch))
	return nil
}

// AllocateN is the generic-allocator entry point. The pool serves exactly
// one element per call with no placement hint; anything else is a caller bug
// and panics with a contract violation.
func (p *Pool[T]) AllocateN(n int, hint Handle) (Handle, error) {
	if n != 1 || hint != 0 {
		violation(errors.New(errors.PhaseAlloc, errors.KindContractViolation).
			Call("AllocateN").
			Type(p.typeName).
			Detail("pool serves one element per call without hint, got n=%d hint=%d", n, hint))
	}
	return p.Allocate()
}

// Deallocate pushes the slot onto the free list. The slot is reset to the
// zero value so it does not retain references.
func (p *Pool[T]) Deallocate(h Handle) {
	s := p.liveSlot("Deallocate", h)
	var zero T
	s.value = zero
	s.state = slotFree
	s.next = p.free
	p.free = h
	p.live--
}

// Get returns a pointer to the live slot. The pointer stays valid until the
// slot is deallocated or the pool is closed.
func (p *Pool[T]) Get(h Handle) *T {
	return &p.liveSlot("Get", h).value
}

// Valid reports whether h refers to a live slot.
func (p *Pool[T]) Valid(h Handle) bool {
	if h == 0 || int(h-1) >= len(p.slabs)*p.batch {
		return false
	}
	return p.slot(h).state == slotLive
}

func (p *Pool[T]) slot(h Handle) *slot[T] {
	idx := int(h - 1)
	return &p.slabs[idx/p.batch][idx%p.batch]
}

func (p *Pool[T]) liveSlot(call string, h Handle) *slot[T] {
	if h == 0 || int(h-1) >= len(p.slabs)*p.batch {
		violation(errors.New(errors.PhaseAlloc, errors.KindContractViolation).
			Call(call).
			Type(p.typeName).
			Value(h).
			Detail("handle %d does not belong to this pool", h))
	}
	s := p.slot(h)
	if s.state != slotLive {
		violation(errors.New(errors.PhaseAlloc, errors.KindContractViolation).
			Call(call).
			Type(p.typeName).
			Value(h).
			Detail("handle %d is not live (double free or use after free)", h))
	}
	return s
}

// Len returns the number of live slots.
func (p *Pool[T]) Len() int {
	return p.live
}

// Cap returns the number of slots across all slabs.
func (p *Pool[T]) Cap() int {
	return len(p.slabs) * p.batch
}

// Slabs returns the number of slabs allocated so far.
func (p *Pool[T]) Slabs() int {
	return len(p.slabs)
}

// BatchSize returns the number of objects per slab.
func (p *Pool[T]) BatchSize() int {
	return p.batch
}

// Each calls fn for every live slot until fn returns false.
func (p *Pool[T]) Each(fn func(Handle, *T) bool) {
	for si, slab := range p.slabs {
		for i := range slab {
			if slab[i].state != slotLive {
				continue
			}
			if !fn(Handle(si*p.batch+i+1), &slab[i].value) {
				return
			}
		}
	}
}

// Close releases every slab. All handles become invalid.
func (p *Pool[T]) Close() {
	p.slabs = nil
	p.bump = 0
	p.live = 0
	p.free = 0
}

func (p *Pool[T]) String() string {
	return fmt.Sprintf("pool[%s] live=%d cap=%d slabs=%d", p.typeName, p.live, p.Cap(), len(p.slabs))
}

package pool

import (
	"reflect"

	"github.com/x64dbg/bridge/errors"
)

// GoAllocator satisfies Allocator with one Go heap object per slot. It has no
// slabs and no reuse guarantee; it exists so callers can swap a Pool for the
// system allocator without changing code.
type GoAllocator[T any] struct {
	objects map[Handle]*T
	next    Handle
}

var _ Allocator[int] = (*GoAllocator[int])(nil)

// NewGoAllocator creates an empty heap-backed allocator.
func NewGoAllocator[T any]() *GoAllocator[T] {
	return &GoAllocator[T]{objects: make(map[Handle]*T)}
}

func (a *GoAllocator[T]) Allocate() (Handle, error) {
	a.next++
	if a.next == 0 {
		return 0, errors.PoolExhausted(reflect.TypeFor[T]().String(), 0, 0)
	}
	a.objects[a.next] = new(T)
	return a.next, nil
}

func (a *GoAllocator[T]) Deallocate(h Handle) {
	if _, ok := a.objects[h]; !ok {
		a.violation("Deallocate", h)
	}
	delete(a.objects, h)
}

func (a *GoAllocator[T]) Get(h Handle) *T {
	v, ok := a.objects[h]
	if !ok {
		a.violation("Get", h)
	}
	return v
}

func (a *GoAllocator[T]) Len() int {
	return len(a.objects)
}

func (a *GoAllocator[T]) violation(call string, h Handle) {
	violation(errors.New(errors.PhaseAlloc, errors.KindContractViolation).
		Call(call).
		Type(reflect.TypeFor[T]().String()).
		Value(h).
		Detail("handle %d is not live", h))
}

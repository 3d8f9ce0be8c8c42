package memory

import (
	"math/bits"

	"github.com/x64dbg/bridge"
	"github.com/x64dbg/bridge/errors"
	"github.com/x64dbg/bridge/internal/abi"
)

const (
	// minClassShift is log2 of the smallest block; it is also the default
	// alignment of every block.
	minClassShift = 4
	minBlock      = 1 << minClassShift
	// heapBase keeps offset 0 (null) and the first block-sized region unused.
	heapBase = minBlock
)

// Heap is a size-class allocator over a Growable memory. Requests are rounded
// up to a power of two of at least 16 bytes; freed blocks go to the free list
// of their class and are reused before fresh memory is carved from the top.
// Every block handed out is zeroed. Not thread-safe.
type Heap struct {
	mem   Growable
	free  map[uint8][]uint32
	live  map[uint32]uint8
	zero  []byte
	top   uint32
	inUse uint64
}

// NewHeap creates an allocator owning mem from offset 16 upwards.
func NewHeap(mem Growable) *Heap {
	return &Heap{
		mem:  mem,
		free: make(map[uint8][]uint32),
		live: make(map[uint32]uint8),
		top:  heapBase,
	}
}

// NewHeapAt creates an allocator owning mem from base upwards, leaving the
// region below base to its current owner.
func NewHeapAt(mem Growable, base uint32) *Heap {
	h := NewHeap(mem)
	if base > heapBase {
		h.top = abi.AlignTo(base, minBlock)
	}
	return h
}

var _ bridge.Allocator = (*Heap)(nil)

func classOf(size uint32) uint8 {
	if size <= minBlock {
		return minClassShift
	}
	return uint8(bits.Len32(size - 1))
}

// Alloc returns a zeroed block of at least size bytes aligned to align.
// A zero size still yields a distinct, non-null block.
func (h *Heap) Alloc(size, align uint32) (uint32, error) {
	if size > abi.MaxAlloc {
		return 0, errors.AllocationFailed(errors.PhaseAlloc, size, align)
	}
	if align == 0 {
		align = 1
	}
	if !abi.IsPowerOfTwo(align) {
		return 0, errors.New(errors.PhaseAlloc, errors.KindInvalidInput).
			Call("Alloc").
			Detail("alignment %d is not a power of two", align).
			Build()
	}

	class := classOf(size)
	blockSize := uint32(1) << class

	ptr, ok := h.reuse(class, align)
	if !ok {
		var err error
		ptr, err = h.carve(blockSize, align)
		if err != nil {
			return 0, err
		}
	}

	if err := h.clear(ptr, blockSize); err != nil {
		return 0, err
	}

	h.live[ptr] = class
	h.inUse += uint64(blockSize)
	return ptr, nil
}

func (h *Heap) reuse(class uint8, align uint32) (uint32, bool) {
	list := h.free[class]
	for i := len(list) - 1; i >= 0; i-- {
		ptr := list[i]
		if ptr%align != 0 {
			continue
		}
		list[i] = list[len(list)-1]
		h.free[class] = list[:len(list)-1]
		return ptr, true
	}
	return 0, false
}

func (h *Heap) carve(blockSize, align uint32) (uint32, error) {
	if align < minBlock {
		align = minBlock
	}
	ptr := abi.AlignTo(h.top, align)
	end, ok := abi.SafeAddU32(ptr, blockSize)
	if !ok || ptr < h.top {
		return 0, errors.AllocationFailed(errors.PhaseAlloc, blockSize, align)
	}

	if size := h.mem.Size(); end > size {
		need := (uint64(end) - uint64(size) + bridge.PageSize - 1) / bridge.PageSize
		if _, grown := h.mem.Grow(uint32(need)); !grown {
			return 0, errors.New(errors.PhaseAlloc, errors.KindAllocation).
				Call("Grow").
				Detail("cannot grow memory by %d pages for %d bytes", need, blockSize).
				Build()
		}
	}

	h.top = end
	return ptr, nil
}

func (h *Heap) clear(ptr, n uint32) error {
	if h.zero == nil {
		h.zero = make([]byte, bridge.PageSize)
	}
	for n > 0 {
		chunk := n
		if chunk > uint32(len(h.zero)) {
			chunk = uint32(len(h.zero))
		}
		if err := h.mem.Write(ptr, h.zero[:chunk]); err != nil {
			return err
		}
		ptr += chunk
		n -= chunk
	}
	return nil
}

// Free returns a block to its size class. Freeing 0 is a no-op; freeing an
// offset that is not a live block is a contract violation. size and align
// are accepted for interface compatibility and ignored.
func (h *Heap) Free(ptr, size, align uint32) {
	if ptr == 0 {
		return
	}
	class, ok := h.live[ptr]
	if !ok {
		errors.New(errors.PhaseAlloc, errors.KindInvalidInput).
			Call("Free").
			Value(ptr).
			Detail("offset %#x is not a live block (double free or foreign pointer)", ptr).
			Contract()
	}
	delete(h.live, ptr)
	h.inUse -= uint64(1) << class
	h.free[class] = append(h.free[class], ptr)
}

// Owns reports whether ptr is a live block of this heap.
func (h *Heap) Owns(ptr uint32) bool {
	_, ok := h.live[ptr]
	return ok
}

// BlockSize returns the usable size of a live block, or 0.
func (h *Heap) BlockSize(ptr uint32) uint32 {
	class, ok := h.live[ptr]
	if !ok {
		return 0
	}
	return uint32(1) << class
}

// Live returns the number of outstanding blocks.
func (h *Heap) Live() int {
	return len(h.live)
}

// InUse returns the bytes held by outstanding blocks.
func (h *Heap) InUse() uint64 {
	return h.inUse
}

// Memory returns the underlying memory.
func (h *Heap) Memory() Growable {
	return h.mem
}

// ZeroesMemory reports that every block is cleared before it is returned.
func (h *Heap) ZeroesMemory() bool {
	return true
}

package wire

import (
	"go.uber.org/zap"

	"github.com/x64dbg/bridge"
	"github.com/x64dbg/bridge/errors"
)

// Zeroing is implemented by allocators that already hand out zeroed blocks,
// letting the boundary skip clearing them again.
type Zeroing interface {
	ZeroesMemory() bool
}

// Boundary is the designated alloc/free entry point for one linear memory.
type Boundary struct {
	mem    bridge.Memory
	alloc  bridge.Allocator
	logger *zap.Logger
	name   string
	zeroed bool
	blocks map[uint32]block
}

// block is the size and alignment a buffer was allocated with. Allocators
// such as a guest's cabi_free expect them back on release.
type block struct {
	size, align uint32
}

// BoundaryOption configures a Boundary.
type BoundaryOption func(*Boundary)

// WithName labels the boundary in diagnostics.
func WithName(name string) BoundaryOption {
	return func(b *Boundary) {
		b.name = name
	}
}

// WithLogger sets the boundary's logger. Defaults to the package logger.
func WithLogger(l *zap.Logger) BoundaryOption {
	return func(b *Boundary) {
		if l != nil {
			b.logger = l
		}
	}
}

// NewBoundary creates the entry point for buffers in mem allocated by alloc.
func NewBoundary(mem bridge.Memory, alloc bridge.Allocator, opts ...BoundaryOption) *Boundary {
	b := &Boundary{
		mem:    mem,
		alloc:  alloc,
		logger: Logger(),
		name:   "bridge",
		blocks: make(map[uint32]block),
	}
	if z, ok := alloc.(Zeroing); ok {
		b.zeroed = z.ZeroesMemory()
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Memory returns the memory buffers live in.
func (b *Boundary) Memory() bridge.Memory {
	return b.mem
}

// Name returns the diagnostic label.
func (b *Boundary) Name() string {
	return b.name
}

// Outstanding returns the number of buffers allocated and not yet freed
// through this boundary.
func (b *Boundary) Outstanding() int {
	return len(b.blocks)
}

// Alloc returns size zeroed bytes aligned to align. Ownership passes to the
// caller, who must release the buffer with Free on this same boundary.
func (b *Boundary) Alloc(size, align uint32) (uint32, error) {
	ptr, err := b.alloc.Alloc(size, align)
	if err != nil {
		b.logger.Warn("wire allocation failed",
			zap.String("boundary", b.name),
			zap.Uint32("size", size),
			zap.Error(err))
		if _, ok := err.(*errors.Error); ok {
			return 0, err
		}
		return 0, errors.New(errors.PhaseAlloc, errors.KindAllocation).
			Call("Alloc").
			Path(b.name).
			Cause(err).
			Detail("allocate %d bytes (align %d)", size, align).
			Build()
	}
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseAlloc, size, align)
	}
	if !b.zeroed && size > 0 {
		if err := b.mem.Write(ptr, make([]byte, size)); err != nil {
			b.alloc.Free(ptr, size, align)
			return 0, errors.Wrap(errors.PhaseAlloc, errors.KindOutOfBounds, err, "clear allocated block")
		}
	}
	b.blocks[ptr] = block{size: size, align: align}
	return ptr, nil
}

// Free releases a buffer. Buffers obtained from Alloc are released with the
// size and alignment they were allocated with. A buffer the other side
// allocated and handed over is released with size and alignment 0. Free(0) is
// a no-op.
func (b *Boundary) Free(ptr uint32) {
	if ptr == 0 {
		return
	}
	blk, ok := b.blocks[ptr]
	if !ok {
		b.logger.Debug("releasing foreign buffer",
			zap.String("boundary", b.name),
			zap.Uint32("ptr", ptr))
	}
	delete(b.blocks, ptr)
	b.alloc.Free(ptr, blk.size, blk.align)
}

// violation logs and raises a contract violation.
func (b *Boundary) violation(err *errors.Error) {
	err.Kind = errors.KindContractViolation
	if len(err.Path) == 0 {
		err.Path = []string{b.name}
	}
	b.logger.Error("wire contract violation",
		zap.String("boundary", b.name),
		zap.String("call", err.Call),
		zap.String("detail", err.Detail))
	panic(err)
}

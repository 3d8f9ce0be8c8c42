package plugin

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/x64dbg/bridge"
	"github.com/x64dbg/bridge/errors"
)

const (
	cabiRealloc = "cabi_realloc"
	cabiFree    = "cabi_free"
)

// guestAllocator allocates through the plugin's exported cabi_realloc.
type guestAllocator struct {
	mu      sync.Mutex
	ctx     context.Context
	realloc api.Function
	free    api.Function
	stack   []uint64
}

func newGuestAllocator(ctx context.Context, mod api.Module) *guestAllocator {
	realloc := mod.ExportedFunction(cabiRealloc)
	if realloc == nil {
		return nil
	}
	return &guestAllocator{
		ctx:     ctx,
		realloc: realloc,
		free:    mod.ExportedFunction(cabiFree),
		stack:   make([]uint64, 4),
	}
}

var _ bridge.Allocator = (*guestAllocator)(nil)

func (a *guestAllocator) Alloc(size, align uint32) (uint32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stack[0] = 0
	a.stack[1] = 0
	a.stack[2] = uint64(align)
	a.stack[3] = uint64(size)
	if err := a.realloc.CallWithStack(a.ctx, a.stack[:4]); err != nil {
		return 0, errors.New(errors.PhaseAlloc, errors.KindAllocation).
			Call(cabiRealloc).
			Cause(err).
			Detail("guest allocation of %d bytes failed", size).
			Build()
	}
	return uint32(a.stack[0]), nil
}

// Free hands size and align back to cabi_free. They are 0 for buffers the
// guest allocated itself and passed to the host.
func (a *guestAllocator) Free(ptr, size, align uint32) {
	if a.free == nil || ptr == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.stack[0] = uint64(ptr)
	a.stack[1] = uint64(size)
	a.stack[2] = uint64(align)
	if err := a.free.CallWithStack(a.ctx, a.stack[:3]); err != nil {
		Logger().Warn("guest free failed", zap.Uint32("ptr", ptr), zap.Error(err))
	}
}

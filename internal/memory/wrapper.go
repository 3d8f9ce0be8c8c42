package memory

import (
	"github.com/tetratelabs/wazero/api"
	"github.com/x64dbg/bridge"
)

// Growable is a linear memory the heap allocator can extend.
type Growable interface {
	bridge.Memory
	bridge.MemorySizer
	bridge.MemoryGrower
}

// Guest exposes a plugin's exported wazero memory as a Growable. Bounds
// failures carry the same message Linear produces so callers see one error
// shape regardless of which side owns the memory.
type Guest struct {
	mem api.Memory
}

// WrapMemory returns nil for a module that exports no memory.
func WrapMemory(mem api.Memory) Growable {
	if mem == nil {
		return nil
	}
	return &Guest{mem: mem}
}

func (g *Guest) Size() uint32 { return g.mem.Size() }

func (g *Guest) Grow(deltaPages uint32) (uint32, bool) { return g.mem.Grow(deltaPages) }

// Read returns a view into guest memory. The view is invalidated by Grow.
func (g *Guest) Read(offset uint32, length uint32) ([]byte, error) {
	data, ok := g.mem.Read(offset, length)
	if !ok {
		return nil, outOfBounds(offset, length)
	}
	return data, nil
}

func (g *Guest) Write(offset uint32, data []byte) error {
	if !g.mem.Write(offset, data) {
		return outOfBounds(offset, uint32(len(data)))
	}
	return nil
}

func (g *Guest) ReadU8(offset uint32) (uint8, error) {
	v, ok := g.mem.ReadByte(offset)
	if !ok {
		return 0, outOfBounds(offset, 1)
	}
	return v, nil
}

func (g *Guest) ReadU32(offset uint32) (uint32, error) {
	v, ok := g.mem.ReadUint32Le(offset)
	if !ok {
		return 0, outOfBounds(offset, 4)
	}
	return v, nil
}

func (g *Guest) ReadU64(offset uint32) (uint64, error) {
	v, ok := g.mem.ReadUint64Le(offset)
	if !ok {
		return 0, outOfBounds(offset, 8)
	}
	return v, nil
}

func (g *Guest) WriteU8(offset uint32, value uint8) error {
	if !g.mem.WriteByte(offset, value) {
		return outOfBounds(offset, 1)
	}
	return nil
}

func (g *Guest) WriteU32(offset uint32, value uint32) error {
	if !g.mem.WriteUint32Le(offset, value) {
		return outOfBounds(offset, 4)
	}
	return nil
}

func (g *Guest) WriteU64(offset uint32, value uint64) error {
	if !g.mem.WriteUint64Le(offset, value) {
		return outOfBounds(offset, 8)
	}
	return nil
}

package bridge

// Memory is a linear memory addressed by 32-bit offsets.
// Offset 0 is the null pointer.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	ReadU8(offset uint32) (uint8, error)
	ReadU32(offset uint32) (uint32, error)
	ReadU64(offset uint32) (uint64, error)
	WriteU8(offset uint32, value uint8) error
	WriteU32(offset uint32, value uint32) error
	WriteU64(offset uint32, value uint64) error
}

// MemorySizer provides the current size of a linear memory in bytes.
type MemorySizer interface {
	Size() uint32
}

// MemoryGrower can extend a linear memory by whole 64KiB pages.
// Grow returns the previous size in pages.
type MemoryGrower interface {
	Grow(deltaPages uint32) (uint32, bool)
}

// Allocator allocates memory inside a linear memory.
type Allocator interface {
	Alloc(size, align uint32) (uint32, error)
	Free(ptr, size, align uint32)
}

// ProcessMemory is the debuggee memory capability supplied by the OS-level
// debugger core. Both calls report success; the buffer length is the size.
type ProcessMemory interface {
	ReadMemory(addr uint64, buf []byte) bool
	PatchMemory(addr uint64, buf []byte) bool
}

// PatchNotifier is invoked after a successful patch so higher layers can
// refresh their views.
type PatchNotifier interface {
	PatchesChanged()
}

// PatchNotifierFunc adapts a function to PatchNotifier.
type PatchNotifierFunc func()

// PatchesChanged calls f.
func (f PatchNotifierFunc) PatchesChanged() {
	if f != nil {
		f()
	}
}

// PageSize is the linear memory page size.
const PageSize = 65536

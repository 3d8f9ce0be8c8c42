package wire

import (
	"github.com/x64dbg/bridge"
)

// Codec reads and writes one fixed-width element type in linear memory.
type Codec[T any] interface {
	// Name identifies the element type in diagnostics.
	Name() string
	// Size is the wire size of one element; the size contract uses it.
	Size() uint32
	// Align is the required alignment of the data buffer.
	Align() uint32
	Load(mem bridge.Memory, addr uint32) (T, error)
	Store(mem bridge.Memory, addr uint32, v T) error
}

type uint64Codec struct{}

// Uint64 is the codec for pointer-width unsigned integers (addresses).
var Uint64 Codec[uint64] = uint64Codec{}

func (uint64Codec) Name() string  { return "u64" }
func (uint64Codec) Size() uint32  { return 8 }
func (uint64Codec) Align() uint32 { return 8 }

func (uint64Codec) Load(mem bridge.Memory, addr uint32) (uint64, error) {
	return mem.ReadU64(addr)
}

func (uint64Codec) Store(mem bridge.Memory, addr uint32, v uint64) error {
	return mem.WriteU64(addr, v)
}

type bytesCodec struct{}

// Byte is the codec for raw byte lists.
var Byte Codec[byte] = bytesCodec{}

func (bytesCodec) Name() string  { return "u8" }
func (bytesCodec) Size() uint32  { return 1 }
func (bytesCodec) Align() uint32 { return 1 }

func (bytesCodec) Load(mem bridge.Memory, addr uint32) (byte, error) {
	return mem.ReadU8(addr)
}

func (bytesCodec) Store(mem bridge.Memory, addr uint32, v byte) error {
	return mem.WriteU8(addr, v)
}

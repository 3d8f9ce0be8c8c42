package abi

import (
	"math"
)

const (
	// MaxListLength caps the element count of one wire list.
	MaxListLength = 1 << 27
	// MaxAlloc caps a single linear memory allocation.
	MaxAlloc = 1 << 30
)

// SafeMulU32 returns a*b and false on overflow.
func SafeMulU32(a, b uint32) (uint32, bool) {
	if b != 0 && a > math.MaxUint32/b {
		return 0, false
	}
	return a * b, true
}

// SafeAddU32 returns a+b and false on overflow.
func SafeAddU32(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}

// AlignTo rounds offset up to a multiple of align, which must be a power of
// two. An align of 0 leaves offset unchanged.
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo(v uint32) bool {
	return v != 0 && v&(v-1) == 0
}

package memory

import (
	"encoding/binary"
	"fmt"

	"github.com/x64dbg/bridge"
)

// Linear is a growable in-process linear memory.
// Slices returned by Read alias the memory and are invalidated by Grow.
// Not thread-safe.
type Linear struct {
	buf      []byte
	maxPages uint32
}

// maxLinearPages keeps Size representable as uint32.
const maxLinearPages = 65535

// NewLinear creates a memory of the given number of pages that may grow up
// to just under 4GiB.
func NewLinear(pages uint32) *Linear {
	return NewLinearWithLimit(pages, maxLinearPages)
}

// NewLinearWithLimit creates a memory that may grow up to maxPages.
func NewLinearWithLimit(pages, maxPages uint32) *Linear {
	if pages > maxPages {
		pages = maxPages
	}
	return &Linear{
		buf:      make([]byte, uint64(pages)*bridge.PageSize),
		maxPages: maxPages,
	}
}

// Size returns the memory size in bytes.
func (m *Linear) Size() uint32 {
	return uint32(len(m.buf))
}

// Grow extends the memory by deltaPages and returns the previous page count.
func (m *Linear) Grow(deltaPages uint32) (uint32, bool) {
	prev := uint32(uint64(len(m.buf)) / bridge.PageSize)
	if uint64(prev)+uint64(deltaPages) > uint64(m.maxPages) {
		return prev, false
	}
	if deltaPages == 0 {
		return prev, true
	}
	grown := make([]byte, uint64(prev+deltaPages)*bridge.PageSize)
	copy(grown, m.buf)
	m.buf = grown
	return prev, true
}

func (m *Linear) check(offset, length uint32) error {
	if uint64(offset)+uint64(length) > uint64(len(m.buf)) {
		return outOfBounds(offset, length)
	}
	return nil
}

func outOfBounds(offset, length uint32) error {
	return fmt.Errorf("memory access out of bounds: offset=%d, length=%d", offset, length)
}

// Read returns a view of length bytes at offset.
func (m *Linear) Read(offset uint32, length uint32) ([]byte, error) {
	if err := m.check(offset, length); err != nil {
		return nil, err
	}
	end := offset + length
	return m.buf[offset:end:end], nil
}

// Write copies data to offset.
func (m *Linear) Write(offset uint32, data []byte) error {
	if err := m.check(offset, uint32(len(data))); err != nil {
		return err
	}
	copy(m.buf[offset:], data)
	return nil
}

func (m *Linear) ReadU8(offset uint32) (uint8, error) {
	if err := m.check(offset, 1); err != nil {
		return 0, err
	}
	return m.buf[offset], nil
}

func (m *Linear) ReadU32(offset uint32) (uint32, error) {
	if err := m.check(offset, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.buf[offset:]), nil
}

func (m *Linear) ReadU64(offset uint32) (uint64, error) {
	if err := m.check(offset, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.buf[offset:]), nil
}

func (m *Linear) WriteU8(offset uint32, value uint8) error {
	if err := m.check(offset, 1); err != nil {
		return err
	}
	m.buf[offset] = value
	return nil
}

func (m *Linear) WriteU32(offset uint32, value uint32) error {
	if err := m.check(offset, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.buf[offset:], value)
	return nil
}

func (m *Linear) WriteU64(offset uint32, value uint64) error {
	if err := m.check(offset, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.buf[offset:], value)
	return nil
}

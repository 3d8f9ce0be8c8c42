package wire

import (
	"github.com/x64dbg/bridge"
)

// ListHandle is the wire descriptor of a list: Count elements occupying
// Size bytes at offset Data.
type ListHandle struct {
	Count int32
	Size  uint32
	Data  uint32
}

// Empty reports whether the handle carries no elements and no buffer.
func (h ListHandle) Empty() bool {
	return h.Count == 0 && h.Data == 0
}

// LoadList reads a ListHandle stored at addr.
func LoadList(mem bridge.Memory, addr uint32) (ListHandle, error) {
	count, err := mem.ReadU32(addr + listLayout.Offset("count"))
	if err != nil {
		return ListHandle{}, err
	}
	size, err := mem.ReadU32(addr + listLayout.Offset("size"))
	if err != nil {
		return ListHandle{}, err
	}
	data, err := mem.ReadU32(addr + listLayout.Offset("data"))
	if err != nil {
		return ListHandle{}, err
	}
	return ListHandle{Count: int32(count), Size: size, Data: data}, nil
}

// StoreList writes h at addr.
func StoreList(mem bridge.Memory, addr uint32, h ListHandle) error {
	if err := mem.WriteU32(addr+listLayout.Offset("count"), uint32(h.Count)); err != nil {
		return err
	}
	if err := mem.WriteU32(addr+listLayout.Offset("size"), h.Size); err != nil {
		return err
	}
	return mem.WriteU32(addr+listLayout.Offset("data"), h.Data)
}

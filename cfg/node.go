package cfg

import (
	"fmt"
	"slices"
)

// Node is one basic block. Start and End are inclusive.
type Node struct {
	// ParentGraph identifies the function the block belongs to.
	ParentGraph uint64
	Start       uint64
	End         uint64
	// BrTrue and BrFalse are the taken and fallthrough targets, 0 if absent.
	BrTrue  uint64
	BrFalse uint64
	ICount  uint64
	// Terminal marks a block ending in a return.
	Terminal bool
	// Split marks a synthetic fallthrough block.
	Split    bool
	UserData uint64
	// Exits is the authoritative successor list. It is a superset of
	// BrTrue and BrFalse and also carries switch targets.
	Exits []uint64
}

// Contains reports whether addr lies inside the block.
func (n *Node) Contains(addr uint64) bool {
	return addr >= n.Start && addr <= n.End
}

// clone returns a copy that shares no memory with n.
func (n Node) clone() Node {
	n.Exits = slices.Clone(n.Exits)
	return n
}

func (n Node) String() string {
	return fmt.Sprintf("node[%#x-%#x] true=%#x false=%#x exits=%d", n.Start, n.End, n.BrTrue, n.BrFalse, len(n.Exits))
}

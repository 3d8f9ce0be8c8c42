package wire

import (
	"github.com/x64dbg/bridge"
	"github.com/x64dbg/bridge/errors"
)

// NodeRecord is the wire form of one basic block.
type NodeRecord struct {
	ParentGraph uint64
	Start       uint64
	End         uint64
	BrTrue      uint64
	BrFalse     uint64
	ICount      uint64
	Terminal    bool
	Split       bool
	UserData    uint64
	Exits       ListHandle
}

// GraphRecord is the wire form of a control-flow graph.
type GraphRecord struct {
	EntryPoint uint64
	UserData   uint64
	Nodes      ListHandle
}

type nodeCodec struct{}

// Node is the codec for NodeRecord elements.
var Node Codec[NodeRecord] = nodeCodec{}

func (nodeCodec) Name() string  { return "NodeRecord" }
func (nodeCodec) Size() uint32  { return nodeLayout.Size }
func (nodeCodec) Align() uint32 { return nodeLayout.Align }

func (nodeCodec) Load(mem bridge.Memory, addr uint32) (NodeRecord, error) {
	var n NodeRecord
	words := []struct {
		field string
		dst   *uint64
	}{
		{"parent-graph", &n.ParentGraph},
		{"start", &n.Start},
		{"end", &n.End},
		{"brtrue", &n.BrTrue},
		{"brfalse", &n.BrFalse},
		{"icount", &n.ICount},
		{"user-data", &n.UserData},
	}
	for _, w := range words {
		v, err := mem.ReadU64(addr + nodeLayout.Offset(w.field))
		if err != nil {
			return NodeRecord{}, err
		}
		*w.dst = v
	}
	terminal, err := mem.ReadU8(addr + nodeLayout.Offset("terminal"))
	if err != nil {
		return NodeRecord{}, err
	}
	split, err := mem.ReadU8(addr + nodeLayout.Offset("split"))
	if err != nil {
		return NodeRecord{}, err
	}
	n.Terminal = terminal != 0
	n.Split = split != 0
	n.Exits, err = LoadList(mem, addr+nodeLayout.Offset("exits"))
	if err != nil {
		return NodeRecord{}, err
	}
	return n, nil
}

func (nodeCodec) Store(mem bridge.Memory, addr uint32, n NodeRecord) error {
	words := []struct {
		field string
		v     uint64
	}{
		{"parent-graph", n.ParentGraph},
		{"start", n.Start},
		{"end", n.End},
		{"brtrue", n.BrTrue},
		{"brfalse", n.BrFalse},
		{"icount", n.ICount},
		{"user-data", n.UserData},
	}
	for _, w := range words {
		if err := mem.WriteU64(addr+nodeLayout.Offset(w.field), w.v); err != nil {
			return err
		}
	}
	if err := mem.WriteU8(addr+nodeLayout.Offset("terminal"), boolByte(n.Terminal)); err != nil {
		return err
	}
	if err := mem.WriteU8(addr+nodeLayout.Offset("split"), boolByte(n.Split)); err != nil {
		return err
	}
	return StoreList(mem, addr+nodeLayout.Offset("exits"), n.Exits)
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// FreeGraph releases every nested exits buffer and then the node array of
// rec. The record itself is a value and is not freed.
func FreeGraph(b *Boundary, rec GraphRecord) {
	nodes, err := decode(b, Node, rec.Nodes, false, "FreeGraph")
	if err != nil {
		// Nested handles are unreadable; release what is known to be owned.
		b.Free(rec.Nodes.Data)
		return
	}
	for _, n := range nodes {
		release(b, Uint64, n.Exits, "FreeGraph")
	}
	b.Free(rec.Nodes.Data)
}

// StoreGraph allocates a GraphRecord in memory, writes rec into it and
// returns its address. Ownership of the record and of the buffers it points
// at passes to the reader.
func StoreGraph(b *Boundary, rec GraphRecord) (uint32, error) {
	addr, err := b.Alloc(graphLayout.Size, graphLayout.Align)
	if err != nil {
		return 0, err
	}
	mem := b.mem
	if err := mem.WriteU64(addr+graphLayout.Offset("entry-point"), rec.EntryPoint); err != nil {
		b.Free(addr)
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "store graph record")
	}
	if err := mem.WriteU64(addr+graphLayout.Offset("user-data"), rec.UserData); err != nil {
		b.Free(addr)
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "store graph record")
	}
	if err := StoreList(mem, addr+graphLayout.Offset("nodes"), rec.Nodes); err != nil {
		b.Free(addr)
		return 0, errors.Wrap(errors.PhaseEncode, errors.KindOutOfBounds, err, "store graph record")
	}
	return addr, nil
}

// LoadGraph reads the GraphRecord at addr. With free the record's own
// buffer is released; the node list it references is left to the caller.
func LoadGraph(b *Boundary, addr uint32, free bool) (GraphRecord, error) {
	if addr == 0 {
		return GraphRecord{}, errors.NilPointer(errors.PhaseDecode, []string{"graph"}, "GraphRecord")
	}
	mem := b.mem
	var rec GraphRecord
	var err error
	if rec.EntryPoint, err = mem.ReadU64(addr + graphLayout.Offset("entry-point")); err != nil {
		return GraphRecord{}, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "load graph record")
	}
	if rec.UserData, err = mem.ReadU64(addr + graphLayout.Offset("user-data")); err != nil {
		return GraphRecord{}, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "load graph record")
	}
	if rec.Nodes, err = LoadList(mem, addr+graphLayout.Offset("nodes")); err != nil {
		return GraphRecord{}, errors.Wrap(errors.PhaseDecode, errors.KindOutOfBounds, err, "load graph record")
	}
	if free {
		b.Free(addr)
	}
	return rec, nil
}

package cfg

import (
	"github.com/x64dbg/bridge/wire"
)

// FromWire builds a graph from rec. The node array is converted first, then
// each node's exits list; both steps enforce the list size contract and
// panic with a contract violation on mismatch. With free every buffer rec
// owns is released once converted.
func FromWire(b *wire.Boundary, rec wire.GraphRecord, free bool) (*Graph, error) {
	records, err := wire.ToSlice(b, wire.Node, rec.Nodes, false)
	if err != nil {
		return nil, err
	}

	g := New(rec.EntryPoint)
	g.UserData = rec.UserData
	for i, r := range records {
		exits, err := wire.ToSlice(b, wire.Uint64, r.Exits, free)
		if err != nil {
			if free {
				releaseFrom(b, records[i+1:])
				b.Free(rec.Nodes.Data)
			}
			return nil, err
		}
		g.AddNode(Node{
			ParentGraph: r.ParentGraph,
			Start:       r.Start,
			End:         r.End,
			BrTrue:      r.BrTrue,
			BrFalse:     r.BrFalse,
			ICount:      r.ICount,
			Terminal:    r.Terminal,
			Split:       r.Split,
			UserData:    r.UserData,
			Exits:       exits,
		})
	}
	if free {
		b.Free(rec.Nodes.Data)
	}
	return g, nil
}

func releaseFrom(b *wire.Boundary, records []wire.NodeRecord) {
	for _, r := range records {
		b.Free(r.Exits.Data)
	}
}

// ToWire encodes g into buffers allocated through b, nodes in ascending
// start order. The caller owns the result and releases it with
// wire.FreeGraph or hands it to a consumer that does.
func (g *Graph) ToWire(b *wire.Boundary) (wire.GraphRecord, error) {
	nodes := g.Nodes()
	records := make([]wire.NodeRecord, 0, len(nodes))
	for _, n := range nodes {
		exits, err := wire.CopyData(b, wire.Uint64, n.Exits)
		if err != nil {
			releaseFrom(b, records)
			return wire.GraphRecord{}, err
		}
		records = append(records, wire.NodeRecord{
			ParentGraph: n.ParentGraph,
			Start:       n.Start,
			End:         n.End,
			BrTrue:      n.BrTrue,
			BrFalse:     n.BrFalse,
			ICount:      n.ICount,
			Terminal:    n.Terminal,
			Split:       n.Split,
			UserData:    n.UserData,
			Exits:       exits,
		})
	}
	list, err := wire.CopyData(b, wire.Node, records)
	if err != nil {
		releaseFrom(b, records)
		return wire.GraphRecord{}, err
	}
	return wire.GraphRecord{
		EntryPoint: g.EntryPoint,
		UserData:   g.UserData,
		Nodes:      list,
	}, nil
}

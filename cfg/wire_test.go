package cfg

import (
	"slices"
	"testing"

	"github.com/x64dbg/bridge/errors"
	"github.com/x64dbg/bridge/internal/memory"
	"github.com/x64dbg/bridge/wire"
)

func newBoundary(t *testing.T) (*wire.Boundary, *memory.Heap) {
	t.Helper()
	heap := memory.NewHeap(memory.NewLinear(1))
	return wire.NewBoundary(heap.Memory(), heap), heap
}

func sampleGraph() *Graph {
	g := New(0x401000)
	g.UserData = 0xdead
	g.AddNode(Node{ParentGraph: 0x401000, Start: 0x401000, End: 0x40100f, BrTrue: 0x401010, BrFalse: 0x401020, ICount: 4, Exits: []uint64{0x401010, 0x401020}})
	g.AddNode(Node{ParentGraph: 0x401000, Start: 0x401020, End: 0x40102f, ICount: 3, Terminal: true})
	g.AddNode(Node{ParentGraph: 0x401000, Start: 0x401010, End: 0x40101f, BrTrue: 0x401020, ICount: 2, Split: true, Exits: []uint64{0x401020}})
	return g
}

func TestWire_RoundTrip(t *testing.T) {
	b, heap := newBoundary(t)
	g := sampleGraph()

	rec, err := g.ToWire(b)
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	if rec.Nodes.Count != 3 || rec.Nodes.Size != 3*wire.NodeRecordSize {
		t.Fatalf("nodes handle = %+v", rec.Nodes)
	}

	got, err := FromWire(b, rec, true)
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}
	if heap.Live() != 0 {
		t.Errorf("%d wire buffers leaked", heap.Live())
	}
	if got.EntryPoint != g.EntryPoint || got.UserData != g.UserData || got.Len() != g.Len() {
		t.Fatalf("graph header mismatch: %+v", got)
	}
	for _, want := range g.Nodes() {
		n, ok := got.Node(want.Start)
		if !ok {
			t.Fatalf("node %#x missing", want.Start)
		}
		if n.End != want.End || n.BrTrue != want.BrTrue || n.Terminal != want.Terminal ||
			n.Split != want.Split || n.ICount != want.ICount || !slices.Equal(n.Exits, want.Exits) {
			t.Errorf("node %#x = %v, want %v", want.Start, n, want)
		}
	}
	if !slices.Equal(got.Predecessors(0x401020), []uint64{0x401000, 0x401010}) {
		t.Errorf("Predecessors = %#x", got.Predecessors(0x401020))
	}
}

func TestToWire_SortedNodes(t *testing.T) {
	b, _ := newBoundary(t)

	rec, err := sampleGraph().ToWire(b)
	if err != nil {
		t.Fatalf("ToWire: %v", err)
	}
	defer wire.FreeGraph(b, rec)

	records, err := wire.ToSlice(b, wire.Node, rec.Nodes, false)
	if err != nil {
		t.Fatalf("ToSlice: %v", err)
	}
	for i := 1; i < len(records); i++ {
		if records[i-1].Start >= records[i].Start {
			t.Fatalf("records not ascending: %#x then %#x", records[i-1].Start, records[i].Start)
		}
	}
}

func TestFromWire_KeepBuffers(t *testing.T) {
	b, heap := newBoundary(t)

	rec, _ := sampleGraph().ToWire(b)
	live := heap.Live()
	if _, err := FromWire(b, rec, false); err != nil {
		t.Fatalf("FromWire: %v", err)
	}
	if heap.Live() != live {
		t.Errorf("Live = %d, want %d", heap.Live(), live)
	}
	wire.FreeGraph(b, rec)
	if heap.Live() != 0 {
		t.Errorf("FreeGraph left %d buffers", heap.Live())
	}
}

func TestFromWire_NestedSizeMismatch(t *testing.T) {
	b, _ := newBoundary(t)

	exits, _ := wire.CopyData(b, wire.Uint64, []uint64{0x401010, 0x401020})
	exits.Size--
	nodes, _ := wire.CopyData(b, wire.Node, []wire.NodeRecord{{Start: 0x401000, Exits: exits}})

	defer func() {
		r := recover()
		if !errors.IsContractViolation(r) {
			t.Fatalf("recovered %v, want contract violation", r)
		}
	}()
	_, _ = FromWire(b, wire.GraphRecord{EntryPoint: 0x401000, Nodes: nodes}, true)
	t.Fatal("FromWire accepted a mismatched exits list")
}

func TestFromWire_Empty(t *testing.T) {
	b, _ := newBoundary(t)

	g, err := FromWire(b, wire.GraphRecord{EntryPoint: 0x1000}, true)
	if err != nil {
		t.Fatalf("FromWire: %v", err)
	}
	if g.Len() != 0 || g.EntryPoint != 0x1000 {
		t.Errorf("got %d nodes entry %#x", g.Len(), g.EntryPoint)
	}
}

package wire

import (
	"testing"

	"github.com/x64dbg/bridge/errors"
	"github.com/x64dbg/bridge/internal/memory"
)

func newTestBoundary(t *testing.T) (*Boundary, *memory.Heap) {
	t.Helper()
	heap := memory.NewHeap(memory.NewLinear(1))
	return NewBoundary(heap.Memory(), heap, WithName("test")), heap
}

func expectViolation(t *testing.T, fn func()) *errors.Error {
	t.Helper()
	var got *errors.Error
	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("expected contract violation panic")
			}
			if !errors.IsContractViolation(r) {
				t.Fatalf("panic value %v is not a contract violation", r)
			}
			got = r.(*errors.Error)
		}()
		fn()
	}()
	return got
}

func TestLayout(t *testing.T) {
	if ListHandleSize != 12 || listLayout.Align != 4 {
		t.Errorf("ListHandle size/align = %d/%d, want 12/4", ListHandleSize, listLayout.Align)
	}
	if NodeRecordSize != 80 || nodeLayout.Align != 8 {
		t.Errorf("NodeRecord size/align = %d/%d, want 80/8", NodeRecordSize, nodeLayout.Align)
	}
	if GraphRecordSize != 32 {
		t.Errorf("GraphRecord size = %d, want 32", GraphRecordSize)
	}

	offsets := []struct {
		info  string
		field string
		want  uint32
	}{
		{"list", "count", 0},
		{"list", "size", 4},
		{"list", "data", 8},
		{"node", "parent-graph", 0},
		{"node", "start", 8},
		{"node", "end", 16},
		{"node", "brtrue", 24},
		{"node", "brfalse", 32},
		{"node", "icount", 40},
		{"node", "terminal", 48},
		{"node", "split", 49},
		{"node", "user-data", 56},
		{"node", "exits", 64},
		{"graph", "entry-point", 0},
		{"graph", "user-data", 8},
		{"graph", "nodes", 16},
	}
	layouts := map[string]func(string) uint32{
		"list":  listLayout.Offset,
		"node":  nodeLayout.Offset,
		"graph": graphLayout.Offset,
	}
	for _, tt := range offsets {
		if got := layouts[tt.info](tt.field); got != tt.want {
			t.Errorf("%s.%s offset = %d, want %d", tt.info, tt.field, got, tt.want)
		}
	}
}

func TestBoundary_AllocZeroedAndCounted(t *testing.T) {
	b, heap := newTestBoundary(t)

	ptr, err := b.Alloc(24, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if ptr == 0 {
		t.Fatal("Alloc returned null")
	}
	v, _ := b.Memory().ReadU64(ptr + 16)
	if v != 0 {
		t.Errorf("allocated memory not zeroed: %#x", v)
	}
	if b.Outstanding() != 1 || heap.Live() != 1 {
		t.Errorf("Outstanding=%d Live=%d, want 1/1", b.Outstanding(), heap.Live())
	}

	b.Free(ptr)
	b.Free(0)
	if b.Outstanding() != 0 || heap.Live() != 0 {
		t.Errorf("Outstanding=%d Live=%d after free, want 0/0", b.Outstanding(), heap.Live())
	}
}

func TestCopyData_Empty(t *testing.T) {
	b, heap := newTestBoundary(t)

	h, err := CopyData(b, Uint64, nil)
	if err != nil {
		t.Fatalf("CopyData: %v", err)
	}
	if h != (ListHandle{}) {
		t.Errorf("handle = %+v, want zero", h)
	}
	if heap.Live() != 0 {
		t.Error("empty input allocated a buffer")
	}

	out, err := ToSlice(b, Uint64, h, true)
	if err != nil {
		t.Fatalf("ToSlice: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("len = %d, want 0", len(out))
	}
}

func TestCopyData_RoundTrip(t *testing.T) {
	b, heap := newTestBoundary(t)
	in := []uint64{0x401000, 0x401010, 0xffffffffffffffff}

	h, err := CopyData(b, Uint64, in)
	if err != nil {
		t.Fatalf("CopyData: %v", err)
	}
	if h.Count != 3 || h.Size != 24 || h.Data == 0 {
		t.Fatalf("handle = %+v", h)
	}

	out, err := ToSlice(b, Uint64, h, true)
	if err != nil {
		t.Fatalf("ToSlice: %v", err)
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %#x, want %#x", i, out[i], in[i])
		}
	}
	if heap.Live() != 0 {
		t.Errorf("buffer not released, %d live", heap.Live())
	}
}

func TestToSlice_KeepBuffer(t *testing.T) {
	b, heap := newTestBoundary(t)

	h, _ := CopyData(b, Byte, []byte("abc"))
	out, err := ToSlice(b, Byte, h, false)
	if err != nil {
		t.Fatalf("ToSlice: %v", err)
	}
	if string(out) != "abc" {
		t.Errorf("out = %q", out)
	}
	if heap.Live() != 1 {
		t.Fatal("buffer released without free")
	}
	Free(b, Byte, h)
	if heap.Live() != 0 {
		t.Error("Free did not release the buffer")
	}
}

func TestToSlice_SizeMismatch(t *testing.T) {
	b, _ := newTestBoundary(t)

	data, err := b.Alloc(NodeRecordSize*3, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	h := ListHandle{Count: 3, Size: NodeRecordSize*3 - 1, Data: data}

	e := expectViolation(t, func() { _, _ = ToSlice(b, Node, h, true) })
	if e.Call != "ToSlice" {
		t.Errorf("Call = %q, want ToSlice", e.Call)
	}
	if e.Value != uint64(NodeRecordSize*3-1) {
		t.Errorf("Value = %v, want the declared size", e.Value)
	}
	if b.Outstanding() != 1 {
		t.Error("violating handle must not be freed")
	}
}

func TestToSlice_ContractViolations(t *testing.T) {
	b, _ := newTestBoundary(t)

	handles := []struct {
		name string
		h    ListHandle
	}{
		{"negative count", ListHandle{Count: -1}},
		{"null data", ListHandle{Count: 2, Size: 16}},
		{"beyond memory", ListHandle{Count: 2, Size: 16, Data: 65530}},
		{"size without count", ListHandle{Count: 0, Size: 8}},
	}
	calls := []struct {
		call string
		run  func(h ListHandle)
	}{
		{"ToSlice", func(h ListHandle) { _, _ = ToSlice(b, Uint64, h, false) }},
		{"Free", func(h ListHandle) { Free(b, Uint64, h) }},
		{"Check", func(h ListHandle) { Check(b, Uint64, h) }},
	}

	for _, tt := range handles {
		for _, c := range calls {
			t.Run(tt.name+"/"+c.call, func(t *testing.T) {
				e := expectViolation(t, func() { c.run(tt.h) })
				if e.Kind != errors.KindContractViolation {
					t.Errorf("Kind = %v, want %v", e.Kind, errors.KindContractViolation)
				}
				if e.Call != c.call {
					t.Errorf("Call = %q, want %q", e.Call, c.call)
				}
			})
		}
	}
}

func TestFreeGraph_ReportsCall(t *testing.T) {
	b, _ := newTestBoundary(t)

	bad := NodeRecord{Start: 0x1000, Exits: ListHandle{Count: 1, Size: 7, Data: 0x100}}
	nodes, err := CopyData(b, Node, []NodeRecord{bad})
	if err != nil {
		t.Fatalf("CopyData: %v", err)
	}

	e := expectViolation(t, func() { FreeGraph(b, GraphRecord{Nodes: nodes}) })
	if e.Call != "FreeGraph" {
		t.Errorf("Call = %q, want FreeGraph", e.Call)
	}
}

type recordingAllocator struct {
	*memory.Heap
	freed []block
}

func (a *recordingAllocator) Free(ptr, size, align uint32) {
	a.freed = append(a.freed, block{size: size, align: align})
	a.Heap.Free(ptr, size, align)
}

func TestBoundary_FreePassesAllocationSize(t *testing.T) {
	heap := memory.NewHeap(memory.NewLinear(1))
	alloc := &recordingAllocator{Heap: heap}
	b := NewBoundary(heap.Memory(), alloc)

	ptr, err := b.Alloc(24, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	b.Free(ptr)

	foreign, _ := heap.Alloc(32, 4)
	b.Free(foreign)

	want := []block{{size: 24, align: 8}, {}}
	if len(alloc.freed) != len(want) {
		t.Fatalf("freed = %v, want %v", alloc.freed, want)
	}
	for i := range want {
		if alloc.freed[i] != want[i] {
			t.Errorf("freed[%d] = %+v, want %+v", i, alloc.freed[i], want[i])
		}
	}
	if b.Outstanding() != 0 {
		t.Errorf("Outstanding = %d, want 0", b.Outstanding())
	}
}

func TestNodeCodec_RoundTrip(t *testing.T) {
	b, _ := newTestBoundary(t)

	in := NodeRecord{
		ParentGraph: 0x401000,
		Start:       0x401000,
		End:         0x40100f,
		BrTrue:      0x401010,
		BrFalse:     0x401020,
		ICount:      5,
		Terminal:    false,
		Split:       true,
		UserData:    7,
		Exits:       ListHandle{Count: 2, Size: 16, Data: 0x100},
	}
	addr, _ := b.Alloc(NodeRecordSize, 8)
	if err := Node.Store(b.Memory(), addr, in); err != nil {
		t.Fatalf("Store: %v", err)
	}
	raw, _ := b.Memory().ReadU8(addr + 49)
	if raw != 1 {
		t.Errorf("split byte = %d, want 1", raw)
	}

	out, err := Node.Load(b.Memory(), addr)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out != in {
		t.Errorf("Load = %+v, want %+v", out, in)
	}
}

func TestGraph_StoreLoadFree(t *testing.T) {
	b, heap := newTestBoundary(t)

	exits, err := CopyData(b, Uint64, []uint64{0x401010, 0x401020})
	if err != nil {
		t.Fatalf("CopyData exits: %v", err)
	}
	nodes, err := CopyData(b, Node, []NodeRecord{
		{Start: 0x401000, End: 0x40100f, BrTrue: 0x401010, BrFalse: 0x401020, Exits: exits},
		{Start: 0x401010, End: 0x40101f, Terminal: true},
	})
	if err != nil {
		t.Fatalf("CopyData nodes: %v", err)
	}

	addr, err := StoreGraph(b, GraphRecord{EntryPoint: 0x401000, UserData: 9, Nodes: nodes})
	if err != nil {
		t.Fatalf("StoreGraph: %v", err)
	}
	rec, err := LoadGraph(b, addr, true)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	if rec.EntryPoint != 0x401000 || rec.UserData != 9 || rec.Nodes != nodes {
		t.Errorf("LoadGraph = %+v", rec)
	}

	FreeGraph(b, rec)
	if heap.Live() != 0 {
		t.Errorf("%d buffers leaked", heap.Live())
	}
}

func TestLoadGraph_Null(t *testing.T) {
	b, _ := newTestBoundary(t)

	_, err := LoadGraph(b, 0, false)
	var e *errors.Error
	if !asError(err, &e) || e.Kind != errors.KindNilPointer {
		t.Errorf("LoadGraph(0) = %v, want nil pointer error", err)
	}
}

func asError(err error, target **errors.Error) bool {
	e, ok := err.(*errors.Error)
	if ok {
		*target = e
	}
	return ok
}

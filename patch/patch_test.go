package patch

import (
	stderrors "errors"
	"testing"

	"github.com/x64dbg/bridge"
	"github.com/x64dbg/bridge/errors"
)

// fakeProcess is a flat debuggee address space starting at base.
type fakeProcess struct {
	base      uint64
	data      []byte
	readOnly  bool
	failWrite uint64
}

func newFakeProcess(base uint64, size int) *fakeProcess {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i)
	}
	return &fakeProcess{base: base, data: data}
}

func (p *fakeProcess) inRange(addr uint64, n int) bool {
	return addr >= p.base && addr+uint64(n) <= p.base+uint64(len(p.data))
}

func (p *fakeProcess) ReadMemory(addr uint64, buf []byte) bool {
	if !p.inRange(addr, len(buf)) {
		return false
	}
	copy(buf, p.data[addr-p.base:])
	return true
}

func (p *fakeProcess) PatchMemory(addr uint64, buf []byte) bool {
	if p.readOnly || !p.inRange(addr, len(buf)) || (p.failWrite != 0 && addr == p.failWrite) {
		return false
	}
	copy(p.data[addr-p.base:], buf)
	return true
}

func (p *fakeProcess) at(addr uint64) byte {
	return p.data[addr-p.base]
}

func TestTracker_SetRecordsChangedBytes(t *testing.T) {
	proc := newFakeProcess(0x401000, 64)
	notified := 0
	tr := NewTracker(proc, bridge.PatchNotifierFunc(func() { notified++ }))

	// Byte at 0x401001 already holds 0x01.
	if err := tr.Set(0x401000, []byte{0x90, 0x01, 0xcc}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if notified != 1 {
		t.Errorf("notified %d times, want 1", notified)
	}
	want := []Patch{
		{Addr: 0x401000, Old: 0x00, New: 0x90},
		{Addr: 0x401002, Old: 0x02, New: 0xcc},
	}
	got := tr.List()
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if proc.at(0x401000) != 0x90 {
		t.Error("memory not written")
	}
}

func TestTracker_RepatchKeepsOriginal(t *testing.T) {
	proc := newFakeProcess(0x401000, 16)
	tr := NewTracker(proc, nil)

	_ = tr.Set(0x401004, []byte{0x90})
	_ = tr.Set(0x401004, []byte{0xcc})

	p, ok := tr.Get(0x401004)
	if !ok || p.Old != 0x04 || p.New != 0xcc {
		t.Errorf("Get = %v, %v", p, ok)
	}
}

func TestTracker_WritingOriginalUndoes(t *testing.T) {
	proc := newFakeProcess(0x401000, 16)
	tr := NewTracker(proc, nil)

	_ = tr.Set(0x401004, []byte{0x90})
	_ = tr.Set(0x401004, []byte{0x04})

	if tr.Len() != 0 {
		t.Errorf("Len = %d, want 0", tr.Len())
	}
}

func TestTracker_Restore(t *testing.T) {
	proc := newFakeProcess(0x401000, 16)
	tr := NewTracker(proc, nil)
	_ = tr.Set(0x401002, []byte{0xeb, 0xfe})

	if err := tr.Restore(0x401002); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if proc.at(0x401002) != 0x02 || tr.Len() != 1 {
		t.Errorf("after Restore byte=%#x Len=%d", proc.at(0x401002), tr.Len())
	}

	err := tr.Restore(0x401008)
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindNotFound {
		t.Errorf("Restore unpatched = %v, want not found", err)
	}
}

func TestTracker_RestoreAll(t *testing.T) {
	proc := newFakeProcess(0x401000, 16)
	notified := 0
	tr := NewTracker(proc, bridge.PatchNotifierFunc(func() { notified++ }))
	_ = tr.Set(0x401000, []byte{0xff, 0xff, 0xff, 0xff})

	n, err := tr.RestoreAll()
	if err != nil || n != 4 {
		t.Fatalf("RestoreAll = %d, %v", n, err)
	}
	for i := uint64(0); i < 4; i++ {
		if proc.at(0x401000+i) != byte(i) {
			t.Errorf("byte %d = %#x", i, proc.at(0x401000+i))
		}
	}
	if notified != 2 {
		t.Errorf("notified %d times, want 2", notified)
	}
}

func TestTracker_RestoreRangePartialFailure(t *testing.T) {
	proc := newFakeProcess(0x401000, 16)
	tr := NewTracker(proc, nil)
	_ = tr.Set(0x401000, []byte{0xff, 0xff, 0xff})
	proc.failWrite = 0x401001

	n, err := tr.RestoreRange(0x401000, 0x401003)
	if n != 2 || err == nil {
		t.Errorf("RestoreRange = %d, %v; want 2 and an error", n, err)
	}
	if _, ok := tr.Get(0x401001); !ok {
		t.Error("failed restore dropped its record")
	}
}

func TestTracker_MemoryFailures(t *testing.T) {
	proc := newFakeProcess(0x401000, 16)
	tr := NewTracker(proc, nil)

	err := tr.Set(0x500000, []byte{0x90})
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindMemory || e.Call != "ReadMemory" {
		t.Errorf("Set unmapped = %v", err)
	}

	proc.readOnly = true
	err = tr.Set(0x401000, []byte{0x90})
	if !stderrors.As(err, &e) || e.Call != "PatchMemory" {
		t.Errorf("Set read-only = %v", err)
	}
	if tr.Len() != 0 {
		t.Error("failed write was recorded")
	}
}

func TestTracker_Forget(t *testing.T) {
	proc := newFakeProcess(0x401000, 16)
	tr := NewTracker(proc, nil)
	_ = tr.Set(0x401000, []byte{0xff, 0xff})
	_ = tr.Set(0x40100a, []byte{0xff})

	if n := tr.Forget(0x401000, 0x401008); n != 2 {
		t.Errorf("Forget = %d, want 2", n)
	}
	if proc.at(0x401000) != 0xff {
		t.Error("Forget touched memory")
	}
	if tr.Len() != 1 {
		t.Errorf("Len = %d, want 1", tr.Len())
	}
}

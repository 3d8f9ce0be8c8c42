// Package patch tracks byte patches written to debuggee memory so they can be
// listed and reverted.
//
// Each patched byte is recorded once with the byte it replaced. Writing the
// original byte back removes the record; rewriting a patched byte keeps the
// first original.
package patch

import (
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/x64dbg/bridge"
	"github.com/x64dbg/bridge/errors"
)

// Patch is one modified byte.
type Patch struct {
	Addr uint64
	Old  byte
	New  byte
}

func (p Patch) String() string {
	return fmt.Sprintf("%#x: %02x -> %02x", p.Addr, p.Old, p.New)
}

// Tracker records patches applied through it. It is safe for concurrent use.
type Tracker struct {
	mu      sync.Mutex
	mem     bridge.ProcessMemory
	notify  bridge.PatchNotifier
	patches map[uint64]Patch
	logger  *zap.Logger
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithLogger sets the tracker logger.
func WithLogger(l *zap.Logger) TrackerOption {
	return func(t *Tracker) {
		if l != nil {
			t.logger = l
		}
	}
}

// NewTracker creates a tracker writing through mem. notify may be nil.
func NewTracker(mem bridge.ProcessMemory, notify bridge.PatchNotifier, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		mem:     mem,
		notify:  notify,
		patches: make(map[uint64]Patch),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Set writes data at addr and records every byte that now differs from the
// original. The notifier runs once after a successful write.
func (t *Tracker) Set(addr uint64, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	t.mu.Lock()
	current := make([]byte, len(data))
	if !t.mem.ReadMemory(addr, current) {
		t.mu.Unlock()
		return errors.MemoryAccess(errors.PhasePatch, "ReadMemory", addr, len(data))
	}
	if !t.mem.PatchMemory(addr, data) {
		t.mu.Unlock()
		return errors.MemoryAccess(errors.PhasePatch, "PatchMemory", addr, len(data))
	}
	for i, b := range data {
		t.record(addr+uint64(i), current[i], b)
	}
	t.mu.Unlock()

	t.logger.Debug("memory patched", zap.Uint64("addr", addr), zap.Int("size", len(data)))
	t.changed()
	return nil
}

// record applies one byte change. Caller holds mu.
func (t *Tracker) record(addr uint64, old, b byte) {
	if p, ok := t.patches[addr]; ok {
		if p.Old == b {
			delete(t.patches, addr)
			return
		}
		p.New = b
		t.patches[addr] = p
		return
	}
	if old == b {
		return
	}
	t.patches[addr] = Patch{Addr: addr, Old: old, New: b}
}

func (t *Tracker) changed() {
	if t.notify != nil {
		t.notify.PatchesChanged()
	}
}

// Get returns the patch at addr.
func (t *Tracker) Get(addr uint64) (Patch, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.patches[addr]
	return p, ok
}

// Restore writes the original byte back to addr and forgets the patch.
// Restoring an unpatched address returns a not-found error.
func (t *Tracker) Restore(addr uint64) error {
	t.mu.Lock()
	p, ok := t.patches[addr]
	if !ok {
		t.mu.Unlock()
		return errors.NotFound(errors.PhasePatch, "patch", fmt.Sprintf("%#x", addr))
	}
	if !t.mem.PatchMemory(addr, []byte{p.Old}) {
		t.mu.Unlock()
		return errors.MemoryAccess(errors.PhasePatch, "PatchMemory", addr, 1)
	}
	delete(t.patches, addr)
	t.mu.Unlock()

	t.changed()
	return nil
}

// RestoreRange restores every patch in [start, end). Patches that cannot be
// written back are kept and the first failure is returned.
func (t *Tracker) RestoreRange(start, end uint64) (int, error) {
	t.mu.Lock()
	var firstErr error
	restored := 0
	for _, addr := range t.sortedAddrs() {
		if addr < start || addr >= end {
			continue
		}
		p := t.patches[addr]
		if !t.mem.PatchMemory(addr, []byte{p.Old}) {
			if firstErr == nil {
				firstErr = errors.MemoryAccess(errors.PhasePatch, "PatchMemory", addr, 1)
			}
			continue
		}
		delete(t.patches, addr)
		restored++
	}
	t.mu.Unlock()

	if restored > 0 {
		t.logger.Debug("patches restored", zap.Int("count", restored))
		t.changed()
	}
	return restored, firstErr
}

// RestoreAll restores every patch.
func (t *Tracker) RestoreAll() (int, error) {
	return t.RestoreRange(0, ^uint64(0))
}

// Forget drops the records in [start, end) without touching memory, as when
// the module holding them is unloaded.
func (t *Tracker) Forget(start, end uint64) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for addr := range t.patches {
		if addr >= start && addr < end {
			delete(t.patches, addr)
			n++
		}
	}
	return n
}

func (t *Tracker) sortedAddrs() []uint64 {
	addrs := make([]uint64, 0, len(t.patches))
	for addr := range t.patches {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)
	return addrs
}

// List returns all patches in address order.
func (t *Tracker) List() []Patch {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Patch, 0, len(t.patches))
	for _, addr := range t.sortedAddrs() {
		out = append(out, t.patches[addr])
	}
	return out
}

// Len returns the number of patched bytes.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.patches)
}

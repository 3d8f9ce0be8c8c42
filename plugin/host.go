package plugin

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/x64dbg/bridge"
	"github.com/x64dbg/bridge/cfg"
	"github.com/x64dbg/bridge/errors"
	"github.com/x64dbg/bridge/internal/memory"
	"github.com/x64dbg/bridge/msgqueue"
	"github.com/x64dbg/bridge/wire"
)

// Config holds host settings.
type Config struct {
	// MemoryLimitPages caps each plugin's memory in 64KiB pages. 0 keeps the
	// runtime default.
	MemoryLimitPages uint32
}

// Host owns the WebAssembly runtime shared by loaded plugins.
type Host struct {
	mu      sync.Mutex
	runtime wazero.Runtime
	plugins map[string]*Plugin
	closed  bool
}

// NewHost creates a host. cfg may be nil.
func NewHost(ctx context.Context, cfg *Config) *Host {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Host{
		runtime: wazero.NewRuntimeWithConfig(ctx, runtimeCfg),
		plugins: make(map[string]*Plugin),
	}
}

// Load compiles and instantiates a plugin under name.
func (h *Host) Load(ctx context.Context, name string, wasm []byte) (*Plugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, errors.Closed(errors.PhasePlugin, "host")
	}
	if _, dup := h.plugins[name]; dup {
		return nil, errors.New(errors.PhasePlugin, errors.KindInvalidInput).
			Call("Load").
			Path(name).
			Detail("plugin %q already loaded", name).
			Build()
	}

	compiled, err := h.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Instantiation(name, err)
	}
	mod, err := h.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		return nil, errors.Instantiation(name, err)
	}
	mem := mod.ExportedMemory("memory")
	if mem == nil {
		_ = mod.Close(ctx)
		return nil, errors.NotFound(errors.PhasePlugin, "memory export of plugin", name)
	}

	guestMem := memory.WrapMemory(mem)
	var alloc bridge.Allocator
	if guest := newGuestAllocator(ctx, mod); guest != nil {
		alloc = guest
	} else {
		alloc = memory.NewHeapAt(guestMem, guestMem.Size())
	}

	p := &Plugin{
		name:   name,
		host:   h,
		module: mod,
		mem:    guestMem,
		bound:  wire.NewBoundary(guestMem, alloc, wire.WithName(name), wire.WithLogger(Logger())),
	}
	h.plugins[name] = p
	Logger().Info("plugin loaded",
		zap.String("name", name),
		zap.Uint32("memory", guestMem.Size()),
		zap.Bool("guest_alloc", isGuest(alloc)))
	return p, nil
}

func isGuest(a bridge.Allocator) bool {
	_, ok := a.(*guestAllocator)
	return ok
}

// Plugin returns a loaded plugin by name.
func (h *Host) Plugin(name string) (*Plugin, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.plugins[name]
	return p, ok
}

// Close closes every plugin and the runtime.
func (h *Host) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.plugins = nil
	h.mu.Unlock()
	return h.runtime.Close(ctx)
}

func (h *Host) forget(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.plugins, name)
}

// Plugin is one instantiated module.
type Plugin struct {
	name   string
	host   *Host
	module api.Module
	mem    memory.Growable
	bound  *wire.Boundary
}

// Name returns the name the plugin was loaded under.
func (p *Plugin) Name() string {
	return p.name
}

// Boundary returns the alloc/free entry point for the plugin's memory.
func (p *Plugin) Boundary() *wire.Boundary {
	return p.bound
}

// PublishGraph writes g into the plugin's memory and returns the address of
// its GraphRecord. The plugin owns the buffers afterwards.
func (p *Plugin) PublishGraph(g *cfg.Graph) (uint32, error) {
	if g == nil {
		return 0, errors.NilPointer(errors.PhasePlugin, []string{p.name}, "*cfg.Graph")
	}
	rec, err := g.ToWire(p.bound)
	if err != nil {
		return 0, err
	}
	addr, err := wire.StoreGraph(p.bound, rec)
	if err != nil {
		wire.FreeGraph(p.bound, rec)
		return 0, err
	}
	return addr, nil
}

// ReceiveGraph converts the GraphRecord at addr into a graph and frees
// every buffer it refers to, including the record.
func (p *Plugin) ReceiveGraph(addr uint32) (*cfg.Graph, error) {
	rec, err := wire.LoadGraph(p.bound, addr, true)
	if err != nil {
		return nil, err
	}
	return cfg.FromWire(p.bound, rec, true)
}

// DeliverMessages moves up to limit pending messages from q into the
// plugin's memory and returns the address of a ListHandle describing them.
// It returns 0 when q is empty.
func (p *Plugin) DeliverMessages(q *msgqueue.Queue, limit int) (uint32, error) {
	h, err := q.DrainToWire(p.bound, limit)
	if err != nil {
		return 0, err
	}
	if h.Empty() {
		return 0, nil
	}
	addr, err := p.bound.Alloc(wire.ListHandleSize, 4)
	if err != nil {
		wire.Free(p.bound, msgqueue.Codec, h)
		return 0, err
	}
	if err := wire.StoreList(p.mem, addr, h); err != nil {
		p.bound.Free(addr)
		wire.Free(p.bound, msgqueue.Codec, h)
		return 0, errors.Wrap(errors.PhasePlugin, errors.KindOutOfBounds, err, "store message list")
	}
	return addr, nil
}

// Close closes the plugin's module and unregisters it from the host.
func (p *Plugin) Close(ctx context.Context) error {
	p.host.forget(p.name)
	return p.module.Close(ctx)
}

// Package bridge is the interchange layer between a debugger engine and the
// separately compiled modules (GUI, scripting, plugins) that consume it.
//
// Nothing but bytes crosses the boundary. Collections travel as flat lists
// {count, byte_size, data_ptr} inside a linear memory, control-flow graphs as
// a two-level list of node records, and debug events through a small
// thread-safe message queue.
//
// # Architecture Overview
//
//	bridge/              Root package with Memory, Allocator and process interfaces
//	├── pool/            Slab + free-list allocator for fixed-size objects
//	├── wire/            ListHandle, element codecs, graph records, size contract
//	├── cfg/             Control-flow graph domain model
//	├── msgqueue/        Bounded/unbounded message queue, FIFO or LIFO
//	├── command/         Asynchronous command channel on top of msgqueue
//	├── patch/           Patch bookkeeping over the process memory bridge
//	├── plugin/          wazero host exposing plugin memory as a wire boundary
//	├── config/          TOML/YAML configuration
//	├── logging/         zap logger construction
//	└── errors/          Structured error types and contract violations
//
// # Quick Start
//
// Publish a graph to a consumer and read it back:
//
//	mem := memory.NewLinear(1)
//	b := wire.NewBoundary(mem, memory.NewHeap(mem))
//
//	g := cfg.New(0x1000)
//	g.AddNode(cfg.Node{Start: 0x1000, End: 0x100F, BrTrue: 0x1010})
//
//	rec, err := g.ToWire(b)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	copyOfG, err := cfg.FromWire(b, rec, true) // frees the wire buffers
//
// # Ownership
//
// Exactly one side holds a wire buffer at a time. The producer allocates
// through the boundary's single Alloc entry point and hands the handle over;
// the consumer either converts with free=true or releases with wire.Free.
//
// # Thread Safety
//
// msgqueue.Queue, command.Channel and patch.Tracker are safe for concurrent
// use. pool.Pool, wire.Boundary and cfg.Graph are single-owner; share copies,
// not instances.
package bridge

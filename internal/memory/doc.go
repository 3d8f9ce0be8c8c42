// Package memory provides the linear memories and the allocator that back
// wire buffers.
//
// Linear is a growable in-process memory for engine-internal use and tests.
// Guest adapts a wazero api.Memory so plugin memory can be used the same
// way. Heap is the designated allocator on top of either: a size-class free
// list allocator that hands out zeroed blocks and never returns offset 0.
package memory

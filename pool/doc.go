// Package pool provides an O(1) allocator for fixed-size objects of one type.
//
// A Pool carves large slabs (1024 objects by default) into slots and hands
// them out as Handles. Released slots go onto a singly linked free list whose
// link lives in the slot header, so the most recently released slot is the
// next one handed out. Slabs are never moved or released before Close, which
// keeps the pointer returned by Get stable for the life of the slot.
//
// # Handles
//
// Handle 0 is reserved and always invalid. Handles are plain integers, so
// they can travel inside a message parameter or a wire record where a raw
// pointer would be meaningless to the receiver.
//
// # Rebinding
//
// Each (element type, batch size) pair owns an independent pool because slot
// sizes differ. A Registry hands out that pool on demand:
//
//	reg := pool.NewRegistry()
//	strs := pool.Rebind[string](reg, pool.WithBatchSize(64))
//
// # Errors
//
// Growth past the configured slab limit returns a KindAllocation error.
// Misuse is a contract violation and panics: multi-element requests,
// placement hints, double free and use of a released handle.
//
// # Thread Safety
//
// Pool is NOT thread-safe. Owners that share one across goroutines (the
// message queue does) must hold their own lock around every call.
package pool

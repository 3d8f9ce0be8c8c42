// Package wire implements the flat interchange format used across module
// boundaries.
//
// A collection crosses the boundary as a ListHandle {count, byte_size,
// data_ptr} pointing at count fixed-width, pointer-free records inside a
// linear memory. Records never embed host-side containers; a variable-length
// member is itself a nested ListHandle.
//
// # Layout
//
// Record layouts are derived from WIT schemas (see ListSchema, NodeSchema,
// GraphSchema) with natural alignment:
//
//	Record       Size  Align  Fields
//	──────────────────────────────────────────────────────────────────
//	ListHandle   12    4      count:s32 size:u32 data:u32
//	NodeRecord   80    8      parent_graph start end brtrue brfalse icount:u64
//	                          terminal split:bool user_data:u64 exits:list
//	GraphRecord  32    8      entry_point user_data:u64 nodes:list
//
// Field order and width are part of the ABI; changing them breaks every
// module that crosses the boundary.
//
// # Ownership
//
// A Boundary is the single designated Alloc/Free entry point for one memory.
// The producer allocates through it (CopyData) and the handle owns the
// buffer from then on. The consumer either converts with free=true, or keeps
// the buffer and must later release it through the same boundary (Free,
// FreeGraph). Converted values are independent copies.
//
// # Contract
//
// Before interpreting data as T[count] the consumer checks
// byte_size == count * sizeof(T). A mismatch means the two sides disagree on
// the element type; it panics with an errors.KindContractViolation carrying
// the call and the expected and actual sizes rather than reading anything.
//
// # Thread Safety
//
// Boundary is NOT thread-safe, matching the memories and allocators it wraps.
package wire

// Package layout computes the memory layout of wire records.
//
// Records are described with WIT types so that every module crossing the
// boundary derives the same size, alignment and field offsets from one
// schema instead of trusting a compiler's struct packing.
//
// # Layout Rules
//
//   - Primitives: size equals alignment (u8/bool=1, u32=4, u64=8)
//   - Records: fields laid out in declaration order, each padded to its own
//     alignment; total size padded to the largest field alignment
//
// # Usage
//
//	info := layout.NewCalculator().Calculate(schema)
//	// info.Size, info.Align, info.FieldOffs available
//
// This package is internal to the bridge.
package layout

// Package abi provides low-level helpers shared by the wire format and the
// linear memory allocators: alignment, overflow-checked arithmetic and the
// hard size limits every boundary call enforces.
//
// This package is internal to the bridge.
package abi

// Package cfg models the control-flow graph of one function as owned Go
// values.
//
// A Graph maps block start addresses to Nodes and keeps a predecessor index
// derived from each node's brtrue and brfalse targets. Both are mutated only
// through AddNode, so they never disagree. Address 0 means "no target" and
// never appears in the index.
//
// Graphs are built incrementally with New and AddNode, or imported from the
// wire format with FromWire, which applies the list size contract to the
// node array and to every nested exits list.
//
// The model is permissive: terminal nodes with branch targets and split
// blocks are accepted as they appear in partially analysed functions.
//
// Graph is not safe for concurrent use. Hand another goroutine a Clone.
package cfg

package wire

import (
	"go.bytecodealliance.org/wit"

	"github.com/x64dbg/bridge/internal/layout"
)

// ListSchema describes ListHandle.
var ListSchema = layout.Record("list-info",
	layout.Field("count", wit.S32{}),
	layout.Field("size", wit.U32{}),
	layout.Field("data", wit.U32{}),
)

// NodeSchema describes NodeRecord.
var NodeSchema = layout.Record("cf-node",
	layout.Field("parent-graph", wit.U64{}),
	layout.Field("start", wit.U64{}),
	layout.Field("end", wit.U64{}),
	layout.Field("brtrue", wit.U64{}),
	layout.Field("brfalse", wit.U64{}),
	layout.Field("icount", wit.U64{}),
	layout.Field("terminal", wit.Bool{}),
	layout.Field("split", wit.Bool{}),
	layout.Field("user-data", wit.U64{}),
	layout.Field("exits", ListSchema),
)

// GraphSchema describes GraphRecord.
var GraphSchema = layout.Record("cf-graph",
	layout.Field("entry-point", wit.U64{}),
	layout.Field("user-data", wit.U64{}),
	layout.Field("nodes", ListSchema),
)

var (
	calc        = layout.NewCalculator()
	listLayout  = calc.Calculate(ListSchema)
	nodeLayout  = calc.Calculate(NodeSchema)
	graphLayout = calc.Calculate(GraphSchema)
)

// Layout computes the layout of an arbitrary record schema, for element
// types defined outside this package.
func Layout(schema wit.Type) layout.Info {
	return layout.NewCalculator().Calculate(schema)
}

var (
	// ListHandleSize is the wire size of a ListHandle.
	ListHandleSize = listLayout.Size
	// NodeRecordSize is the wire size of a NodeRecord.
	NodeRecordSize = nodeLayout.Size
	// GraphRecordSize is the wire size of a GraphRecord.
	GraphRecordSize = graphLayout.Size
)

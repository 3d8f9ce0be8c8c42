package cfg

import (
	"slices"
	"sort"
)

// Graph is a control-flow graph rooted at EntryPoint.
type Graph struct {
	EntryPoint uint64
	UserData   uint64

	nodes   map[uint64]Node
	parents map[uint64]map[uint64]struct{}
	order   []uint64
}

// New creates an empty graph rooted at entry.
func New(entry uint64) *Graph {
	return &Graph{
		EntryPoint: entry,
		nodes:      make(map[uint64]Node),
		parents:    make(map[uint64]map[uint64]struct{}),
	}
}

// AddNode inserts node, replacing any node with the same start address.
// Edges to its brtrue and brfalse targets are recorded in the predecessor
// index; edges of a replaced node are dropped first.
func (g *Graph) AddNode(node Node) {
	if old, ok := g.nodes[node.Start]; ok {
		g.removeParent(old.BrTrue, old.Start)
		g.removeParent(old.BrFalse, old.Start)
	} else {
		g.order = nil
	}
	g.nodes[node.Start] = node.clone()
	g.addParent(node.BrTrue, node.Start)
	g.addParent(node.BrFalse, node.Start)
}

func (g *Graph) addParent(child, parent uint64) {
	if child == 0 || parent == 0 {
		return
	}
	set, ok := g.parents[child]
	if !ok {
		set = make(map[uint64]struct{}, 1)
		g.parents[child] = set
	}
	set[parent] = struct{}{}
}

func (g *Graph) removeParent(child, parent uint64) {
	set, ok := g.parents[child]
	if !ok {
		return
	}
	delete(set, parent)
	if len(set) == 0 {
		delete(g.parents, child)
	}
}

// Predecessors returns the sorted start addresses of blocks branching to
// addr. The result is a copy and empty when there are none.
func (g *Graph) Predecessors(addr uint64) []uint64 {
	set := g.parents[addr]
	out := make([]uint64, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// HasPredecessor reports whether parent branches to addr.
func (g *Graph) HasPredecessor(addr, parent uint64) bool {
	_, ok := g.parents[addr][parent]
	return ok
}

// Node returns a copy of the block starting at start.
func (g *Graph) Node(start uint64) (Node, bool) {
	n, ok := g.nodes[start]
	if !ok {
		return Node{}, false
	}
	return n.clone(), true
}

// Len returns the number of blocks.
func (g *Graph) Len() int {
	return len(g.nodes)
}

func (g *Graph) starts() []uint64 {
	if g.order == nil {
		g.order = make([]uint64, 0, len(g.nodes))
		for start := range g.nodes {
			g.order = append(g.order, start)
		}
		slices.Sort(g.order)
	}
	return g.order
}

// Nodes returns copies of all blocks in ascending start order.
func (g *Graph) Nodes() []Node {
	starts := g.starts()
	out := make([]Node, len(starts))
	for i, start := range starts {
		out[i] = g.nodes[start].clone()
	}
	return out
}

// Successors returns a copy of the exits of the block starting at start.
func (g *Graph) Successors(start uint64) []uint64 {
	n, ok := g.nodes[start]
	if !ok || len(n.Exits) == 0 {
		return []uint64{}
	}
	return slices.Clone(n.Exits)
}

// NodeAt returns the block whose range contains addr.
func (g *Graph) NodeAt(addr uint64) (Node, bool) {
	starts := g.starts()
	i := sort.Search(len(starts), func(i int) bool { return starts[i] > addr })
	if i == 0 {
		return Node{}, false
	}
	n := g.nodes[starts[i-1]]
	if !n.Contains(addr) {
		return Node{}, false
	}
	return n.clone(), true
}

// Clone returns a deep copy of g.
func (g *Graph) Clone() *Graph {
	c := New(g.EntryPoint)
	c.UserData = g.UserData
	for start, n := range g.nodes {
		c.nodes[start] = n.clone()
	}
	for child, set := range g.parents {
		cs := make(map[uint64]struct{}, len(set))
		for p := range set {
			cs[p] = struct{}{}
		}
		c.parents[child] = cs
	}
	return c
}

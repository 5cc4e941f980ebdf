package genome

import (
	"nevo/internal/activation"
)

type NodeType int

const (
	TypeInput NodeType = iota
	TypeHidden
	TypeOutput
	TypeConstant
)

func (t NodeType) String() string {
	switch t {
	case TypeInput:
		return "input"
	case TypeHidden:
		return "hidden"
	case TypeOutput:
		return "output"
	case TypeConstant:
		return "constant"
	default:
		return "unknown"
	}
}

// Node is one vertex of a genome graph. Adjacency slices hold ownership-free
// references into the genome's connection lists.
type Node struct {
	Type   NodeType
	Bias   float64
	Squash activation.Func

	// BatchNorm is a structural marker reserved for future use; the
	// batch-norm mutation toggles it without changing evaluation.
	BatchNorm bool

	// Value is the last activation output, State the pre-activation sum.
	Value float64
	State float64

	// Index is the node's position in the owning genome, refreshed lazily.
	Index int

	In    []*Connection
	Out   []*Connection
	Self  []*Connection
	Gated []*Connection
}

func newNode(t NodeType) *Node {
	n := &Node{Type: t}
	switch t {
	case TypeInput, TypeConstant:
		n.Squash = activation.MustResolve("identity")
	default:
		n.Squash = activation.Default()
	}
	return n
}

// reset returns the node to pristine state so a pooled node is
// indistinguishable from a fresh allocation.
func (n *Node) reset(t NodeType) {
	*n = Node{Type: t}
	switch t {
	case TypeInput, TypeConstant:
		n.Squash = activation.MustResolve("identity")
	default:
		n.Squash = activation.Default()
	}
}

// clearRuntime drops dynamic activation state without touching structure.
func (n *Node) clearRuntime() {
	n.Value = 0
	n.State = 0
}

// nodeArena is the process-wide node free list. A node is either live inside
// exactly one genome or inert in the arena, never both. All movement happens
// on the single evolutionary goroutine between suspension points, so no lock
// is needed.
type nodeArena struct {
	free []*Node
	max  int

	Fresh    int
	Recycled int
}

var nodePool = &nodeArena{max: 256}

func (a *nodeArena) acquire(t NodeType) *Node {
	if n := len(a.free); n > 0 {
		node := a.free[n-1]
		a.free[n-1] = nil
		a.free = a.free[:n-1]
		node.reset(t)
		a.Recycled++
		return node
	}
	a.Fresh++
	return newNode(t)
}

func (a *nodeArena) release(node *Node) {
	if node == nil || len(a.free) >= a.max {
		return
	}
	node.reset(TypeHidden)
	a.free = append(a.free, node)
}

// NodePoolStats reports arena traffic for diagnostics.
func NodePoolStats() (fresh, recycled, retained int) {
	return nodePool.Fresh, nodePool.Recycled, len(nodePool.free)
}

func resetNodePoolForTests() {
	nodePool = &nodeArena{max: 256}
}

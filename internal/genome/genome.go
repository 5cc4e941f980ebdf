package genome

import (
	"errors"
	"fmt"
	"math/rand"

	"nevo/internal/config"
)

var (
	ErrNodeNotFound       = errors.New("node is not a member of this genome")
	ErrStructuralAnchor   = errors.New("input and output nodes cannot be removed")
	ErrConnectionExists   = errors.New("connection already exists")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrAlreadyGated       = errors.New("connection already has a gater")
	ErrNotGated           = errors.New("connection is not gated")
)

// Genome is one candidate network: inputs first, hidden nodes in insertion
// order, outputs in the trailing positions. Structural caches (node index,
// topological order, slab, CSR adjacency) are rebuilt lazily off dirty flags.
type Genome struct {
	InputCount  int
	OutputCount int

	Nodes     []*Node
	Conns     []*Connection
	SelfConns []*Connection
	Gates     []*Connection

	// EnforceAcyclic rejects, at the operator level, any mutation that would
	// introduce a cycle.
	EnforceAcyclic bool

	// ReenableProb is the chance a disabled connection gene is re-enabled in
	// offspring during crossover.
	ReenableProb float64

	Score  float64
	Scored bool

	// Lineage bookkeeping, stamped by the population engine.
	ID      int
	Parents []int
	Depth   int

	// Multi-objective annotations, written by non-dominated sorting.
	Rank     int
	Crowding float64

	// Fast-path eligibility inputs. Training and stochastic regularizers are
	// owned by external trainers; they stay zero in the evolutionary core.
	Training        bool
	DropoutRate     float64
	WeightNoise     float64
	StochasticDepth bool

	cfg *config.Config

	indexDirty bool
	topoDirty  bool
	slabDirty  bool
	adjDirty   bool

	topoOrder []*Node
	slab      *Slab
	actBuf    []float64
}

// New builds a minimal genome: input and output nodes with every input
// connected to every output at a random weight.
func New(inputs, outputs int, cfg *config.Config, rng *rand.Rand) *Genome {
	g := NewEmpty(inputs, outputs, cfg)
	for i := 0; i < inputs; i++ {
		for o := 0; o < outputs; o++ {
			weight := 0.0
			if rng != nil {
				weight = rng.Float64()*2 - 1
			}
			_, _ = g.Connect(g.Nodes[i], g.Nodes[inputs+o], weight)
		}
	}
	return g
}

// NewEmpty builds a genome with only its fixed input/output interface.
func NewEmpty(inputs, outputs int, cfg *config.Config) *Genome {
	g := &Genome{
		InputCount:   inputs,
		OutputCount:  outputs,
		ReenableProb: 0.25,
		cfg:          cfg.OrDefault(),
	}
	for i := 0; i < inputs; i++ {
		g.Nodes = append(g.Nodes, g.acquireNode(TypeInput))
	}
	for o := 0; o < outputs; o++ {
		g.Nodes = append(g.Nodes, g.acquireNode(TypeOutput))
	}
	g.markStructureDirty()
	return g
}

func (g *Genome) Config() *config.Config {
	return g.cfg
}

func (g *Genome) acquireNode(t NodeType) *Node {
	if g.cfg.NodePooling {
		return nodePool.acquire(t)
	}
	return newNode(t)
}

func (g *Genome) releaseNode(n *Node) {
	if g.cfg.NodePooling {
		nodePool.release(n)
	}
}

// markStructureDirty invalidates all four structural caches.
func (g *Genome) markStructureDirty() {
	g.indexDirty = true
	g.topoDirty = true
	g.slabDirty = true
	g.adjDirty = true
}

// MarkTopologyDirty flags the topology caches after an external parametric
// edit that changed evaluation order inputs.
func (g *Genome) MarkTopologyDirty() {
	g.topoDirty = true
	g.slabDirty = true
}

// ensureIndex refreshes every node's Index to its current position.
func (g *Genome) ensureIndex() {
	if !g.indexDirty {
		return
	}
	for i, n := range g.Nodes {
		n.Index = i
	}
	g.indexDirty = false
}

// IndexOf returns the node's position, or -1 for a non-member.
func (g *Genome) IndexOf(n *Node) int {
	g.ensureIndex()
	if n == nil || n.Index < 0 || n.Index >= len(g.Nodes) || g.Nodes[n.Index] != n {
		for i, candidate := range g.Nodes {
			if candidate == n {
				return i
			}
		}
		return -1
	}
	return n.Index
}

func (g *Genome) contains(n *Node) bool {
	return g.IndexOf(n) >= 0
}

// HiddenCount reports the number of hidden nodes.
func (g *Genome) HiddenCount() int {
	return len(g.Nodes) - g.InputCount - g.OutputCount
}

// Complexity is the structural size used by growth penalties.
func (g *Genome) Complexity() int {
	return g.HiddenCount() + len(g.Conns) + len(g.SelfConns) + len(g.Gates)
}

// Connect creates the edge from->to. A second edge between the same ordered
// pair is rejected; self loops land in the self-connection list.
func (g *Genome) Connect(from, to *Node, weight float64) (*Connection, error) {
	if from == nil || to == nil {
		return nil, ErrNodeNotFound
	}
	if from == to {
		if len(from.Self) > 0 {
			return nil, fmt.Errorf("%w: self loop on node %d", ErrConnectionExists, g.IndexOf(from))
		}
		conn := newConnection(from, to, weight)
		from.Self = append(from.Self, conn)
		g.SelfConns = append(g.SelfConns, conn)
		g.markStructureDirty()
		return conn, nil
	}

	for _, c := range from.Out {
		if c.To == to {
			return nil, fmt.Errorf("%w: %d->%d", ErrConnectionExists, g.IndexOf(from), g.IndexOf(to))
		}
	}

	conn := newConnection(from, to, weight)
	from.Out = append(from.Out, conn)
	to.In = append(to.In, conn)
	g.Conns = append(g.Conns, conn)
	g.markStructureDirty()
	return conn, nil
}

// Connected reports whether the ordered edge from->to exists.
func (g *Genome) Connected(from, to *Node) bool {
	if from == to {
		return len(from.Self) > 0
	}
	for _, c := range from.Out {
		if c.To == to {
			return true
		}
	}
	return false
}

// Disconnect removes the edge from->to. Gating on the edge is stripped first.
func (g *Genome) Disconnect(from, to *Node) error {
	if from == to {
		if len(from.Self) == 0 {
			return ErrConnectionNotFound
		}
		conn := from.Self[0]
		if conn.Gater != nil {
			_ = g.Ungate(conn)
		}
		from.Self = removeConn(from.Self, conn)
		g.SelfConns = removeConn(g.SelfConns, conn)
		g.markStructureDirty()
		return nil
	}

	for _, c := range from.Out {
		if c.To != to {
			continue
		}
		if c.Gater != nil {
			_ = g.Ungate(c)
		}
		from.Out = removeConn(from.Out, c)
		to.In = removeConn(to.In, c)
		g.Conns = removeConn(g.Conns, c)
		g.markStructureDirty()
		return nil
	}
	return ErrConnectionNotFound
}

// Gate installs gater as the modulator of conn.
func (g *Genome) Gate(gater *Node, conn *Connection) error {
	if !g.contains(gater) {
		return ErrNodeNotFound
	}
	if conn.Gater != nil {
		return ErrAlreadyGated
	}
	conn.Gater = gater
	gater.Gated = append(gater.Gated, conn)
	g.Gates = append(g.Gates, conn)
	g.markStructureDirty()
	return nil
}

// Ungate removes gating from conn; the connection itself survives.
func (g *Genome) Ungate(conn *Connection) error {
	if conn.Gater == nil {
		return ErrNotGated
	}
	conn.Gater.Gated = removeConn(conn.Gater.Gated, conn)
	conn.Gater = nil
	g.Gates = removeConn(g.Gates, conn)
	g.markStructureDirty()
	return nil
}

// RemoveNode deletes a hidden node and repairs connectivity by bridging every
// former inbound source to every former outbound target. Weights are not
// inherited and gating is not restored on the bridge edges.
func (g *Genome) RemoveNode(node *Node) error {
	idx := g.IndexOf(node)
	if idx < 0 {
		return ErrNodeNotFound
	}
	if node.Type == TypeInput || node.Type == TypeOutput {
		return fmt.Errorf("%w: node %d is %s", ErrStructuralAnchor, idx, node.Type)
	}

	// Connections gated by this node become ungated, not deleted.
	for len(node.Gated) > 0 {
		_ = g.Ungate(node.Gated[0])
	}

	sources := make([]*Node, 0, len(node.In))
	for _, c := range node.In {
		sources = append(sources, c.From)
	}
	targets := make([]*Node, 0, len(node.Out))
	for _, c := range node.Out {
		targets = append(targets, c.To)
	}

	for len(node.In) > 0 {
		_ = g.Disconnect(node.In[0].From, node)
	}
	for len(node.Out) > 0 {
		_ = g.Disconnect(node, node.Out[0].To)
	}
	for len(node.Self) > 0 {
		_ = g.Disconnect(node, node)
	}

	g.Nodes = append(g.Nodes[:idx], g.Nodes[idx+1:]...)

	for _, from := range sources {
		for _, to := range targets {
			if from == to || g.Connected(from, to) {
				continue
			}
			_, _ = g.Connect(from, to, 1)
		}
	}

	g.releaseNode(node)
	g.markStructureDirty()
	return nil
}

// InsertHiddenNode places a fresh hidden node at position pos, clamped into
// the hidden span between the input and output sections.
func (g *Genome) InsertHiddenNode(pos int) *Node {
	if pos < g.InputCount {
		pos = g.InputCount
	}
	if limit := len(g.Nodes) - g.OutputCount; pos > limit {
		pos = limit
	}
	node := g.acquireNode(TypeHidden)
	g.Nodes = append(g.Nodes[:pos], append([]*Node{node}, g.Nodes[pos:]...)...)
	g.markStructureDirty()
	return node
}

// ReplaceStructure moves other's nodes and connections into g in place,
// keeping g's identity and score bookkeeping. other must not be used after.
func (g *Genome) ReplaceStructure(other *Genome) {
	g.InputCount = other.InputCount
	g.OutputCount = other.OutputCount
	g.Nodes = other.Nodes
	g.Conns = other.Conns
	g.SelfConns = other.SelfConns
	g.Gates = other.Gates
	g.EnforceAcyclic = other.EnforceAcyclic
	g.markStructureDirty()
}

// ClearState resets every node's dynamic activation state.
func (g *Genome) ClearState() {
	for _, n := range g.Nodes {
		n.clearRuntime()
	}
}

// Clone deep-copies the genome, preserving structure, gating and lineage.
func (g *Genome) Clone() *Genome {
	out := &Genome{
		InputCount:     g.InputCount,
		OutputCount:    g.OutputCount,
		EnforceAcyclic: g.EnforceAcyclic,
		ReenableProb:   g.ReenableProb,
		Score:          g.Score,
		Scored:         g.Scored,
		ID:             g.ID,
		Parents:        append([]int(nil), g.Parents...),
		Depth:          g.Depth,
		cfg:            g.cfg,
	}

	byOld := make(map[*Node]*Node, len(g.Nodes))
	for _, n := range g.Nodes {
		copied := g.acquireNode(n.Type)
		copied.Bias = n.Bias
		copied.Squash = n.Squash
		copied.BatchNorm = n.BatchNorm
		byOld[n] = copied
		out.Nodes = append(out.Nodes, copied)
	}

	copyConn := func(c *Connection) *Connection {
		conn, err := out.Connect(byOld[c.From], byOld[c.To], c.Weight)
		if err != nil {
			return nil
		}
		conn.Gain = c.Gain
		conn.Enabled = c.Enabled
		conn.Plasticity = c.Plasticity
		conn.DropMask = c.DropMask
		if c.Gater != nil {
			_ = out.Gate(byOld[c.Gater], conn)
		}
		return conn
	}
	for _, c := range g.Conns {
		copyConn(c)
	}
	for _, c := range g.SelfConns {
		copyConn(c)
	}

	out.markStructureDirty()
	return out
}

func removeConn(list []*Connection, conn *Connection) []*Connection {
	for i, c := range list {
		if c == conn {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

package mutation

import (
	"math/rand"

	"nevo/internal/activation"
	"nevo/internal/genome"
)

// AddNode splits a random connection A->B into A->H->B. H receives a freshly
// mutated activation; a gater on the original edge moves to one of the two
// new edges uniformly at random.
type AddNode struct{}

func (AddNode) Name() string { return "ADD_NODE" }

func (AddNode) Apply(rng *rand.Rand, g *genome.Genome) error {
	if g.Config().DeterministicChainMode {
		return chainSplit(rng, g)
	}
	if len(g.Conns) == 0 {
		return ErrNoChoice
	}
	conn := g.Conns[rng.Intn(len(g.Conns))]
	return splitConnection(rng, g, conn, randomSquash(rng, ""))
}

func splitConnection(rng *rand.Rand, g *genome.Genome, conn *genome.Connection, squash activation.Func) error {
	from, to := conn.From, conn.To
	weight := conn.Weight
	gater := conn.Gater
	if gater != nil {
		_ = g.Ungate(conn)
	}
	if err := g.Disconnect(from, to); err != nil {
		return err
	}

	node := g.InsertHiddenNode(g.IndexOf(to))
	node.Squash = squash

	first, err := g.Connect(from, node, 1)
	if err != nil {
		return err
	}
	second, err := g.Connect(node, to, weight)
	if err != nil {
		return err
	}
	if gater != nil {
		target := first
		if rng.Intn(2) == 1 {
			target = second
		}
		_ = g.Gate(gater, target)
	}
	return nil
}

func randomSquash(rng *rand.Rand, current string) activation.Func {
	pool := activation.MutationPool()
	choices := pool[:0:0]
	for _, name := range pool {
		if name != current {
			choices = append(choices, name)
		}
	}
	if len(choices) == 0 {
		return activation.Default()
	}
	return activation.MustResolve(choices[rng.Intn(len(choices))])
}

// chainSplit is the deterministic test-mode variant: it always extends the
// canonical first-input to first-output chain by splitting the chain's final
// edge, pruning any side edges off chain nodes so exactly one terminal edge
// exists per chain node.
func chainSplit(rng *rand.Rand, g *genome.Genome) error {
	if g.InputCount == 0 || g.OutputCount == 0 {
		return ErrNoChoice
	}
	cur := g.Nodes[0]
	output := g.Nodes[len(g.Nodes)-g.OutputCount]

	var last *genome.Connection
	for cur != output {
		if len(cur.Out) == 0 {
			conn, err := g.Connect(cur, output, 1)
			if err != nil {
				return err
			}
			last = conn
			break
		}
		for len(cur.Out) > 1 {
			side := cur.Out[len(cur.Out)-1]
			if err := g.Disconnect(side.From, side.To); err != nil {
				return err
			}
		}
		last = cur.Out[0]
		cur = last.To
	}
	if last == nil {
		return ErrNoChoice
	}
	return splitConnection(rng, g, last, activation.Default())
}

// SubNode removes one random hidden node, then nudges the first remaining
// connection's weight so the edit is observable downstream.
type SubNode struct{}

func (SubNode) Name() string { return "SUB_NODE" }

func (SubNode) Apply(rng *rand.Rand, g *genome.Genome) error {
	hidden := hiddenNodes(g)
	if len(hidden) == 0 {
		return ErrNoChoice
	}
	if err := g.RemoveNode(hidden[rng.Intn(len(hidden))]); err != nil {
		return err
	}
	if len(g.Conns) > 0 {
		g.Conns[0].Weight += 1e-6
	}
	return nil
}

// AddConn connects one random strictly-forward unconnected pair.
type AddConn struct{}

func (AddConn) Name() string { return "ADD_CONN" }

func (AddConn) Apply(rng *rand.Rand, g *genome.Genome) error {
	type pair struct{ from, to *genome.Node }
	candidates := make([]pair, 0)
	limit := len(g.Nodes) - g.OutputCount
	for i := 0; i < limit; i++ {
		from := g.Nodes[i]
		start := i + 1
		if start < g.InputCount {
			start = g.InputCount
		}
		for j := start; j < len(g.Nodes); j++ {
			to := g.Nodes[j]
			if !g.Connected(from, to) {
				candidates = append(candidates, pair{from, to})
			}
		}
	}
	if len(candidates) == 0 {
		return ErrNoChoice
	}
	chosen := candidates[rng.Intn(len(candidates))]
	_, err := g.Connect(chosen.from, chosen.to, uniform(rng, -1, 1))
	return err
}

// SubConn removes one forward connection whose removal strands neither
// endpoint and leaves a covering path between the endpoint's layer peers.
// The covering check is a structural redundancy heuristic, not a formal
// disconnection guarantee.
type SubConn struct{}

func (SubConn) Name() string { return "SUB_CONN" }

func (SubConn) Apply(rng *rand.Rand, g *genome.Genome) error {
	candidates := make([]*genome.Connection, 0)
	for _, c := range g.Conns {
		if len(c.From.Out) <= 1 || len(c.To.In) <= 1 {
			continue
		}
		if g.IndexOf(c.To) <= g.IndexOf(c.From) {
			continue
		}
		if !hasCoveringConnection(g, c) {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return ErrNoChoice
	}
	conn := candidates[rng.Intn(len(candidates))]
	return g.Disconnect(conn.From, conn.To)
}

// hasCoveringConnection reports whether another edge spans at least the same
// ordered index interval, approximating layer-wise connectivity.
func hasCoveringConnection(g *genome.Genome, conn *genome.Connection) bool {
	fromIdx := g.IndexOf(conn.From)
	toIdx := g.IndexOf(conn.To)
	for _, other := range g.Conns {
		if other == conn {
			continue
		}
		if g.IndexOf(other.From) <= fromIdx && g.IndexOf(other.To) >= toIdx {
			return true
		}
	}
	return false
}

// ModWeight perturbs one random connection weight by a uniform delta.
type ModWeight struct {
	Min float64
	Max float64
}

func (ModWeight) Name() string { return "MOD_WEIGHT" }

func (o ModWeight) Apply(rng *rand.Rand, g *genome.Genome) error {
	pool := allConns(g)
	if len(pool) == 0 {
		return ErrNoChoice
	}
	min, max := o.Min, o.Max
	if min == 0 && max == 0 {
		min, max = -1, 1
	}
	pool[rng.Intn(len(pool))].Weight += uniform(rng, min, max)
	return nil
}

// ModBias perturbs one random eligible node's bias.
type ModBias struct {
	Min          float64
	Max          float64
	MutateOutput bool
}

func (ModBias) Name() string { return "MOD_BIAS" }

func (o ModBias) Apply(rng *rand.Rand, g *genome.Genome) error {
	nodes := eligibleNodes(g, o.MutateOutput)
	if len(nodes) == 0 {
		return ErrNoChoice
	}
	min, max := o.Min, o.Max
	if min == 0 && max == 0 {
		min, max = -1, 1
	}
	nodes[rng.Intn(len(nodes))].Bias += uniform(rng, min, max)
	return nil
}

// ModActivation swaps one random eligible node's squash for a different one.
type ModActivation struct {
	MutateOutput bool
}

func (ModActivation) Name() string { return "MOD_ACTIVATION" }

func (o ModActivation) Apply(rng *rand.Rand, g *genome.Genome) error {
	nodes := eligibleNodes(g, o.MutateOutput)
	if len(nodes) == 0 {
		return ErrNoChoice
	}
	node := nodes[rng.Intn(len(nodes))]
	node.Squash = randomSquash(rng, node.Squash.Name)
	return nil
}

// AddSelfConn adds a self loop to a random eligible node.
type AddSelfConn struct{}

func (AddSelfConn) Name() string { return "ADD_SELF_CONN" }

func (AddSelfConn) Apply(rng *rand.Rand, g *genome.Genome) error {
	if g.EnforceAcyclic {
		return ErrAcyclic
	}
	candidates := make([]*genome.Node, 0)
	for _, n := range eligibleNodes(g, true) {
		if len(n.Self) == 0 {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return ErrNoChoice
	}
	node := candidates[rng.Intn(len(candidates))]
	_, err := g.Connect(node, node, uniform(rng, -1, 1))
	return err
}

// SubSelfConn removes one random self loop.
type SubSelfConn struct{}

func (SubSelfConn) Name() string { return "SUB_SELF_CONN" }

func (SubSelfConn) Apply(rng *rand.Rand, g *genome.Genome) error {
	if len(g.SelfConns) == 0 {
		return ErrNoChoice
	}
	conn := g.SelfConns[rng.Intn(len(g.SelfConns))]
	return g.Disconnect(conn.From, conn.To)
}

// AddGate installs a random eligible node as gater of a random ungated
// connection.
type AddGate struct{}

func (AddGate) Name() string { return "ADD_GATE" }

func (AddGate) Apply(rng *rand.Rand, g *genome.Genome) error {
	ungated := make([]*genome.Connection, 0)
	for _, c := range allConns(g) {
		if c.Gater == nil {
			ungated = append(ungated, c)
		}
	}
	gaters := eligibleNodes(g, true)
	if len(ungated) == 0 || len(gaters) == 0 {
		return ErrNoChoice
	}
	return g.Gate(gaters[rng.Intn(len(gaters))], ungated[rng.Intn(len(ungated))])
}

// SubGate removes gating from one random gated connection.
type SubGate struct{}

func (SubGate) Name() string { return "SUB_GATE" }

func (SubGate) Apply(rng *rand.Rand, g *genome.Genome) error {
	if len(g.Gates) == 0 {
		return ErrNoChoice
	}
	return g.Ungate(g.Gates[rng.Intn(len(g.Gates))])
}

// AddBackConn connects one random strictly-backward unconnected pair.
type AddBackConn struct{}

func (AddBackConn) Name() string { return "ADD_BACK_CONN" }

func (AddBackConn) Apply(rng *rand.Rand, g *genome.Genome) error {
	if g.EnforceAcyclic {
		return ErrAcyclic
	}
	type pair struct{ from, to *genome.Node }
	candidates := make([]pair, 0)
	for i := g.InputCount; i < len(g.Nodes); i++ {
		from := g.Nodes[i]
		for j := g.InputCount; j < i; j++ {
			to := g.Nodes[j]
			if !g.Connected(from, to) {
				candidates = append(candidates, pair{from, to})
			}
		}
	}
	if len(candidates) == 0 {
		return ErrNoChoice
	}
	chosen := candidates[rng.Intn(len(candidates))]
	_, err := g.Connect(chosen.from, chosen.to, uniform(rng, -1, 1))
	return err
}

// SubBackConn removes one backward connection whose endpoints stay attached.
type SubBackConn struct{}

func (SubBackConn) Name() string { return "SUB_BACK_CONN" }

func (SubBackConn) Apply(rng *rand.Rand, g *genome.Genome) error {
	candidates := make([]*genome.Connection, 0)
	for _, c := range g.Conns {
		if g.IndexOf(c.From) <= g.IndexOf(c.To) {
			continue
		}
		if len(c.From.Out) <= 1 || len(c.To.In) <= 1 {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return ErrNoChoice
	}
	conn := candidates[rng.Intn(len(candidates))]
	return g.Disconnect(conn.From, conn.To)
}

// SwapNodes exchanges bias and squash between two distinct eligible nodes.
type SwapNodes struct {
	MutateOutput bool
}

func (SwapNodes) Name() string { return "SWAP_NODES" }

func (o SwapNodes) Apply(rng *rand.Rand, g *genome.Genome) error {
	nodes := eligibleNodes(g, o.MutateOutput)
	if len(nodes) < 2 {
		return ErrNoChoice
	}
	i := rng.Intn(len(nodes))
	j := rng.Intn(len(nodes) - 1)
	if j >= i {
		j++
	}
	a, b := nodes[i], nodes[j]
	a.Bias, b.Bias = b.Bias, a.Bias
	a.Squash, b.Squash = b.Squash, a.Squash
	return nil
}

// ReinitWeight resamples every incident connection weight of one random
// non-input node.
type ReinitWeight struct {
	Min float64
	Max float64
}

func (ReinitWeight) Name() string { return "REINIT_WEIGHT" }

func (o ReinitWeight) Apply(rng *rand.Rand, g *genome.Genome) error {
	nodes := eligibleNodes(g, true)
	if len(nodes) == 0 {
		return ErrNoChoice
	}
	min, max := o.Min, o.Max
	if min == 0 && max == 0 {
		min, max = -1, 1
	}
	node := nodes[rng.Intn(len(nodes))]
	for _, c := range node.In {
		c.Weight = uniform(rng, min, max)
	}
	for _, c := range node.Out {
		c.Weight = uniform(rng, min, max)
	}
	for _, c := range node.Self {
		c.Weight = uniform(rng, min, max)
	}
	return nil
}

// BatchNorm tags a random hidden node. Structural marker only; evaluation is
// unchanged.
type BatchNorm struct{}

func (BatchNorm) Name() string { return "BATCH_NORM" }

func (BatchNorm) Apply(rng *rand.Rand, g *genome.Genome) error {
	hidden := hiddenNodes(g)
	if len(hidden) == 0 {
		return ErrNoChoice
	}
	hidden[rng.Intn(len(hidden))].BatchNorm = true
	return nil
}

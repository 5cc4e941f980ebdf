package genome

// fastPathEligible is the strict predicate guarding the slab-backed forward
// pass: topological streaming is only exact for acyclic, ungated networks
// with no self loops and no stochastic regularization active. Every edge must
// also point forward in node order, because the general pass evaluates nodes
// in that order and the two paths only agree when it is itself topological.
func (g *Genome) fastPathEligible() bool {
	if g.Training ||
		!g.EnforceAcyclic ||
		len(g.Gates) != 0 ||
		len(g.SelfConns) != 0 ||
		g.DropoutRate != 0 ||
		g.WeightNoise != 0 ||
		g.StochasticDepth {
		return false
	}
	g.ensureIndex()
	for _, c := range g.Conns {
		if c.From.Index >= c.To.Index {
			return false
		}
	}
	return true
}

// FastSlabActivate runs the slab-backed forward pass when eligible and falls
// back transparently to the general object-graph path otherwise. Both paths
// produce the same output for any eligible network.
func (g *Genome) FastSlabActivate(input []float64) []float64 {
	if !g.fastPathEligible() {
		return g.Activate(input)
	}
	order, err := g.TopoOrder()
	if err != nil {
		return g.Activate(input)
	}
	g.RebuildConnectionSlab(false)
	g.rebuildAdjacency()
	s := g.slab
	if s == nil || s.OutStart == nil {
		return g.Activate(input)
	}

	if len(g.actBuf) < len(g.Nodes) {
		g.actBuf = make([]float64, len(g.Nodes))
	}
	buf := g.actBuf[:len(g.Nodes)]
	for i := range buf {
		buf[i] = 0
	}

	for _, n := range order {
		idx := n.Index
		var v float64
		if n.Type == TypeInput {
			if idx < len(input) {
				v = input[idx]
			}
			n.State = v
		} else if n.Type == TypeConstant {
			n.State = n.Bias
			v = g.round(n.Squash.Eval(n.State))
		} else {
			n.State = buf[idx] + n.Bias
			v = g.round(n.Squash.Eval(n.State))
		}
		n.Value = v

		for j := s.OutStart[idx]; j < s.OutStart[idx+1]; j++ {
			e := s.OutOrder[j]
			flags := s.Flags[e]
			if flags&FlagEnabled == 0 || flags&FlagDropMask != 0 {
				continue
			}
			w := s.Weights[e]
			if s.Gain != nil {
				w *= s.Gain[e]
			}
			buf[s.To[e]] += v * w
		}
	}

	out := make([]float64, 0, g.OutputCount)
	for _, n := range g.Nodes[len(g.Nodes)-g.OutputCount:] {
		out = append(out, n.Value)
	}
	return out
}

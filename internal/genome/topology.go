package genome

import "errors"

var ErrCyclic = errors.New("genome contains a cycle")

// TopoOrder returns the nodes in topological order over the ordinary
// (non-self) connections. Self loops are excluded; a cycle among the
// remaining edges fails with ErrCyclic and leaves the cache dirty.
func (g *Genome) TopoOrder() ([]*Node, error) {
	if !g.topoDirty && g.topoOrder != nil {
		return g.topoOrder, nil
	}
	g.ensureIndex()

	inDegree := make([]int, len(g.Nodes))
	for _, c := range g.Conns {
		inDegree[c.To.Index]++
	}

	queue := make([]*Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if inDegree[n.Index] == 0 {
			queue = append(queue, n)
		}
	}

	order := make([]*Node, 0, len(g.Nodes))
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, c := range n.Out {
			inDegree[c.To.Index]--
			if inDegree[c.To.Index] == 0 {
				queue = append(queue, c.To)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, ErrCyclic
	}
	g.topoOrder = order
	g.topoDirty = false
	return order, nil
}

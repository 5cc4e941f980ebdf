package mutation

import (
	"errors"
	"math/rand"

	"nevo/internal/genome"
)

var (
	// ErrNoChoice signals an empty candidate set; dispatch treats it as a
	// soft no-op, never a fatal error.
	ErrNoChoice = errors.New("no eligible mutation choice")

	// ErrAcyclic signals an operator that cannot run on a genome enforcing
	// acyclicity.
	ErrAcyclic = errors.New("operator rejected under acyclic enforcement")
)

// Operator applies one in-place structural or parametric edit to a genome.
type Operator interface {
	Name() string
	Apply(rng *rand.Rand, g *genome.Genome) error
}

// eligibleNodes filters the genome's nodes: inputs are never eligible,
// outputs only when includeOutput is set.
func eligibleNodes(g *genome.Genome, includeOutput bool) []*genome.Node {
	out := make([]*genome.Node, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		switch n.Type {
		case genome.TypeInput, genome.TypeConstant:
			continue
		case genome.TypeOutput:
			if !includeOutput {
				continue
			}
		}
		out = append(out, n)
	}
	return out
}

func hiddenNodes(g *genome.Genome) []*genome.Node {
	out := make([]*genome.Node, 0, g.HiddenCount())
	for _, n := range g.Nodes {
		if n.Type == genome.TypeHidden {
			out = append(out, n)
		}
	}
	return out
}

// allConns returns ordinary plus self connections.
func allConns(g *genome.Genome) []*genome.Connection {
	out := make([]*genome.Connection, 0, len(g.Conns)+len(g.SelfConns))
	out = append(out, g.Conns...)
	out = append(out, g.SelfConns...)
	return out
}

func uniform(rng *rand.Rand, min, max float64) float64 {
	return min + rng.Float64()*(max-min)
}

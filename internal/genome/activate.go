package genome

import (
	"fmt"
)

// Sample is one labeled dataset row.
type Sample struct {
	Input  []float64 `json:"input"`
	Output []float64 `json:"output"`
}

// CostFunc scores prediction error; lower is better.
type CostFunc func(targets, outputs []float64) float64

// MSE is the default cost.
func MSE(targets, outputs []float64) float64 {
	if len(targets) == 0 {
		return 0
	}
	total := 0.0
	for i := range targets {
		d := targets[i] - outputs[i]
		total += d * d
	}
	return total / float64(len(targets))
}

// Activate runs the general object-graph forward pass. Nodes are evaluated in
// genome order; self loops feed the previous pre-activation state, gaters
// multiply the effective signal of gated connections.
func (g *Genome) Activate(input []float64) []float64 {
	inputIdx := 0
	for _, n := range g.Nodes {
		switch n.Type {
		case TypeInput:
			if inputIdx < len(input) {
				n.Value = input[inputIdx]
			} else {
				n.Value = 0
			}
			n.State = n.Value
			inputIdx++
		case TypeConstant:
			n.State = n.Bias
			n.Value = g.round(n.Squash.Eval(n.State))
		default:
			prev := n.State
			state := n.Bias
			for _, c := range n.Self {
				if !c.Enabled || c.DropMask {
					continue
				}
				state += prev * g.effectiveWeight(c)
			}
			for _, c := range n.In {
				if !c.Enabled || c.DropMask {
					continue
				}
				state += c.From.Value * g.effectiveWeight(c)
			}
			n.State = state
			n.Value = g.round(n.Squash.Eval(state))
		}
	}

	out := make([]float64, 0, g.OutputCount)
	for _, n := range g.Nodes[len(g.Nodes)-g.OutputCount:] {
		out = append(out, n.Value)
	}
	return out
}

func (g *Genome) effectiveWeight(c *Connection) float64 {
	w := c.Weight * c.Gain
	if c.Gater != nil {
		w *= c.Gater.Value
	}
	return w
}

func (g *Genome) round(v float64) float64 {
	if g.cfg.Float32Weights {
		return float64(float32(v))
	}
	return v
}

// Test scores the genome against a labeled dataset with the given cost,
// defaulting to mean squared error.
func (g *Genome) Test(dataset []Sample, cost CostFunc) (float64, error) {
	if cost == nil {
		cost = MSE
	}
	if len(dataset) == 0 {
		return 0, fmt.Errorf("dataset must not be empty")
	}
	total := 0.0
	for i, sample := range dataset {
		if len(sample.Input) != g.InputCount || len(sample.Output) != g.OutputCount {
			return 0, fmt.Errorf("dataset sample %d shape mismatch: input=%d/%d output=%d/%d",
				i, len(sample.Input), g.InputCount, len(sample.Output), g.OutputCount)
		}
		out := g.Activate(sample.Input)
		total += cost(sample.Output, out)
	}
	return total / float64(len(dataset)), nil
}

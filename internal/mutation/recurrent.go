package mutation

import (
	"math/rand"

	"nevo/internal/activation"
	"nevo/internal/genome"
)

// AddLSTMNode replaces one random connection with a minimal single-unit LSTM
// block: input, forget and output gates around a self-connected memory cell.
// The original gater, if any, moves to the block's final outgoing edge.
type AddLSTMNode struct{}

func (AddLSTMNode) Name() string { return "ADD_LSTM_NODE" }

func (AddLSTMNode) Apply(rng *rand.Rand, g *genome.Genome) error {
	if g.EnforceAcyclic {
		return ErrAcyclic
	}
	if len(g.Conns) == 0 {
		return ErrNoChoice
	}
	conn := g.Conns[rng.Intn(len(g.Conns))]
	from, to := conn.From, conn.To
	gater := conn.Gater
	if gater != nil {
		_ = g.Ungate(conn)
	}
	if err := g.Disconnect(from, to); err != nil {
		return err
	}

	pos := g.IndexOf(to)
	logistic := activation.MustResolve("logistic")
	inputGate := g.InsertHiddenNode(pos)
	inputGate.Squash = logistic
	inputGate.Bias = 1
	forgetGate := g.InsertHiddenNode(pos + 1)
	forgetGate.Squash = logistic
	forgetGate.Bias = 1
	cell := g.InsertHiddenNode(pos + 2)
	cell.Squash = activation.MustResolve("tanh")
	outputGate := g.InsertHiddenNode(pos + 3)
	outputGate.Squash = logistic
	outputGate.Bias = 1

	if _, err := g.Connect(from, inputGate, 1); err != nil {
		return err
	}
	if _, err := g.Connect(from, forgetGate, 1); err != nil {
		return err
	}
	if _, err := g.Connect(from, outputGate, 1); err != nil {
		return err
	}
	gatedIn, err := g.Connect(from, cell, conn.Weight)
	if err != nil {
		return err
	}
	_ = g.Gate(inputGate, gatedIn)

	memory, err := g.Connect(cell, cell, 1)
	if err != nil {
		return err
	}
	_ = g.Gate(forgetGate, memory)

	final, err := g.Connect(cell, to, 1)
	if err != nil {
		return err
	}
	if gater != nil {
		_ = g.Gate(gater, final)
	} else {
		_ = g.Gate(outputGate, final)
	}
	return nil
}

// AddGRUNode replaces one random connection with a minimal single-unit GRU
// block: update and reset gates around a self-connected candidate node.
type AddGRUNode struct{}

func (AddGRUNode) Name() string { return "ADD_GRU_NODE" }

func (AddGRUNode) Apply(rng *rand.Rand, g *genome.Genome) error {
	if g.EnforceAcyclic {
		return ErrAcyclic
	}
	if len(g.Conns) == 0 {
		return ErrNoChoice
	}
	conn := g.Conns[rng.Intn(len(g.Conns))]
	from, to := conn.From, conn.To
	gater := conn.Gater
	if gater != nil {
		_ = g.Ungate(conn)
	}
	if err := g.Disconnect(from, to); err != nil {
		return err
	}

	pos := g.IndexOf(to)
	logistic := activation.MustResolve("logistic")
	updateGate := g.InsertHiddenNode(pos)
	updateGate.Squash = logistic
	updateGate.Bias = 1
	resetGate := g.InsertHiddenNode(pos + 1)
	resetGate.Squash = logistic
	candidate := g.InsertHiddenNode(pos + 2)
	candidate.Squash = activation.MustResolve("tanh")

	if _, err := g.Connect(from, updateGate, 1); err != nil {
		return err
	}
	if _, err := g.Connect(from, resetGate, 1); err != nil {
		return err
	}
	gatedIn, err := g.Connect(from, candidate, conn.Weight)
	if err != nil {
		return err
	}
	_ = g.Gate(resetGate, gatedIn)

	memory, err := g.Connect(candidate, candidate, 1)
	if err != nil {
		return err
	}
	_ = g.Gate(updateGate, memory)

	final, err := g.Connect(candidate, to, 1)
	if err != nil {
		return err
	}
	if gater != nil {
		_ = g.Gate(gater, final)
	}
	return nil
}

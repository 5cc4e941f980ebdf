package genome

import (
	"fmt"

	"nevo/internal/activation"
	"nevo/internal/config"
)

// Snapshot is the plain serializable projection of a genome's structural
// arrays. Runtime activation state and caches are not part of it.
type Snapshot struct {
	Inputs         int            `json:"inputs"`
	Outputs        int            `json:"outputs"`
	EnforceAcyclic bool           `json:"enforce_acyclic,omitempty"`
	ReenableProb   float64        `json:"reenable_prob,omitempty"`
	Nodes          []NodeSnapshot `json:"nodes"`
	Conns          []ConnSnapshot `json:"conns"`
}

type NodeSnapshot struct {
	Type      string  `json:"type"`
	Bias      float64 `json:"bias"`
	Squash    string  `json:"squash"`
	BatchNorm bool    `json:"batch_norm,omitempty"`
}

// ConnSnapshot encodes one connection by endpoint indices. Gater is -1 for
// ungated connections; From == To marks a self loop.
type ConnSnapshot struct {
	From       int     `json:"from"`
	To         int     `json:"to"`
	Weight     float64 `json:"weight"`
	Gain       float64 `json:"gain"`
	Plasticity float64 `json:"plasticity,omitempty"`
	Enabled    bool    `json:"enabled"`
	Gater      int     `json:"gater"`
}

// Snapshot captures the genome's structure.
func (g *Genome) Snapshot() Snapshot {
	g.ensureIndex()
	snap := Snapshot{
		Inputs:         g.InputCount,
		Outputs:        g.OutputCount,
		EnforceAcyclic: g.EnforceAcyclic,
		ReenableProb:   g.ReenableProb,
	}
	for _, n := range g.Nodes {
		snap.Nodes = append(snap.Nodes, NodeSnapshot{
			Type:      n.Type.String(),
			Bias:      n.Bias,
			Squash:    n.Squash.Name,
			BatchNorm: n.BatchNorm,
		})
	}
	encode := func(c *Connection) {
		cs := ConnSnapshot{
			From:       c.From.Index,
			To:         c.To.Index,
			Weight:     c.Weight,
			Gain:       c.Gain,
			Plasticity: c.Plasticity,
			Enabled:    c.Enabled,
			Gater:      -1,
		}
		if c.Gater != nil {
			cs.Gater = c.Gater.Index
		}
		snap.Conns = append(snap.Conns, cs)
	}
	for _, c := range g.Conns {
		encode(c)
	}
	for _, c := range g.SelfConns {
		encode(c)
	}
	return snap
}

// FromSnapshot reconstructs a genome from its serialized structure.
func FromSnapshot(snap Snapshot, cfg *config.Config) (*Genome, error) {
	if snap.Inputs <= 0 || snap.Outputs <= 0 {
		return nil, fmt.Errorf("snapshot needs positive input/output counts, got %dx%d", snap.Inputs, snap.Outputs)
	}
	if len(snap.Nodes) < snap.Inputs+snap.Outputs {
		return nil, fmt.Errorf("snapshot has %d nodes, need at least %d", len(snap.Nodes), snap.Inputs+snap.Outputs)
	}

	g := &Genome{
		InputCount:     snap.Inputs,
		OutputCount:    snap.Outputs,
		EnforceAcyclic: snap.EnforceAcyclic,
		ReenableProb:   snap.ReenableProb,
		cfg:            cfg.OrDefault(),
	}
	if g.ReenableProb == 0 {
		g.ReenableProb = 0.25
	}

	for i, ns := range snap.Nodes {
		var t NodeType
		switch ns.Type {
		case "input":
			t = TypeInput
		case "hidden":
			t = TypeHidden
		case "output":
			t = TypeOutput
		case "constant":
			t = TypeConstant
		default:
			return nil, fmt.Errorf("snapshot node %d has unknown type %q", i, ns.Type)
		}
		node := g.acquireNode(t)
		node.Bias = ns.Bias
		node.BatchNorm = ns.BatchNorm
		if ns.Squash != "" {
			fn, err := activation.Resolve(ns.Squash)
			if err != nil {
				return nil, fmt.Errorf("snapshot node %d: %w", i, err)
			}
			node.Squash = fn
		}
		g.Nodes = append(g.Nodes, node)
	}

	for i, cs := range snap.Conns {
		if cs.From < 0 || cs.From >= len(g.Nodes) || cs.To < 0 || cs.To >= len(g.Nodes) {
			return nil, fmt.Errorf("snapshot connection %d has endpoints out of range", i)
		}
		conn, err := g.Connect(g.Nodes[cs.From], g.Nodes[cs.To], cs.Weight)
		if err != nil {
			return nil, fmt.Errorf("snapshot connection %d: %w", i, err)
		}
		conn.Gain = cs.Gain
		if conn.Gain == 0 {
			conn.Gain = 1
		}
		conn.Plasticity = cs.Plasticity
		conn.Enabled = cs.Enabled
		if cs.Gater >= 0 {
			if cs.Gater >= len(g.Nodes) {
				return nil, fmt.Errorf("snapshot connection %d has gater out of range", i)
			}
			if err := g.Gate(g.Nodes[cs.Gater], conn); err != nil {
				return nil, fmt.Errorf("snapshot connection %d: %w", i, err)
			}
		}
	}

	g.markStructureDirty()
	return g, nil
}

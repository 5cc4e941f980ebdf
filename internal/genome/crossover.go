package genome

import (
	"fmt"
	"math/rand"
	"sort"
)

type connGene struct {
	from       int
	to         int
	weight     float64
	gain       float64
	plasticity float64
	enabled    bool
	gater      int
}

// Crossover produces one offspring from two parents. Node genes are aligned
// positionally (inputs from parent A, outputs from the tail of each parent's
// node list), connection genes by innovation key. Materialization enforces a
// strict feed-forward invariant: genes whose endpoints fall outside the
// offspring, or whose from index is not strictly below the to index, are
// dropped. All randomness draws from the supplied seeded source.
func Crossover(rng *rand.Rand, a, b *Genome, equal bool) (*Genome, error) {
	if a.InputCount != b.InputCount || a.OutputCount != b.OutputCount {
		return nil, fmt.Errorf("crossover parents are incompatible: %dx%d vs %dx%d",
			a.InputCount, a.OutputCount, b.InputCount, b.OutputCount)
	}

	scoreA, scoreB := 0.0, 0.0
	if a.Scored {
		scoreA = a.Score
	}
	if b.Scored {
		scoreB = b.Score
	}
	tied := equal || scoreA == scoreB

	size := len(a.Nodes)
	if tied {
		lo, hi := len(a.Nodes), len(b.Nodes)
		if lo > hi {
			lo, hi = hi, lo
		}
		size = lo + rng.Intn(hi-lo+1)
	} else if scoreB > scoreA {
		size = len(b.Nodes)
	}
	if minSize := a.InputCount + a.OutputCount; size < minSize {
		size = minSize
	}

	a.ensureIndex()
	b.ensureIndex()

	offspring := &Genome{
		InputCount:     a.InputCount,
		OutputCount:    a.OutputCount,
		EnforceAcyclic: a.EnforceAcyclic || b.EnforceAcyclic,
		ReenableProb:   a.ReenableProb,
		cfg:            a.cfg,
	}

	pickNode := func(pos int) *Node {
		fromA := nodeAt(a, pos, size)
		fromB := nodeAt(b, pos, size)
		switch {
		case pos < a.InputCount:
			return fromA
		case fromA != nil && fromB != nil:
			if rng.Intn(2) == 0 {
				return fromA
			}
			return fromB
		case fromA != nil:
			return fromA
		case fromB != nil:
			return fromB
		default:
			return nil
		}
	}

	for pos := 0; pos < size; pos++ {
		t := TypeHidden
		if pos < a.InputCount {
			t = TypeInput
		} else if pos >= size-a.OutputCount {
			t = TypeOutput
		}
		node := offspring.acquireNode(t)
		if src := pickNode(pos); src != nil {
			node.Bias = src.Bias
			node.Squash = src.Squash
			if t == TypeInput {
				node.Bias = 0
			}
		}
		offspring.Nodes = append(offspring.Nodes, node)
	}

	genesA := connGenes(a)
	genesB := connGenes(b)

	selected := make(map[int64]connGene, len(genesA)+len(genesB))
	for key, geneA := range genesA {
		geneB, matching := genesB[key]
		if matching {
			gene := geneA
			if rng.Intn(2) == 1 {
				gene = geneB
			}
			if !geneA.enabled || !geneB.enabled {
				gene.enabled = rng.Float64() < offspring.ReenableProb
			}
			selected[key] = gene
			continue
		}
		// Disjoint/excess genes come only from the not-less-fit parent.
		if tied || scoreA >= scoreB {
			selected[key] = geneA
		}
	}
	for key, geneB := range genesB {
		if _, matching := genesA[key]; matching {
			continue
		}
		if tied || scoreB >= scoreA {
			selected[key] = geneB
		}
	}

	keys := make([]int64, 0, len(selected))
	for key := range selected {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	for _, key := range keys {
		gene := selected[key]
		if gene.from >= size || gene.to >= size || gene.from >= gene.to {
			continue
		}
		conn, err := offspring.Connect(offspring.Nodes[gene.from], offspring.Nodes[gene.to], gene.weight)
		if err != nil {
			continue
		}
		conn.Gain = gene.gain
		conn.Enabled = gene.enabled
		conn.Plasticity = gene.plasticity
		if gene.gater >= 0 && gene.gater < size {
			_ = offspring.Gate(offspring.Nodes[gene.gater], conn)
		}
	}

	offspring.markStructureDirty()
	return offspring, nil
}

// nodeAt resolves the parent's node gene for an offspring position, aligning
// output genes from the tail of each parent's node list.
func nodeAt(p *Genome, pos, size int) *Node {
	if pos >= size-p.OutputCount {
		idx := len(p.Nodes) - (size - pos)
		if idx < 0 || idx >= len(p.Nodes) {
			return nil
		}
		return p.Nodes[idx]
	}
	if pos >= len(p.Nodes)-p.OutputCount {
		return nil
	}
	return p.Nodes[pos]
}

// connGenes keys the parent's ordinary connections by innovation id. Self
// loops are excluded; they can never survive the feed-forward invariant.
func connGenes(p *Genome) map[int64]connGene {
	p.ensureIndex()
	out := make(map[int64]connGene, len(p.Conns))
	for _, c := range p.Conns {
		gene := connGene{
			from:       c.From.Index,
			to:         c.To.Index,
			weight:     c.Weight,
			gain:       c.Gain,
			plasticity: c.Plasticity,
			enabled:    c.Enabled,
			gater:      -1,
		}
		if c.Gater != nil {
			gene.gater = c.Gater.Index
		}
		out[InnovationKey(gene.from, gene.to)] = gene
	}
	return out
}

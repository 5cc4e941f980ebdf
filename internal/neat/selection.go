package neat

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"

	"nevo/internal/genome"
)

// ErrTournamentSize signals a tournament larger than the population.
var ErrTournamentSize = errors.New("tournament size exceeds population size")

// GetParent draws one parent from the population under the configured
// selection method. The population is sorted descending first so rank-based
// strategies see a stable ordering.
func (e *Engine) GetParent() (*genome.Genome, error) {
	return e.getParent(false)
}

func (e *Engine) getParent(suppressSizeError bool) (*genome.Genome, error) {
	if len(e.Population) == 0 {
		return nil, fmt.Errorf("population is empty")
	}
	e.ensureSorted()

	switch e.opts.Selection {
	case SelectionPower:
		return e.pickPower(), nil
	case SelectionFitnessProportionate:
		return e.pickProportionate(), nil
	case SelectionTournament:
		return e.pickTournament(suppressSizeError)
	default:
		return e.Population[0], nil
	}
}

// pickPower maps a uniform draw through a power curve so low ranks dominate.
func (e *Engine) pickPower() *genome.Genome {
	const exponent = 4
	idx := int(math.Pow(e.rng.Float64(), exponent) * float64(len(e.Population)))
	if idx >= len(e.Population) {
		idx = len(e.Population) - 1
	}
	return e.Population[idx]
}

// pickProportionate runs a roulette wheel over scores shifted non-negative.
func (e *Engine) pickProportionate() *genome.Genome {
	minScore := math.Inf(1)
	for _, g := range e.Population {
		if g.Score < minScore {
			minScore = g.Score
		}
	}
	shift := 0.0
	if minScore < 0 {
		shift = -minScore
	}
	total := 0.0
	for _, g := range e.Population {
		total += g.Score + shift
	}
	if total <= 0 {
		return e.Population[e.rng.Intn(len(e.Population))]
	}

	pick := e.rng.Float64() * total
	acc := 0.0
	for _, g := range e.Population {
		acc += g.Score + shift
		if pick <= acc {
			return g
		}
	}
	return e.Population[len(e.Population)-1]
}

// pickTournament samples competitors, sorts them descending, then walks the
// list accepting each with the configured probability; the last competitor is
// accepted unconditionally.
func (e *Engine) pickTournament(suppressSizeError bool) (*genome.Genome, error) {
	size := e.opts.TournamentSize
	if size > len(e.Population) {
		if !suppressSizeError {
			return nil, fmt.Errorf("%w: %d > %d", ErrTournamentSize, size, len(e.Population))
		}
		return e.Population[e.rng.Intn(len(e.Population))], nil
	}

	competitors := make([]*genome.Genome, size)
	for i := range competitors {
		competitors[i] = e.Population[e.rng.Intn(len(e.Population))]
	}
	sort.Slice(competitors, func(i, j int) bool {
		return competitors[i].Score > competitors[j].Score
	})

	for i, g := range competitors {
		if i == len(competitors)-1 || e.rng.Float64() < e.opts.TournamentProb {
			return g, nil
		}
	}
	return competitors[len(competitors)-1], nil
}

// ensureSorted orders the population by descending score.
func (e *Engine) ensureSorted() {
	if e.sorted {
		return
	}
	sort.SliceStable(e.Population, func(i, j int) bool {
		return e.Population[i].Score > e.Population[j].Score
	})
	e.sorted = true
}

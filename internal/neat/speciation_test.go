package neat

import (
	"math"
	"testing"

	"nevo/internal/genome"
)

func TestSpeciationZeroDistanceCollapsesToOneSpecies(t *testing.T) {
	e := newTestEngine(t, complexityFitness, Options{
		PopulationSize:  14,
		Speciation:      true,
		CompatThreshold: 10,
		Distance:        func(a, b *genome.Genome) float64 { return 0 },
		Seed:            7,
	})
	if err := e.Evaluate(); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	e.speciate()
	if len(e.species) != 1 {
		t.Fatalf("species count %d, want 1", len(e.species))
	}
	if len(e.species[0].Members) != 14 {
		t.Fatalf("species size %d, want full population", len(e.species[0].Members))
	}
}

func TestSpeciationLargeDistanceSplitsPerGenome(t *testing.T) {
	e := newTestEngine(t, complexityFitness, Options{
		PopulationSize:  14,
		Speciation:      true,
		CompatThreshold: 3,
		Distance:        func(a, b *genome.Genome) float64 { return 5 },
		Seed:            7,
	})
	if err := e.Evaluate(); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	e.speciate()
	if len(e.species) != 14 {
		t.Fatalf("species count %d, want one per genome", len(e.species))
	}
	for _, sp := range e.species {
		if len(sp.Members) != 1 {
			t.Fatalf("species %d size %d, want 1", sp.ID, len(sp.Members))
		}
	}
}

func TestSpeciesHistoryRecordsTurnover(t *testing.T) {
	e := newTestEngine(t, complexityFitness, Options{
		PopulationSize:  6,
		Speciation:      true,
		CompatThreshold: 10,
		Distance:        func(a, b *genome.Genome) float64 { return 0 },
		Seed:            7,
	})
	if err := e.Evaluate(); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	e.speciate()
	history := e.SpeciesHistory()
	if len(history) != 1 {
		t.Fatalf("history entries %d, want 1", len(history))
	}
	if len(history[0].Created) != 1 {
		t.Fatalf("created species %v, want one new id", history[0].Created)
	}
	if len(history[0].Species) != 1 || history[0].Species[0].Size != 6 {
		t.Fatalf("history snapshot %+v malformed", history[0])
	}
}

func TestFitnessSharingDividesBySpeciesSize(t *testing.T) {
	e := newTestEngine(t, nil, Options{
		PopulationSize:  5,
		Speciation:      true,
		FitnessSharing:  true,
		CompatThreshold: 10,
		Distance:        func(a, b *genome.Genome) float64 { return 0 },
		Seed:            7,
	})
	for _, g := range e.Population {
		g.Score = 10
		g.Scored = true
	}
	e.speciate()
	e.applyFitnessSharing()
	for _, g := range e.Population {
		if g.Score != 2 {
			t.Fatalf("shared score %v, want 10/5", g.Score)
		}
	}
}

func TestStagnantSpeciesIsDropped(t *testing.T) {
	e := newTestEngine(t, nil, Options{
		PopulationSize:   6,
		Speciation:       true,
		CompatThreshold:  3,
		StagnationWindow: 15,
		Distance:         func(a, b *genome.Genome) float64 { return 5 },
		Seed:             7,
	})
	for _, g := range e.Population {
		g.Score = 1
		g.Scored = true
	}
	e.speciate()
	if len(e.species) != 6 {
		t.Fatalf("species count %d, want 6", len(e.species))
	}

	// Freeze one species beyond the stagnation window.
	victim := e.species[0]
	victim.BestScore = math.Inf(1)
	victim.LastImproved = -16
	e.updateSpeciesStagnation()

	if len(e.species) != 5 {
		t.Fatalf("species count %d after pruning, want 5", len(e.species))
	}
	if len(e.Population) != 5 {
		t.Fatalf("population %d after pruning, want members dropped with species", len(e.Population))
	}
	for _, sp := range e.species {
		if sp == victim {
			t.Fatalf("stagnant species survived")
		}
	}
}

func TestAgePenaltyDecaysOldSpeciesScores(t *testing.T) {
	e := newTestEngine(t, nil, Options{
		PopulationSize:    4,
		Speciation:        true,
		CompatThreshold:   10,
		SpeciesAgeGrace:   2,
		SpeciesAgePenalty: 0.5,
		Distance:          func(a, b *genome.Genome) float64 { return 0 },
		Seed:              7,
	})
	for _, g := range e.Population {
		g.Score = 8
		g.Scored = true
	}
	for i := 0; i < 3; i++ {
		e.speciate()
	}
	// Age is 3 after the third pass, past the grace of 2.
	if got := e.Population[0].Score; got != 4 {
		t.Fatalf("score %v after age penalty, want 8*0.5", got)
	}
}

func TestThresholdSteersTowardTarget(t *testing.T) {
	e := newTestEngine(t, nil, Options{
		PopulationSize:  12,
		Speciation:      true,
		CompatThreshold: 3,
		TargetSpecies:   2,
		Distance:        func(a, b *genome.Genome) float64 { return 5 },
		Seed:            7,
	})
	for _, g := range e.Population {
		g.Score = 1
		g.Scored = true
	}
	before := e.threshold
	for i := 0; i < 5; i++ {
		e.speciate()
	}
	if e.threshold <= before {
		t.Fatalf("threshold %v did not rise with species count above target", e.threshold)
	}
	if e.threshold > e.opts.ThresholdMax {
		t.Fatalf("threshold %v exceeds configured bound", e.threshold)
	}
}

func TestCoefficientsFollowThresholdSteering(t *testing.T) {
	e := newTestEngine(t, nil, Options{
		PopulationSize:  12,
		Speciation:      true,
		CompatThreshold: 3,
		TargetSpecies:   2,
		Distance:        func(a, b *genome.Genome) float64 { return 5 },
		Seed:            7,
	})
	for _, g := range e.Population {
		g.Score = 1
		g.Scored = true
	}
	excessBefore := e.opts.CompatExcess
	for i := 0; i < 5; i++ {
		e.speciate()
	}
	// Twelve species against a target of two: coefficients shrink with the
	// rising threshold.
	if e.opts.CompatExcess >= excessBefore {
		t.Fatalf("excess coefficient %v did not shrink above target", e.opts.CompatExcess)
	}
	if e.opts.CompatDisjoint >= excessBefore {
		t.Fatalf("disjoint coefficient %v did not shrink above target", e.opts.CompatDisjoint)
	}

	// Collapse to a single species and the drift reverses.
	e.species = e.species[:1]
	shrunk := e.opts.CompatExcess
	for i := 0; i < 40; i++ {
		e.steerThreshold()
	}
	if e.opts.CompatExcess <= shrunk {
		t.Fatalf("excess coefficient %v did not recover below target", e.opts.CompatExcess)
	}
	if e.opts.CompatExcess > e.compatExcessBase*4 || e.opts.CompatExcess < e.compatExcessBase/4 {
		t.Fatalf("excess coefficient %v escaped its clamp around %v", e.opts.CompatExcess, e.compatExcessBase)
	}
}

func TestCompatibilityDistanceIdenticalIsZero(t *testing.T) {
	e := newTestEngine(t, nil, Options{PopulationSize: 2, Seed: 7})
	a := e.Population[0]
	b := a.Clone()
	if d := e.compatibilityDistance(a, b); d != 0 {
		t.Fatalf("distance %v between clones, want 0", d)
	}

	hidden := b.InsertHiddenNode(b.InputCount)
	if _, err := b.Connect(b.Nodes[0], hidden, 0.3); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if d := e.compatibilityDistance(a, b); d <= 0 {
		t.Fatalf("distance %v after structural divergence, want > 0", d)
	}
}

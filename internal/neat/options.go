package neat

import (
	"fmt"

	"nevo/internal/config"
	"nevo/internal/genome"
	"nevo/internal/mutation"
)

// SelectionMethod names a parent-selection strategy.
type SelectionMethod string

const (
	SelectionPower                SelectionMethod = "POWER"
	SelectionFitnessProportionate SelectionMethod = "FITNESS_PROPORTIONATE"
	SelectionTournament           SelectionMethod = "TOURNAMENT"
)

// Options configures an Engine. Pointer fields distinguish "caller left it
// unset" from an explicit zero, so small-population defaults can be boosted
// without clobbering a deliberate choice.
type Options struct {
	PopulationSize int
	Elitism        int
	Provenance     int

	MutationRate   *float64
	MutationAmount *int
	Operators      []mutation.Operator

	// Genome policy stamped onto every genome entering the engine.
	// ReenableProb is only applied when positive; MinHidden is repaired by
	// splitting connections during invariant enforcement.
	EnforceAcyclic bool
	ReenableProb   float64
	MinHidden      int

	// Growth caps suppress the corresponding add operators once reached.
	// Zero means unbounded.
	MaxNodes int
	MaxConns int
	MaxGates int

	Selection      SelectionMethod
	TournamentSize int
	TournamentProb float64

	// Crossover treats parents with equal scores as tied; EqualFitness forces
	// tied treatment regardless of scores.
	EqualFitness bool

	Speciation        bool
	CompatExcess      float64
	CompatDisjoint    float64
	CompatWeight      float64
	CompatThreshold   float64
	TargetSpecies     int
	ThresholdMin      float64
	ThresholdMax      float64
	SpeciesAgeGrace   int
	SpeciesAgePenalty float64
	StagnationWindow  int
	FitnessSharing    bool
	// SharingBandwidth > 0 selects kernel sharing with quadratic falloff;
	// zero divides each score by species size.
	SharingBandwidth float64

	// Distance overrides the built-in compatibility distance; nil keeps the
	// innovation-aligned excess/disjoint/weight measure.
	Distance func(a, b *genome.Genome) float64

	// ExtendedHistory records per-member complexity detail in each species
	// history snapshot.
	ExtendedHistory bool

	MultiObjective bool

	// Growth scales the structural-complexity penalty subtracted from fitness.
	Growth float64

	Workers int
	Seed    int64

	HistoryCap     int
	AncestorWindow int

	// Schedule, when set, receives each generation's telemetry entry. Panics
	// inside the callback are swallowed.
	Schedule         func(Telemetry)
	ScheduleInterval int
	TelemetrySelect  []string

	Network *genome.Genome
	Config  *config.Config
}

// withDefaults fills unset fields and validates the rest.
func (o Options) withDefaults() (Options, error) {
	if o.PopulationSize == 0 {
		o.PopulationSize = 50
	}
	if o.PopulationSize < 1 {
		return o, fmt.Errorf("population size must be > 0, got %d", o.PopulationSize)
	}
	if o.Elitism < 0 || o.Elitism > o.PopulationSize {
		return o, fmt.Errorf("elitism must be in [0, population size], got %d", o.Elitism)
	}
	if o.Provenance < 0 || o.Provenance > o.PopulationSize {
		return o, fmt.Errorf("provenance must be in [0, population size], got %d", o.Provenance)
	}

	if o.MutationRate == nil {
		rate := 0.4
		if o.PopulationSize <= 10 {
			rate = 0.7
		}
		o.MutationRate = &rate
	}
	if o.MutationAmount == nil {
		amount := 1
		if o.PopulationSize <= 10 {
			amount = 2
		}
		o.MutationAmount = &amount
	}
	if len(o.Operators) == 0 {
		o.Operators = mutation.DefaultOperators()
	}

	if o.Selection == "" {
		o.Selection = SelectionPower
	}
	if o.TournamentSize == 0 {
		o.TournamentSize = 5
	}
	if o.TournamentProb == 0 {
		o.TournamentProb = 0.5
	}

	if o.CompatExcess == 0 {
		o.CompatExcess = 1
	}
	if o.CompatDisjoint == 0 {
		o.CompatDisjoint = 1
	}
	if o.CompatWeight == 0 {
		o.CompatWeight = 0.5
	}
	if o.CompatThreshold == 0 {
		o.CompatThreshold = 3
	}
	if o.ThresholdMin == 0 {
		o.ThresholdMin = 0.5
	}
	if o.ThresholdMax == 0 {
		o.ThresholdMax = 10
	}
	if o.SpeciesAgeGrace == 0 {
		o.SpeciesAgeGrace = 10
	}
	if o.SpeciesAgePenalty == 0 {
		o.SpeciesAgePenalty = 0.95
	}
	if o.StagnationWindow == 0 {
		o.StagnationWindow = 15
	}

	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.HistoryCap == 0 {
		o.HistoryCap = 200
	}
	if o.AncestorWindow == 0 {
		o.AncestorWindow = 4
	}
	if o.ScheduleInterval == 0 {
		o.ScheduleInterval = 1
	}

	o.Config = o.Config.OrDefault()
	return o, nil
}

package neat

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"nevo/internal/config"
	"nevo/internal/genome"
	"nevo/internal/mutation"
)

// FitnessFunc scores one genome. Higher is better. Panics are converted to
// negative-infinity scores, never propagated.
type FitnessFunc func(g *genome.Genome) float64

type opStat struct {
	attempts  int
	successes int
}

// Engine owns the population and drives generation transitions. It is not
// safe for concurrent use; only fitness evaluation fans out to workers.
type Engine struct {
	opts    Options
	cfg     *config.Config
	rng     *rand.Rand
	inputs  int
	outputs int
	fitness FitnessFunc

	Population []*genome.Genome

	species        []*Species
	speciesHistory []SpeciesSnapshot
	telemetry      []Telemetry
	objectives     []Objective

	threshold         float64
	thresholdIntegral float64
	speciesCountEMA   float64

	// Auto-tune anchors; coefficient drift stays within a factor of four of
	// the configured values.
	compatExcessBase   float64
	compatDisjointBase float64

	byID        map[int]*genome.Genome
	opStats     map[string]*opStat
	opStatOrder []string

	generation    int
	nextGenomeID  int
	nextSpeciesID int
	sorted        bool
}

// NewEngine validates options, seeds the RNG and creates the initial pool.
func NewEngine(inputs, outputs int, fitness FitnessFunc, opts Options) (*Engine, error) {
	if inputs <= 0 || outputs <= 0 {
		return nil, fmt.Errorf("engine needs inputs > 0 and outputs > 0, got %dx%d", inputs, outputs)
	}
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if opts.Network != nil && (opts.Network.InputCount != inputs || opts.Network.OutputCount != outputs) {
		return nil, fmt.Errorf("seed genome interface %dx%d does not match engine %dx%d",
			opts.Network.InputCount, opts.Network.OutputCount, inputs, outputs)
	}

	e := &Engine{
		opts:               opts,
		cfg:                opts.Config,
		rng:                rand.New(rand.NewSource(opts.Seed)),
		inputs:             inputs,
		outputs:            outputs,
		fitness:            fitness,
		threshold:          opts.CompatThreshold,
		compatExcessBase:   opts.CompatExcess,
		compatDisjointBase: opts.CompatDisjoint,
		byID:               make(map[int]*genome.Genome),
		opStats:            make(map[string]*opStat),
	}
	for _, op := range opts.Operators {
		e.opStatOrder = append(e.opStatOrder, op.Name())
		e.opStats[op.Name()] = &opStat{}
	}
	e.CreatePool(opts.Network)
	return e, nil
}

// Generation reports the number of completed generation transitions.
func (e *Engine) Generation() int {
	return e.generation
}

// CreatePool (re)initializes the population from a seed genome, or from fresh
// minimal genomes when seed is nil. Invariant enforcement is best-effort.
func (e *Engine) CreatePool(seed *genome.Genome) {
	e.Population = e.Population[:0]
	e.species = nil
	e.sorted = false
	for i := 0; i < e.opts.PopulationSize; i++ {
		var g *genome.Genome
		if seed != nil {
			g = seed.Clone()
		} else {
			g = genome.New(e.inputs, e.outputs, e.cfg, e.rng)
		}
		g.Score = 0
		g.Scored = false
		g.Parents = nil
		g.Depth = 0
		e.register(g)
		if err := e.enforceInvariants(g); err != nil {
			e.cfg.Warnf("neat: pool genome %d invariant repair failed: %v", g.ID, err)
		}
		e.Population = append(e.Population, g)
	}
}

// register assigns the next id and stamps the engine's genome policy.
func (e *Engine) register(g *genome.Genome) {
	e.nextGenomeID++
	g.ID = e.nextGenomeID
	e.byID[g.ID] = g
	if e.opts.EnforceAcyclic {
		g.EnforceAcyclic = true
	}
	if e.opts.ReenableProb > 0 {
		g.ReenableProb = e.opts.ReenableProb
	}
}

// enforceInvariants repairs dead ends and the hidden-node floor: every input
// feeds something, every output is fed by something, and connections are
// split until at least MinHidden hidden nodes exist.
func (e *Engine) enforceInvariants(g *genome.Genome) error {
	var firstErr error
	for i := 0; i < g.InputCount; i++ {
		in := g.Nodes[i]
		if len(in.Out) > 0 {
			continue
		}
		target := g.Nodes[len(g.Nodes)-g.OutputCount+e.rng.Intn(g.OutputCount)]
		if _, err := g.Connect(in, target, e.rng.Float64()*2-1); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for o := 0; o < g.OutputCount; o++ {
		out := g.Nodes[len(g.Nodes)-g.OutputCount+o]
		if len(out.In) > 0 {
			continue
		}
		source := g.Nodes[e.rng.Intn(len(g.Nodes)-g.OutputCount)]
		if _, err := g.Connect(source, out, e.rng.Float64()*2-1); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for g.HiddenCount() < e.opts.MinHidden {
		if err := e.splitRandomConnection(g); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			break
		}
	}
	return firstErr
}

// splitRandomConnection inserts a hidden node on one random forward edge,
// keeping the original weight on the outgoing half.
func (e *Engine) splitRandomConnection(g *genome.Genome) error {
	if len(g.Conns) == 0 {
		return fmt.Errorf("genome %d has no connection to split", g.ID)
	}
	c := g.Conns[e.rng.Intn(len(g.Conns))]
	from, to, weight := c.From, c.To, c.Weight
	if err := g.Disconnect(from, to); err != nil {
		return err
	}
	node := g.InsertHiddenNode(g.IndexOf(to))
	if _, err := g.Connect(from, node, 1); err != nil {
		return err
	}
	_, err := g.Connect(node, to, weight)
	return err
}

// SpawnFromParent clones a parent, stamps lineage and applies mutateCount
// sequential mutation passes. Individual mutation failures are swallowed.
func (e *Engine) SpawnFromParent(parent *genome.Genome, mutateCount int) *genome.Genome {
	child := parent.Clone()
	child.Score = 0
	child.Scored = false
	child.Parents = []int{parent.ID}
	child.Depth = parent.Depth + 1
	e.register(child)
	if err := e.enforceInvariants(child); err != nil {
		e.cfg.Warnf("neat: spawn invariant repair failed for genome %d: %v", child.ID, err)
	}
	for i := 0; i < mutateCount; i++ {
		e.mutateOnce(child)
	}
	e.sorted = false
	return child
}

// AddGenome registers an externally built genome and appends it. The genome
// is appended even when invariant enforcement fails.
func (e *Engine) AddGenome(g *genome.Genome, parentIDs []int) {
	depth := 0
	for _, id := range parentIDs {
		if parent, ok := e.byID[id]; ok && parent.Depth+1 > depth {
			depth = parent.Depth + 1
		}
	}
	g.Parents = append([]int(nil), parentIDs...)
	g.Depth = depth
	e.register(g)
	if err := e.enforceInvariants(g); err != nil {
		e.cfg.Warnf("neat: added genome %d invariant repair failed: %v", g.ID, err)
	}
	e.Population = append(e.Population, g)
	e.sorted = false
}

// mutate runs the configured rate/amount policy against one genome.
func (e *Engine) mutate(g *genome.Genome) {
	if e.rng.Float64() > *e.opts.MutationRate {
		return
	}
	for i := 0; i < *e.opts.MutationAmount; i++ {
		e.mutateOnce(g)
	}
}

// mutateOnce picks one operator uniformly and applies it through the
// soft-failure policy. Growth operators are suppressed at their caps.
func (e *Engine) mutateOnce(g *genome.Genome) {
	op := e.opts.Operators[e.rng.Intn(len(e.opts.Operators))]
	if e.growthCapped(g, op.Name()) {
		e.cfg.Warnf("neat: operator %s skipped, genome %d at growth cap", op.Name(), g.ID)
		return
	}
	applied, err := mutation.Apply(e.rng, g, op)
	stat, ok := e.opStats[op.Name()]
	if !ok {
		stat = &opStat{}
		e.opStats[op.Name()] = stat
		e.opStatOrder = append(e.opStatOrder, op.Name())
	}
	stat.attempts++
	if applied {
		stat.successes++
	}
	if err != nil {
		e.cfg.Warnf("neat: operator %s failed on genome %d: %v", op.Name(), g.ID, err)
	}
}

// growthCapped reports whether applying the named operator would push the
// genome past a configured structural cap.
func (e *Engine) growthCapped(g *genome.Genome, opName string) bool {
	switch opName {
	case "ADD_NODE", "ADD_LSTM_NODE", "ADD_GRU_NODE":
		return e.opts.MaxNodes > 0 && len(g.Nodes) >= e.opts.MaxNodes
	case "ADD_CONN", "ADD_BACK_CONN", "ADD_SELF_CONN":
		return e.opts.MaxConns > 0 && len(g.Conns)+len(g.SelfConns) >= e.opts.MaxConns
	case "ADD_GATE":
		return e.opts.MaxGates > 0 && len(g.Gates) >= e.opts.MaxGates
	}
	return false
}

// Evaluate scores every unscored genome. With Workers > 1 evaluation fans out
// to a fixed worker pool; a panicking fitness function yields -Inf.
func (e *Engine) Evaluate() error {
	if e.fitness == nil {
		for _, g := range e.Population {
			if !g.Scored {
				return fmt.Errorf("no fitness function configured and genome %d is unscored", g.ID)
			}
		}
		return nil
	}

	pending := make([]*genome.Genome, 0, len(e.Population))
	for _, g := range e.Population {
		if !g.Scored {
			pending = append(pending, g)
		}
	}
	if len(pending) == 0 {
		return nil
	}
	e.sorted = false

	if e.opts.Workers <= 1 {
		for _, g := range pending {
			g.Score = e.safeFitness(g)
			g.Scored = true
		}
		return nil
	}

	type result struct {
		idx   int
		score float64
	}
	jobs := make(chan int)
	results := make(chan result, len(pending))

	workers := e.opts.Workers
	if workers > len(pending) {
		workers = len(pending)
	}
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results <- result{idx: idx, score: e.safeFitness(pending[idx])}
			}
		}()
	}
	for i := range pending {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	close(results)

	for res := range results {
		pending[res.idx].Score = res.score
		pending[res.idx].Scored = true
	}
	return nil
}

func (e *Engine) safeFitness(g *genome.Genome) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Warnf("neat: fitness panic on genome %d: %v", g.ID, r)
			score = math.Inf(-1)
		}
	}()
	return e.fitness(g)
}

// GetFittest evaluates any unscored genomes, then returns the top genome.
func (e *Engine) GetFittest() (*genome.Genome, error) {
	if err := e.Evaluate(); err != nil {
		return nil, err
	}
	if len(e.Population) == 0 {
		return nil, fmt.Errorf("population is empty")
	}
	e.ensureSorted()
	return e.Population[0], nil
}

// GetAverage evaluates any unscored genomes, then returns the mean score.
func (e *Engine) GetAverage() (float64, error) {
	if err := e.Evaluate(); err != nil {
		return 0, err
	}
	if len(e.Population) == 0 {
		return 0, fmt.Errorf("population is empty")
	}
	total := 0.0
	for _, g := range e.Population {
		total += g.Score
	}
	return total / float64(len(e.Population)), nil
}

// Evolve runs one generation transition and returns the fittest genome of the
// evaluated generation. Only one transition is in flight at a time.
func (e *Engine) Evolve() (*genome.Genome, error) {
	start := time.Now()
	if err := e.Evaluate(); err != nil {
		return nil, err
	}
	evalMillis := float64(time.Since(start).Microseconds()) / 1000

	e.ensureSorted()
	best := e.Population[0]
	fittest := best.Clone()

	if e.opts.Speciation {
		e.speciate()
		e.updateSpeciesStagnation()
		if e.opts.FitnessSharing {
			e.applyFitnessSharing()
		}
		e.ensureSorted()
	}
	if e.opts.MultiObjective {
		e.FastNonDominated(e.Population)
	}

	entry := e.collectTelemetry(best, evalMillis, float64(time.Since(start).Microseconds())/1000)
	e.telemetry = append(e.telemetry, entry)
	if len(e.telemetry) > e.opts.HistoryCap {
		e.telemetry = e.telemetry[len(e.telemetry)-e.opts.HistoryCap:]
	}
	e.emitSchedule(entry)

	next := make([]*genome.Genome, 0, e.opts.PopulationSize)
	for i := 0; i < e.opts.Elitism && i < len(e.Population); i++ {
		elite := e.Population[i].Clone()
		elite.Scored = false
		next = append(next, elite)
	}
	for i := 0; i < e.opts.Provenance && len(next) < e.opts.PopulationSize; i++ {
		var fresh *genome.Genome
		if e.opts.Network != nil {
			fresh = e.opts.Network.Clone()
		} else {
			fresh = genome.New(e.inputs, e.outputs, e.cfg, e.rng)
		}
		fresh.Scored = false
		e.register(fresh)
		next = append(next, fresh)
	}
	for len(next) < e.opts.PopulationSize {
		child, err := e.breed()
		if err != nil {
			return nil, err
		}
		next = append(next, child)
	}

	e.Population = next
	e.sorted = false
	e.generation++
	return fittest, nil
}

// breed crosses two selected parents and mutates the offspring. A crossover
// failure degrades to cloning the first parent.
func (e *Engine) breed() (*genome.Genome, error) {
	p1, err := e.getParent(true)
	if err != nil {
		return nil, err
	}
	p2, err := e.getParent(true)
	if err != nil {
		return nil, err
	}

	child, err := genome.Crossover(e.rng, p1, p2, e.opts.EqualFitness)
	if err != nil {
		e.cfg.Warnf("neat: crossover failed (%v), cloning parent %d", err, p1.ID)
		child = p1.Clone()
	}
	child.Score = 0
	child.Scored = false
	child.Parents = []int{p1.ID, p2.ID}
	depth := p1.Depth
	if p2.Depth > depth {
		depth = p2.Depth
	}
	child.Depth = depth + 1
	e.register(child)
	e.mutate(child)
	if err := e.enforceInvariants(child); err != nil {
		e.cfg.Warnf("neat: bred genome %d invariant repair failed: %v", child.ID, err)
	}
	return child, nil
}

// emitSchedule invokes the user callback on its configured interval. Panics
// in the callback are swallowed.
func (e *Engine) emitSchedule(entry Telemetry) {
	if e.opts.Schedule == nil || e.generation%e.opts.ScheduleInterval != 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.cfg.Warnf("neat: schedule callback panic: %v", r)
		}
	}()
	e.opts.Schedule(entry)
}

package genome

// Slab is the structure-of-arrays projection of the ordinary connection
// list: parallel weight/endpoint/flag channels over [0, Used), plus CSR
// adjacency for fan-out traversal. Gain and Plastic are omitted (nil) while
// every connection is neutral. Capacity grows geometrically and never
// shrinks in place.
type Slab struct {
	Weights []float64
	From    []int32
	To      []int32
	Flags   []uint8
	Gain    []float64
	Plastic []float64

	Used    int
	Version uint64

	// CSR adjacency: OutOrder[OutStart[i]:OutStart[i+1]] lists the slab
	// indices of node i's outgoing connections.
	OutStart []int32
	OutOrder []int32
}

// Capacity is the physical channel length.
func (s *Slab) Capacity() int {
	return len(s.Weights)
}

// SlabView is the caller-facing window over the active slab slice.
type SlabView struct {
	Weights []float64
	From    []int32
	To      []int32
	Flags   []uint8
	Gain    []float64
	Plastic []float64
	Version uint64
}

type slabRebuild struct {
	required   int
	anyGain    bool
	anyPlastic bool
}

// RebuildConnectionSlab repacks the connection list into the slab. It no-ops
// unless the slab is dirty or force is set.
func (g *Genome) RebuildConnectionSlab(force bool) {
	if !force && !g.slabDirty && g.slab != nil {
		return
	}
	st := g.beginSlabRebuild()
	g.packConnections(st, 0, st.required)
	g.finishSlabRebuild(st)
}

func (g *Genome) beginSlabRebuild() *slabRebuild {
	g.ensureIndex()
	pooling := g.cfg.SlabPooling
	maxPerKey := g.cfg.PoolMaxPerKey

	if g.slab == nil {
		g.slab = &Slab{}
	}
	s := g.slab
	required := len(g.Conns)
	if required > s.Capacity() {
		newCap := growCapacity(s.Capacity(), required, g.cfg.SlabGrowthFactor)
		slabPool.releaseF64(s.Weights, pooling, maxPerKey)
		slabPool.releaseI32(s.From, pooling, maxPerKey)
		slabPool.releaseI32(s.To, pooling, maxPerKey)
		slabPool.releaseU8(s.Flags, pooling, maxPerKey)
		slabPool.releaseF64(s.Gain, pooling, maxPerKey)
		slabPool.releaseF64(s.Plastic, pooling, maxPerKey)
		s.Weights = slabPool.acquireF64(newCap, pooling)
		s.From = slabPool.acquireI32(newCap, pooling)
		s.To = slabPool.acquireI32(newCap, pooling)
		s.Flags = slabPool.acquireU8(newCap, pooling)
		s.Gain = nil
		s.Plastic = nil
	}
	return &slabRebuild{required: required}
}

// packConnections fills the channel slices for connections [from, to).
// Optional channels are allocated on the first non-neutral value so an
// all-neutral pass never materializes them.
func (g *Genome) packConnections(st *slabRebuild, from, to int) {
	s := g.slab
	pooling := g.cfg.SlabPooling
	for i := from; i < to; i++ {
		c := g.Conns[i]
		s.Weights[i] = c.Weight
		s.From[i] = int32(c.From.Index)
		s.To[i] = int32(c.To.Index)
		s.Flags[i] = c.Flags()

		if c.Gain != 1 && s.Gain == nil {
			s.Gain = slabPool.acquireF64(s.Capacity(), pooling)
			for j := 0; j < i; j++ {
				s.Gain[j] = 1
			}
		}
		if s.Gain != nil {
			s.Gain[i] = c.Gain
			if c.Gain != 1 {
				st.anyGain = true
			}
		}

		if c.Plasticity != 0 && s.Plastic == nil {
			s.Plastic = slabPool.acquireF64(s.Capacity(), pooling)
			for j := 0; j < i; j++ {
				s.Plastic[j] = 0
			}
		}
		if s.Plastic != nil {
			s.Plastic[i] = c.Plasticity
			if c.Plasticity != 0 {
				st.anyPlastic = true
			}
		}
	}
}

func (g *Genome) finishSlabRebuild(st *slabRebuild) {
	s := g.slab
	pooling := g.cfg.SlabPooling
	maxPerKey := g.cfg.PoolMaxPerKey

	// A carried-over optional channel whose values went all-neutral again is
	// released back to the pool.
	if !st.anyGain && s.Gain != nil {
		slabPool.releaseF64(s.Gain, pooling, maxPerKey)
		s.Gain = nil
	}
	if !st.anyPlastic && s.Plastic != nil {
		slabPool.releaseF64(s.Plastic, pooling, maxPerKey)
		s.Plastic = nil
	}

	s.Used = st.required
	s.Version++
	g.slabDirty = false
	g.adjDirty = true
}

// ConnectionSlab lazily rebuilds and returns the active slab view. An
// omitted gain channel is reported as a throwaway all-ones array so callers
// get a uniform interface without the slab retaining it.
func (g *Genome) ConnectionSlab() SlabView {
	g.RebuildConnectionSlab(false)
	s := g.slab
	view := SlabView{
		Weights: s.Weights[:s.Used],
		From:    s.From[:s.Used],
		To:      s.To[:s.Used],
		Flags:   s.Flags[:s.Used],
		Version: s.Version,
	}
	if s.Gain != nil {
		view.Gain = s.Gain[:s.Used]
	} else {
		ones := make([]float64, s.Used)
		for i := range ones {
			ones[i] = 1
		}
		view.Gain = ones
	}
	if s.Plastic != nil {
		view.Plastic = s.Plastic[:s.Used]
	}
	return view
}

// SlabVersion exposes the monotonic rebuild counter.
func (g *Genome) SlabVersion() uint64 {
	if g.slab == nil {
		return 0
	}
	return g.slab.Version
}

// SlabCapacity exposes the current physical capacity.
func (g *Genome) SlabCapacity() int {
	if g.slab == nil {
		return 0
	}
	return g.slab.Capacity()
}

// rebuildAdjacency recomputes the CSR fan-out arrays from the packed slab.
func (g *Genome) rebuildAdjacency() {
	s := g.slab
	if s == nil {
		return
	}
	if !g.adjDirty && s.OutStart != nil && len(s.OutStart) == len(g.Nodes)+1 {
		return
	}
	pooling := g.cfg.SlabPooling
	maxPerKey := g.cfg.PoolMaxPerKey

	if len(s.OutStart) != len(g.Nodes)+1 {
		slabPool.releaseI32(s.OutStart, pooling, maxPerKey)
		s.OutStart = slabPool.acquireI32(len(g.Nodes)+1, pooling)
	}
	if len(s.OutOrder) < s.Used {
		slabPool.releaseI32(s.OutOrder, pooling, maxPerKey)
		s.OutOrder = slabPool.acquireI32(s.Capacity(), pooling)
	}

	for i := range s.OutStart {
		s.OutStart[i] = 0
	}
	for i := 0; i < s.Used; i++ {
		s.OutStart[s.From[i]+1]++
	}
	for i := 1; i < len(s.OutStart); i++ {
		s.OutStart[i] += s.OutStart[i-1]
	}
	cursor := make([]int32, len(g.Nodes))
	for i := 0; i < s.Used; i++ {
		from := s.From[i]
		s.OutOrder[s.OutStart[from]+cursor[from]] = int32(i)
		cursor[from]++
	}
	g.adjDirty = false
}

func growCapacity(current, required int, factor float64) int {
	next := current
	if next < 8 {
		next = 8
	}
	for next < required {
		next = int(float64(next)*factor) + 1
	}
	return next
}

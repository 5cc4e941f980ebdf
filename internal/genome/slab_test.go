package genome

import (
	"context"
	"math"
	"testing"

	"nevo/internal/config"
)

func newFeedForwardGenome(t *testing.T) *Genome {
	t.Helper()
	rng := newTestRand()
	g := New(3, 2, config.Default(), rng)
	g.EnforceAcyclic = true
	for i := 0; i < 2; i++ {
		h := newNode(TypeHidden)
		insertAt := len(g.Nodes) - g.OutputCount
		g.Nodes = append(g.Nodes[:insertAt], append([]*Node{h}, g.Nodes[insertAt:]...)...)
		g.markStructureDirty()
		h.Bias = rng.Float64() - 0.5
		for in := 0; in < g.InputCount; in++ {
			if _, err := g.Connect(g.Nodes[in], h, rng.Float64()*2-1); err != nil {
				t.Fatalf("connect input->hidden: %v", err)
			}
		}
		for out := 0; out < g.OutputCount; out++ {
			target := g.Nodes[len(g.Nodes)-g.OutputCount+out]
			if _, err := g.Connect(h, target, rng.Float64()*2-1); err != nil {
				t.Fatalf("connect hidden->output: %v", err)
			}
		}
	}
	return g
}

func TestFastSlabActivateMatchesGeneralPath(t *testing.T) {
	g := newFeedForwardGenome(t)
	inputs := [][]float64{
		{0, 0, 0},
		{1, 0, -1},
		{0.5, -0.25, 0.75},
		{-1, 1, -1},
	}
	for _, input := range inputs {
		g.ClearState()
		want := g.Activate(input)
		g.ClearState()
		got := g.FastSlabActivate(input)
		if len(want) != len(got) {
			t.Fatalf("output length mismatch: %d vs %d", len(want), len(got))
		}
		for i := range want {
			if math.Abs(want[i]-got[i]) > 1e-9 {
				t.Fatalf("input %v output %d: general=%f fast=%f", input, i, want[i], got[i])
			}
		}
	}
}

func TestFastSlabActivateMatchesGeneralPathOnUnorderedNodes(t *testing.T) {
	// Acyclic wiring whose node order is not topological: the hidden node at
	// index 2 feeds the one at index 1.
	snap := Snapshot{
		Inputs:         1,
		Outputs:        1,
		EnforceAcyclic: true,
		Nodes: []NodeSnapshot{
			{Type: "input", Squash: "identity"},
			{Type: "hidden", Squash: "logistic"},
			{Type: "hidden", Squash: "logistic"},
			{Type: "output", Squash: "logistic"},
		},
		Conns: []ConnSnapshot{
			{From: 0, To: 2, Weight: 0.7, Gain: 1, Enabled: true, Gater: -1},
			{From: 2, To: 1, Weight: -1.3, Gain: 1, Enabled: true, Gater: -1},
			{From: 1, To: 3, Weight: 0.9, Gain: 1, Enabled: true, Gater: -1},
		},
	}
	general, err := FromSnapshot(snap, config.Default())
	if err != nil {
		t.Fatalf("from snapshot: %v", err)
	}
	fast, err := FromSnapshot(snap, config.Default())
	if err != nil {
		t.Fatalf("from snapshot: %v", err)
	}

	for _, input := range [][]float64{{0}, {1}, {-0.5}} {
		want := general.Activate(input)
		got := fast.FastSlabActivate(input)
		if len(want) != len(got) {
			t.Fatalf("output length mismatch: %d vs %d", len(want), len(got))
		}
		for i := range want {
			if math.Abs(want[i]-got[i]) > 1e-9 {
				t.Fatalf("input %v output %d: general=%f fast=%f", input, i, want[i], got[i])
			}
		}
	}
}

func TestFastSlabActivateFallsBackWhenGated(t *testing.T) {
	g := newFeedForwardGenome(t)
	hidden := g.Nodes[g.InputCount+1]
	if err := g.Gate(hidden, g.Conns[0]); err != nil {
		t.Fatalf("gate: %v", err)
	}
	// Still answers through the general path; no panic, correct length.
	out := g.FastSlabActivate([]float64{0.1, 0.2, 0.3})
	if len(out) != g.OutputCount {
		t.Fatalf("fallback output length mismatch: %d", len(out))
	}
}

func TestSlabCapacityMonotonic(t *testing.T) {
	resetSlabPoolForTests()
	g := newFeedForwardGenome(t)
	g.RebuildConnectionSlab(false)
	cap0 := g.SlabCapacity()
	if cap0 < len(g.Conns) {
		t.Fatalf("capacity %d below logical size %d", cap0, len(g.Conns))
	}

	// Non-growing edit keeps capacity stable.
	if err := g.Disconnect(g.Conns[0].From, g.Conns[0].To); err != nil {
		t.Fatalf("disconnect: %v", err)
	}
	g.RebuildConnectionSlab(false)
	if g.SlabCapacity() != cap0 {
		t.Fatalf("capacity changed on shrink: %d -> %d", cap0, g.SlabCapacity())
	}

	// Force growth past the current capacity.
	for g.SlabCapacity() >= len(g.Conns) {
		h := newNode(TypeHidden)
		insertAt := len(g.Nodes) - g.OutputCount
		g.Nodes = append(g.Nodes[:insertAt], append([]*Node{h}, g.Nodes[insertAt:]...)...)
		g.markStructureDirty()
		for in := 0; in < g.InputCount; in++ {
			if _, err := g.Connect(g.Nodes[in], h, 0.1); err != nil {
				t.Fatalf("connect: %v", err)
			}
		}
		if len(g.Conns) > cap0 {
			break
		}
	}
	g.RebuildConnectionSlab(false)
	if g.SlabCapacity() <= cap0 {
		t.Fatalf("expected geometric growth beyond %d, got %d", cap0, g.SlabCapacity())
	}
}

func TestSlabVersionIncrementsPerRebuild(t *testing.T) {
	g := newFeedForwardGenome(t)
	g.RebuildConnectionSlab(false)
	v1 := g.SlabVersion()
	g.RebuildConnectionSlab(false)
	if g.SlabVersion() != v1 {
		t.Fatalf("clean rebuild must no-op, version %d -> %d", v1, g.SlabVersion())
	}
	g.RebuildConnectionSlab(true)
	if g.SlabVersion() != v1+1 {
		t.Fatalf("forced rebuild must increment version, got %d want %d", g.SlabVersion(), v1+1)
	}
}

func TestGainChannelOmission(t *testing.T) {
	g := newFeedForwardGenome(t)
	g.RebuildConnectionSlab(false)
	if g.slab.Gain != nil {
		t.Fatalf("all-neutral gains must omit the gain channel")
	}

	view := g.ConnectionSlab()
	for i, gain := range view.Gain {
		if gain != 1 {
			t.Fatalf("synthesized gain view must be all ones, got %f at %d", gain, i)
		}
	}

	g.Conns[2].Gain = 0.5
	g.RebuildConnectionSlab(true)
	if g.slab.Gain == nil {
		t.Fatalf("non-neutral gain must materialize the gain channel")
	}
	if g.slab.Gain[2] != 0.5 {
		t.Fatalf("gain channel holds %f, want 0.5", g.slab.Gain[2])
	}

	g.Conns[2].Gain = 1
	g.RebuildConnectionSlab(true)
	if g.slab.Gain != nil {
		t.Fatalf("all-neutral rebuild must release the gain channel")
	}
}

func TestPlasticityChannelOmission(t *testing.T) {
	g := newFeedForwardGenome(t)
	g.RebuildConnectionSlab(false)
	if g.slab.Plastic != nil {
		t.Fatalf("static connections must omit the plasticity channel")
	}
	g.Conns[0].Plasticity = 0.01
	g.RebuildConnectionSlab(true)
	if g.slab.Plastic == nil || g.slab.Plastic[0] != 0.01 {
		t.Fatalf("plastic connection must materialize the plasticity channel")
	}
	g.Conns[0].Plasticity = 0
	g.RebuildConnectionSlab(true)
	if g.slab.Plastic != nil {
		t.Fatalf("all-static rebuild must release the plasticity channel")
	}
}

func TestAsyncRebuildMatchesSync(t *testing.T) {
	g := newFeedForwardGenome(t)
	g.RebuildConnectionSlab(false)
	syncWeights := append([]float64(nil), g.slab.Weights[:g.slab.Used]...)
	syncVersion := g.SlabVersion()

	g.slabDirty = true
	if err := g.RebuildConnectionSlabAsync(context.Background(), 2); err != nil {
		t.Fatalf("async rebuild: %v", err)
	}
	if g.SlabVersion() != syncVersion+1 {
		t.Fatalf("async rebuild version %d, want %d", g.SlabVersion(), syncVersion+1)
	}
	for i, w := range g.slab.Weights[:g.slab.Used] {
		if w != syncWeights[i] {
			t.Fatalf("async weight mismatch at %d: %f vs %f", i, w, syncWeights[i])
		}
	}
	if g.slab.Gain != nil {
		t.Fatalf("async rebuild must reach the same omission decision")
	}
}

func TestAsyncRebuildHonorsCancellation(t *testing.T) {
	g := newFeedForwardGenome(t)
	g.slabDirty = true
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := g.RebuildConnectionSlabAsync(ctx, 1); err == nil {
		t.Fatalf("expected context error")
	}
	if !g.slabDirty {
		t.Fatalf("cancelled rebuild must leave the slab dirty")
	}
}

func TestSlabPoolHonorsPerKeyCap(t *testing.T) {
	resetSlabPoolForTests()

	slabPool.releaseF64(make([]float64, 8), true, 1)
	slabPool.releaseF64(make([]float64, 8), true, 1)
	if got := len(slabPool.f64[8]); got != 1 {
		t.Fatalf("retained %d arrays for capped key, want 1", got)
	}
	slabPool.releaseF64(make([]float64, 8), true, 3)
	slabPool.releaseF64(make([]float64, 8), true, 3)
	if got := len(slabPool.f64[8]); got != 3 {
		t.Fatalf("retained %d arrays after raising the cap, want 3", got)
	}
}

func TestSlabPoolReusesReleasedArrays(t *testing.T) {
	resetSlabPoolForTests()
	cfg := config.Default()
	cfg.SlabPooling = true
	rng := newTestRand()

	a := New(2, 2, cfg, rng)
	a.RebuildConnectionSlab(false)
	capA := a.SlabCapacity()

	// Growing past the initial capacity releases the old arrays to the pool.
	for k := 0; len(a.Conns) <= capA; k++ {
		h := newNode(TypeHidden)
		insertAt := len(a.Nodes) - a.OutputCount
		a.Nodes = append(a.Nodes[:insertAt], append([]*Node{h}, a.Nodes[insertAt:]...)...)
		a.markStructureDirty()
		for i := 0; i < a.InputCount; i++ {
			if _, err := a.Connect(a.Nodes[i], h, 0.1); err != nil {
				t.Fatalf("connect: %v", err)
			}
		}
		for o := 0; o < a.OutputCount; o++ {
			if _, err := a.Connect(h, a.Nodes[len(a.Nodes)-a.OutputCount+o], 0.1); err != nil {
				t.Fatalf("connect: %v", err)
			}
		}
	}
	a.RebuildConnectionSlab(false)

	stats := SlabPoolStats()
	if stats.Fresh == 0 {
		t.Fatalf("expected fresh allocations to be counted")
	}

	// A second genome with the released capacity reuses pooled arrays.
	b := New(2, 2, cfg, rng)
	b.RebuildConnectionSlab(false)
	after := SlabPoolStats()
	if after.Pooled == 0 {
		t.Fatalf("expected pooled reuse, stats=%+v", after)
	}
}

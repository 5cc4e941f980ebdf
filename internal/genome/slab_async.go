package genome

import (
	"context"
	"runtime"
)

// Connection counts above this size halve the cooperative chunk to bound
// per-slice wall time on very large graphs.
const asyncAdaptiveThreshold = 8192

// RebuildConnectionSlabAsync is the cooperative variant of
// RebuildConnectionSlab: it yields the scheduler between chunks of at most
// chunkSize connections and converges to the same slab contents, version
// increment and omission decisions as the synchronous path. A non-positive
// chunk size falls back to the synchronous rebuild.
func (g *Genome) RebuildConnectionSlabAsync(ctx context.Context, chunkSize int) error {
	if !g.slabDirty && g.slab != nil {
		return nil
	}
	if chunkSize <= 0 {
		chunkSize = g.cfg.AsyncChunkSize
	}
	if chunkSize <= 0 {
		g.RebuildConnectionSlab(false)
		return nil
	}
	if len(g.Conns) > asyncAdaptiveThreshold {
		chunkSize = max(64, chunkSize/2)
	}

	st := g.beginSlabRebuild()
	if st.required <= chunkSize {
		g.packConnections(st, 0, st.required)
		g.finishSlabRebuild(st)
		return nil
	}

	for offset := 0; offset < st.required; offset += chunkSize {
		if err := ctx.Err(); err != nil {
			// Leave the slab dirty; a later rebuild starts over.
			g.slabDirty = true
			return err
		}
		end := offset + chunkSize
		if end > st.required {
			end = st.required
		}
		g.packConnections(st, offset, end)
		if end < st.required {
			runtime.Gosched()
		}
	}
	g.finishSlabRebuild(st)
	return nil
}

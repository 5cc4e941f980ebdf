package genome

import "fmt"

// slabArrayPool retains released slab arrays keyed by (kind, length) with a
// bounded stack per key. Arrays move between "retained by pool" and "owned by
// one genome's slab" exclusively; they are never aliased by two slabs. The
// retention depth per key comes from the releasing genome's configuration.
type slabArrayPool struct {
	f64 map[int][][]float64
	i32 map[int][][]int32
	u8  map[int][][]uint8

	fresh     int
	pooled    int
	highWater map[string]int
}

func newSlabArrayPool() *slabArrayPool {
	return &slabArrayPool{
		f64:       make(map[int][][]float64),
		i32:       make(map[int][][]int32),
		u8:        make(map[int][][]uint8),
		highWater: make(map[string]int),
	}
}

var slabPool = newSlabArrayPool()

// PoolStats summarizes slab array pool traffic.
type PoolStats struct {
	Fresh     int
	Pooled    int
	HighWater map[string]int
}

// SlabPoolStats reports allocation diagnostics for the process-wide pool.
func SlabPoolStats() PoolStats {
	hw := make(map[string]int, len(slabPool.highWater))
	for k, v := range slabPool.highWater {
		hw[k] = v
	}
	return PoolStats{Fresh: slabPool.fresh, Pooled: slabPool.pooled, HighWater: hw}
}

func resetSlabPoolForTests() {
	slabPool = newSlabArrayPool()
}

func (p *slabArrayPool) acquireF64(n int, pooling bool) []float64 {
	if pooling {
		if stack := p.f64[n]; len(stack) > 0 {
			arr := stack[len(stack)-1]
			p.f64[n] = stack[:len(stack)-1]
			p.pooled++
			return arr
		}
	}
	p.fresh++
	return make([]float64, n)
}

func (p *slabArrayPool) releaseF64(arr []float64, pooling bool, maxPerKey int) {
	if !pooling || arr == nil {
		return
	}
	n := len(arr)
	if len(p.f64[n]) >= maxPerKey {
		return
	}
	p.f64[n] = append(p.f64[n], arr)
	p.bumpHighWater("f64", n, len(p.f64[n]))
}

func (p *slabArrayPool) acquireI32(n int, pooling bool) []int32 {
	if pooling {
		if stack := p.i32[n]; len(stack) > 0 {
			arr := stack[len(stack)-1]
			p.i32[n] = stack[:len(stack)-1]
			p.pooled++
			return arr
		}
	}
	p.fresh++
	return make([]int32, n)
}

func (p *slabArrayPool) releaseI32(arr []int32, pooling bool, maxPerKey int) {
	if !pooling || arr == nil {
		return
	}
	n := len(arr)
	if len(p.i32[n]) >= maxPerKey {
		return
	}
	p.i32[n] = append(p.i32[n], arr)
	p.bumpHighWater("i32", n, len(p.i32[n]))
}

func (p *slabArrayPool) acquireU8(n int, pooling bool) []uint8 {
	if pooling {
		if stack := p.u8[n]; len(stack) > 0 {
			arr := stack[len(stack)-1]
			p.u8[n] = stack[:len(stack)-1]
			p.pooled++
			return arr
		}
	}
	p.fresh++
	return make([]uint8, n)
}

func (p *slabArrayPool) releaseU8(arr []uint8, pooling bool, maxPerKey int) {
	if !pooling || arr == nil {
		return
	}
	n := len(arr)
	if len(p.u8[n]) >= maxPerKey {
		return
	}
	p.u8[n] = append(p.u8[n], arr)
	p.bumpHighWater("u8", n, len(p.u8[n]))
}

func (p *slabArrayPool) bumpHighWater(kind string, n, depth int) {
	key := fmt.Sprintf("%s/%d", kind, n)
	if depth > p.highWater[key] {
		p.highWater[key] = depth
	}
}

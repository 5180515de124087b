// Package bounds implements the parallel bounds-and-validation reduction.
//
// Per-chunk bounds are computed inside the decode pass; this package
// combines them into the global bounding box. Min/max union is commutative
// and associative, so partial results can merge pairwise in any order and
// the outcome equals a serial scan over every vertex.
package bounds

import (
	"sync"

	"github.com/gogpu/meshload/internal/parallel"
	"github.com/gogpu/meshload/meshcore"
)

// Accumulator is the running global bounding box for one job.
//
// It is updated only through Consume and Merge under a single-writer
// discipline enforced here by a mutex; worker goroutines never mutate the
// box directly.
type Accumulator struct {
	mu     sync.Mutex
	box    meshcore.Bounds
	chunks int
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{box: meshcore.NewBounds()}
}

// Consume folds one completed chunk's local bounds into the global box.
// Called by the coordinator's merge loop as chunks complete, concurrently
// with ongoing chunk processing.
func (a *Accumulator) Consume(buf *meshcore.GeometryBuffer) {
	a.mu.Lock()
	a.box.Union(buf.Bounds)
	a.chunks++
	a.mu.Unlock()
}

// Merge folds a partial bound into the global box.
func (a *Accumulator) Merge(b meshcore.Bounds) {
	a.mu.Lock()
	a.box.Union(b)
	a.mu.Unlock()
}

// Result returns a snapshot of the current global bounds.
func (a *Accumulator) Result() meshcore.Bounds {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.box
}

// Chunks returns how many chunk bounds have been consumed.
func (a *Accumulator) Chunks() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks
}

// Reduce performs a parallel tree reduction over the buffers: each worker
// computes a local union over its span, and the partials combine pairwise
// until a single bound remains.
func Reduce(pool *parallel.Pool, buffers []*meshcore.GeometryBuffer) meshcore.Bounds {
	if len(buffers) == 0 {
		return meshcore.NewBounds()
	}

	spans := pool.Workers()
	if spans > len(buffers) {
		spans = len(buffers)
	}
	partials := make([]meshcore.Bounds, spans)
	per := (len(buffers) + spans - 1) / spans

	var wg sync.WaitGroup
	for s := 0; s < spans; s++ {
		start := s * per
		end := start + per
		if end > len(buffers) {
			end = len(buffers)
		}
		if start >= end {
			partials[s] = meshcore.NewBounds()
			continue
		}
		wg.Add(1)
		s := s
		pool.Submit(func() {
			defer wg.Done()
			local := meshcore.NewBounds()
			for _, buf := range buffers[start:end] {
				local.Union(buf.Bounds)
			}
			partials[s] = local
		})
	}
	wg.Wait()

	// Pairwise combine until one bound remains.
	for len(partials) > 1 {
		next := partials[:0:0]
		for i := 0; i < len(partials); i += 2 {
			b := partials[i]
			if i+1 < len(partials) {
				b.Union(partials[i+1])
			}
			next = append(next, b)
		}
		partials = next
	}
	return partials[0]
}

// SerialScan computes the bounds by a naive serial scan over every vertex
// of every buffer. It is the reference the parallel reduction must match.
func SerialScan(buffers []*meshcore.GeometryBuffer) meshcore.Bounds {
	box := meshcore.NewBounds()
	for _, buf := range buffers {
		for i := 0; i+2 < len(buf.Position); i += 3 {
			box.Add(buf.Position[i], buf.Position[i+1], buf.Position[i+2])
		}
	}
	return box
}

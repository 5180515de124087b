package meshload

import (
	"fmt"
	"sync"

	"github.com/gogpu/meshload/internal/parallel"
	"github.com/gogpu/meshload/internal/simd"
	"github.com/gogpu/meshload/meshcore"
)

// cpuProcessor is the always-available CPU processing path. It applies
// the same per-record transform as the GPU kernel, with the chunk's
// records split into contiguous spans across the worker pool and the
// validity check fused into the decode pass.
type cpuProcessor struct {
	pool *parallel.Pool
}

func newCPUProcessor(pool *parallel.Pool) *cpuProcessor {
	return &cpuProcessor{pool: pool}
}

// process decodes one chunk on the CPU. Output is numerically identical
// to the GPU path for the same input bytes: both reinterpret the same
// little-endian float bits without arithmetic on the coordinates.
func (p *cpuProcessor) process(req ProcessRequest) (*meshcore.GeometryBuffer, error) {
	records := req.Chunk.Records
	if want := records * req.Layout.RecordSize; len(req.Raw) != want {
		return nil, fmt.Errorf("meshload: chunk %d payload is %d bytes, want %d",
			req.Chunk.ID, len(req.Raw), want)
	}

	buf := &meshcore.GeometryBuffer{
		ChunkID:  req.Chunk.ID,
		Records:  records,
		Position: make([]float32, records*9),
		Normal:   make([]float32, records*9),
		Validity: make([]bool, records),
		Bounds:   meshcore.NewBounds(),
	}

	// Each span decodes into disjoint slices of the output arrays and
	// returns its local bound; the merge happens under a mutex so the
	// chunk bound is never written concurrently.
	var mu sync.Mutex
	p.pool.ForEachSpan(records, func(start, count int) {
		b := simd.DecodeRecords(req.Raw, req.Layout, start, count, buf.Position, buf.Normal, buf.Validity)
		mu.Lock()
		buf.Bounds.Union(b)
		mu.Unlock()
	})

	return buf, nil
}

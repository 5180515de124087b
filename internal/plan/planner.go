// Package plan computes record-aligned chunk partitions of an input file.
package plan

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/meshload/meshcore"
)

// ErrMisaligned is returned when the record payload is not an exact
// multiple of the record size. The caller surfaces this as a format error
// before any chunk work is scheduled.
var ErrMisaligned = errors.New("plan: payload size is not a multiple of record size")

// DefaultMaxChunkBytes is the default ceiling on chunk size. Bounding the
// chunk keeps per-chunk GPU transfer latency small and caps the worst-case
// cancellation latency to one chunk's processing time.
const DefaultMaxChunkBytes = 64 << 20

// Planner computes chunk partitions. The target chunk size adapts to the
// memory budget divided across worker threads, and halves under reported
// memory pressure; halving is the pipeline's sole backpressure mechanism.
//
// Planner is safe for concurrent use.
type Planner struct {
	mu sync.Mutex

	// maxChunkBytes is the configurable ceiling, DefaultMaxChunkBytes
	// when zero.
	maxChunkBytes int64

	// shrink is the number of times the target has been halved by
	// backpressure. It never shrinks the target below one record.
	shrink uint
}

// NewPlanner creates a planner with the given chunk ceiling in bytes.
// A non-positive ceiling selects DefaultMaxChunkBytes.
func NewPlanner(maxChunkBytes int64) *Planner {
	if maxChunkBytes <= 0 {
		maxChunkBytes = DefaultMaxChunkBytes
	}
	return &Planner{maxChunkBytes: maxChunkBytes}
}

// Halve shrinks the target chunk size for subsequent plans. Called by the
// coordinator when the resource manager reports memory pressure.
func (p *Planner) Halve() {
	p.mu.Lock()
	p.shrink++
	p.mu.Unlock()
}

// Reset restores the full target chunk size.
func (p *Planner) Reset() {
	p.mu.Lock()
	p.shrink = 0
	p.mu.Unlock()
}

// Plan partitions the record payload described by layout into
// record-aligned chunks. The chunks cover [HeaderSize, HeaderSize+payload)
// with no gaps or overlaps, and every chunk length is an exact multiple of
// the record size.
func (p *Planner) Plan(layout meshcore.Layout, backend meshcore.Backend, memoryBudget int64) ([]meshcore.Chunk, error) {
	if layout.RecordSize <= 0 {
		return nil, fmt.Errorf("plan: invalid record size %d", layout.RecordSize)
	}
	payload := layout.PayloadBytes()
	if payload%int64(layout.RecordSize) != 0 {
		return nil, fmt.Errorf("%w: payload %d, record size %d", ErrMisaligned, payload, layout.RecordSize)
	}
	if payload == 0 {
		return nil, nil
	}

	target := p.targetBytes(layout, backend, memoryBudget)
	recordsPerChunk := int(target / int64(layout.RecordSize))
	if recordsPerChunk < 1 {
		recordsPerChunk = 1
	}

	total := layout.RecordCount
	chunks := make([]meshcore.Chunk, 0, int(total/int64(recordsPerChunk))+1)
	offset := layout.HeaderSize
	for done := int64(0); done < total; {
		n := int64(recordsPerChunk)
		if remaining := total - done; n > remaining {
			n = remaining
		}
		length := n * int64(layout.RecordSize)
		chunks = append(chunks, meshcore.Chunk{
			ID:      len(chunks),
			Start:   offset,
			End:     offset + length,
			Records: int(n),
		})
		offset += length
		done += n
	}
	return chunks, nil
}

// targetBytes computes the record-aligned target chunk size: the memory
// budget spread across worker threads, clamped to [one record, ceiling],
// then halved once per recorded backpressure event. The floor stays at one
// record; chunking cannot go finer than the unit of decode.
func (p *Planner) targetBytes(layout meshcore.Layout, backend meshcore.Backend, memoryBudget int64) int64 {
	threads := backend.CPUThreads
	if threads < 1 {
		threads = 1
	}

	target := memoryBudget / int64(threads)
	if target > p.maxChunkBytes {
		target = p.maxChunkBytes
	}
	// A chunk in flight holds both its raw bytes and its decoded output,
	// roughly 2.5x the raw length. Keep one chunk's footprint inside the
	// budget so a single acquisition can never wedge against the ledger.
	if lim := memoryBudget / 3; target > lim {
		target = lim
	}

	p.mu.Lock()
	for i := uint(0); i < p.shrink && target > int64(layout.RecordSize); i++ {
		target /= 2
	}
	p.mu.Unlock()

	if target < int64(layout.RecordSize) {
		target = int64(layout.RecordSize)
	}
	// Record alignment.
	return target - target%int64(layout.RecordSize)
}

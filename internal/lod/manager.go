// Package lod derives progressive level-of-detail tiers from completed
// chunks, so the caller has something to render within the first few
// chunks instead of waiting for end-of-stream.
package lod

import (
	"sync"

	"github.com/gogpu/meshload/meshcore"
)

// DefaultPreviewStride selects every Nth chunk for the level-0 preview.
const DefaultPreviewStride = 8

// Manager tracks chunk completion and decides when a new LOD tier is
// ready. Level 0 is a coarse preview built from a strided subset of
// chunks; each later level doubles the triangle budget until the full
// mesh is covered. Under memory pressure the maximum level is capped
// rather than exceeding the budget.
//
// Manager is safe for concurrent use.
type Manager struct {
	mu sync.Mutex

	totalChunks  int
	totalRecords int64
	stride       int

	completed map[int]bool
	emitted   int // next level index to emit
	capped    bool
}

// NewManager creates a manager for a job with the given chunk partition.
func NewManager(chunks []meshcore.Chunk) *Manager {
	var records int64
	for _, c := range chunks {
		records += int64(c.Records)
	}
	stride := DefaultPreviewStride
	if len(chunks) < stride {
		stride = 1
	}
	return &Manager{
		totalChunks:  len(chunks),
		totalRecords: records,
		stride:       stride,
		completed:    make(map[int]bool),
	}
}

// CapLevels limits LOD growth. Set when the resource manager reports
// memory pressure; already-emitted levels stay valid.
func (m *Manager) CapLevels(capped bool) {
	m.mu.Lock()
	m.capped = capped
	m.mu.Unlock()
}

// ChunkCompleted records a merged chunk and returns the next LOD tier if
// one became ready, or nil. The first tier requires only that the merged
// chunks yield a non-degenerate bound; it does not wait for full-job
// completion.
func (m *Manager) ChunkCompleted(id int, globalBounds meshcore.Bounds) *meshcore.LODLevel {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.completed[id] = true

	switch {
	case m.emitted == 0:
		// Preview: ready as soon as the bound is non-degenerate and the
		// strided subset has at least one member.
		if globalBounds.Empty() {
			return nil
		}
		level := m.buildLocked(0)
		if len(level.SourceChunks) == 0 {
			return nil
		}
		m.emitted = 1
		return level

	case m.capped:
		return nil

	default:
		// Upgrade: each level wants twice the chunk coverage of the
		// previous one.
		need := m.stride >> uint(m.emitted)
		if need < 1 {
			need = 1
		}
		covered := 0
		for id := range m.completed {
			if id%need == 0 {
				covered++
			}
		}
		want := (m.totalChunks + need - 1) / need
		if covered < want {
			return nil
		}
		level := m.buildLocked(m.emitted)
		m.emitted++
		return level
	}
}

// Final returns the full-detail tier covering every chunk. Called once
// when the job completes.
func (m *Manager) Final() *meshcore.LODLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunks := make([]int, 0, m.totalChunks)
	for i := 0; i < m.totalChunks; i++ {
		chunks = append(chunks, i)
	}
	return &meshcore.LODLevel{
		Level:          m.emitted,
		TriangleBudget: int(m.totalRecords),
		SourceChunks:   chunks,
	}
}

// buildLocked assembles the tier for the given level from the completed
// chunks that fall on the level's stride. Caller must hold mu.
func (m *Manager) buildLocked(level int) *meshcore.LODLevel {
	stride := m.stride >> uint(level)
	if stride < 1 {
		stride = 1
	}
	var src []int
	for i := 0; i < m.totalChunks; i += stride {
		if m.completed[i] {
			src = append(src, i)
		}
	}
	budget := int(m.totalRecords) / stride
	if budget < 1 {
		budget = 1
	}
	return &meshcore.LODLevel{
		Level:          level,
		TriangleBudget: budget,
		SourceChunks:   src,
	}
}

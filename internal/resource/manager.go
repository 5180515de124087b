// Package resource tracks host and GPU memory budgets, detects hardware
// capability, and streams file input without materializing whole files.
package resource

import (
	"errors"
	"fmt"
	"sync"
)

// Budget errors.
var (
	// ErrOutOfMemory is returned when an acquisition would exceed the
	// budget.
	ErrOutOfMemory = errors.New("resource: memory budget exceeded")

	// ErrManagerClosed is returned when operating on a closed manager.
	ErrManagerClosed = errors.New("resource: manager closed")
)

// Default budgets and thresholds.
const (
	// DefaultHostBudgetBytes is used when host memory cannot be queried
	// (256 MB, matching the default GPU budget gg uses).
	DefaultHostBudgetBytes = 256 << 20

	// PressureThreshold is the utilization fraction above which the
	// manager reports memory pressure (matches gg's eviction threshold).
	PressureThreshold = 0.8
)

// Stats describes one pool's usage.
type Stats struct {
	BudgetBytes      int64
	OutstandingBytes int64
	Acquisitions     uint64
	Utilization      float64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Budget[%.1f%% used, %d/%d MB, %d acquisitions]",
		s.Utilization*100,
		s.OutstandingBytes/(1<<20),
		s.BudgetBytes/(1<<20),
		s.Acquisitions)
}

// Pool is a memory budget ledger. It does not allocate; it accounts for
// allocations made elsewhere so that the number of chunks in flight stays
// bounded relative to file size.
//
// Pool is safe for concurrent use.
type Pool struct {
	mu           sync.Mutex
	budget       int64
	outstanding  int64
	acquisitions uint64
	closed       bool
}

// NewPool creates a ledger with the given budget in bytes.
// Non-positive budgets select DefaultHostBudgetBytes.
func NewPool(budget int64) *Pool {
	if budget <= 0 {
		budget = DefaultHostBudgetBytes
	}
	return &Pool{budget: budget}
}

// Handle represents one acquisition. Release returns the bytes to the
// pool and is idempotent, so it is safe to release on every exit path.
type Handle struct {
	pool    *Pool
	bytes   int64
	release sync.Once
}

// Bytes returns the acquisition size.
func (h *Handle) Bytes() int64 { return h.bytes }

// Release returns the handle's bytes to the pool. Safe to call multiple
// times and on all exit paths: success, error, and cancellation.
func (h *Handle) Release() {
	h.release.Do(func() {
		h.pool.mu.Lock()
		h.pool.outstanding -= h.bytes
		h.pool.mu.Unlock()
	})
}

// Acquire reserves bytes from the budget. A single acquisition larger
// than the whole budget is rejected outright; otherwise the caller gets a
// handle that must be released on every exit path.
func (p *Pool) Acquire(bytes int64) (*Handle, error) {
	if bytes < 0 {
		return nil, fmt.Errorf("resource: negative acquisition %d", bytes)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrManagerClosed
	}
	if p.outstanding+bytes > p.budget {
		return nil, fmt.Errorf("%w: need %d bytes, %d of %d in use",
			ErrOutOfMemory, bytes, p.outstanding, p.budget)
	}
	p.outstanding += bytes
	p.acquisitions++
	return &Handle{pool: p, bytes: bytes}, nil
}

// Pressure reports whether utilization exceeds the pressure threshold.
// The chunk planner halves its target size when this is set; that is the
// pipeline's sole backpressure mechanism.
func (p *Pool) Pressure() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.outstanding) > float64(p.budget)*PressureThreshold
}

// Stats returns a snapshot of the ledger.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	var util float64
	if p.budget > 0 {
		util = float64(p.outstanding) / float64(p.budget)
	}
	return Stats{
		BudgetBytes:      p.budget,
		OutstandingBytes: p.outstanding,
		Acquisitions:     p.acquisitions,
		Utilization:      util,
	}
}

// Budget returns the pool budget in bytes.
func (p *Pool) Budget() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.budget
}

// Close marks the pool closed. Outstanding handles can still be released.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Manager bundles the host and GPU budget ledgers for one coordinator.
type Manager struct {
	Host *Pool
	GPU  *Pool
}

// NewManager creates a manager with the given budgets in bytes.
// A zero GPU budget yields a GPU pool that rejects every acquisition,
// which is the correct behavior when no GPU is present.
func NewManager(hostBudget, gpuBudget int64) *Manager {
	gpu := &Pool{budget: gpuBudget}
	return &Manager{Host: NewPool(hostBudget), GPU: gpu}
}

// Outstanding returns the combined outstanding bytes of both pools.
// The leak property tests rely on this reading zero after every terminal
// job state.
func (m *Manager) Outstanding() int64 {
	return m.Host.Stats().OutstandingBytes + m.GPU.Stats().OutstandingBytes
}

// Close closes both ledgers.
func (m *Manager) Close() {
	m.Host.Close()
	m.GPU.Close()
}

package meshload

import "time"

// Default tuning values.
const (
	// DefaultGPUTimeout bounds one chunk's GPU dispatch. Expiry falls
	// the chunk back to CPU, it does not fail the job.
	DefaultGPUTimeout = 2 * time.Second

	// DefaultStallTimeout fails a job when no chunk completes within the
	// window.
	DefaultStallTimeout = 10 * time.Second
)

// Options configures a Coordinator. The zero value selects sensible
// defaults for every field.
type Options struct {
	// Workers is the CPU worker count for chunk processing.
	// Zero selects the detected logical CPU thread count.
	Workers int

	// HostBudgetBytes caps host memory held by in-flight chunk data.
	// Zero derives a budget from available system memory.
	HostBudgetBytes int64

	// MaxChunkBytes is the ceiling on planned chunk size.
	// Zero selects the 64 MiB default.
	MaxChunkBytes int64

	// GPUTimeout is the per-chunk GPU dispatch timeout.
	// Zero selects DefaultGPUTimeout.
	GPUTimeout time.Duration

	// StallTimeout is the per-job stall window.
	// Zero selects DefaultStallTimeout.
	StallTimeout time.Duration

	// Format overrides the file format detector.
	// Nil selects the built-in binary STL format.
	Format Format

	// DisableGPU forces the CPU path even when a GPU processor is
	// registered. Useful for tests and for equivalence checks.
	DisableGPU bool
}

func (o Options) withDefaults() Options {
	if o.GPUTimeout <= 0 {
		o.GPUTimeout = DefaultGPUTimeout
	}
	if o.StallTimeout <= 0 {
		o.StallTimeout = DefaultStallTimeout
	}
	if o.Format == nil {
		o.Format = STLBinary{}
	}
	return o
}

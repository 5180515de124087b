package meshload

import (
	"context"
	"errors"
	"sync"

	"github.com/gogpu/meshload/meshcore"
)

// ErrFallbackToCPU indicates the GPU processor cannot handle a chunk
// (kernel launch failure, device OOM, timeout). The coordinator retries
// the chunk on the CPU path transparently; GPU failure is never fatal to
// a job.
var ErrFallbackToCPU = errors.New("meshload: falling back to CPU processing")

// ProcessRequest carries one chunk's raw bytes and decode rule to a
// processor.
type ProcessRequest struct {
	Chunk  meshcore.Chunk
	Layout meshcore.Layout

	// Raw is the chunk's record payload, Chunk.Bytes() long.
	Raw []byte
}

// GPUProcessor is an optional GPU compute provider for record decoding.
//
// When registered via RegisterProcessor, the coordinator attempts the GPU
// path first for each chunk. If ProcessChunk returns ErrFallbackToCPU or
// any other error, the chunk is retried on the CPU path and the job's
// fell_back_to_cpu flag is set.
//
// Implementations are provided by GPU backend packages. Users opt in via
// blank import:
//
//	import _ "github.com/gogpu/meshload/gpu" // enables GPU processing
type GPUProcessor interface {
	// Name returns the processor name (e.g. "wgpu").
	Name() string

	// Init initializes GPU resources. Called once during registration.
	Init() error

	// Close releases GPU resources.
	Close()

	// Ready reports whether the GPU is usable. A processor whose device
	// initialization failed stays registered but not ready.
	Ready() bool

	// MemoryBytes returns the usable GPU memory budget in bytes, or 0
	// when unknown or not ready.
	MemoryBytes() uint64

	// ProcessChunk decodes all records of one chunk in a single kernel
	// dispatch. The context deadline bounds the dispatch; expiry must
	// surface as an error so the chunk can fall back to CPU.
	ProcessChunk(ctx context.Context, req ProcessRequest) (*meshcore.GeometryBuffer, error)
}

var (
	procMu sync.RWMutex
	proc   GPUProcessor
)

// RegisterProcessor registers a GPU processor.
//
// Only one processor can be registered; subsequent calls replace the
// previous one. Init is called during registration; if it fails the
// processor is not registered and the error is returned.
func RegisterProcessor(p GPUProcessor) error {
	if p == nil {
		return errors.New("meshload: processor must not be nil")
	}
	if err := p.Init(); err != nil {
		return err
	}
	propagateLogger(p, Logger())

	procMu.Lock()
	old := proc
	proc = p
	procMu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Processor returns the registered GPU processor, or nil if none.
func Processor() GPUProcessor {
	procMu.RLock()
	p := proc
	procMu.RUnlock()
	return p
}

// DeviceProviderAware is an optional interface for processors that can
// share a GPU device with an external provider (e.g. a gogpu window).
type DeviceProviderAware interface {
	SetDeviceProvider(provider any) error
}

// SetProcessorDeviceProvider passes a device provider to the registered
// processor, enabling GPU device sharing. No-op when no processor is
// registered or it does not support sharing.
func SetProcessorDeviceProvider(provider any) error {
	p := Processor()
	if p == nil {
		return nil
	}
	if dpa, ok := p.(DeviceProviderAware); ok {
		return dpa.SetDeviceProvider(provider)
	}
	return nil
}

package meshload

import (
	"github.com/gogpu/meshload/internal/resource"
	"github.com/gogpu/meshload/meshcore"
)

// DetectHardware takes a hardware capability snapshot: logical CPU
// threads and host memory from the system, GPU availability and memory
// from the registered processor.
//
// The coordinator queries this once per job at dispatch time; the
// snapshot is immutable for the job's lifetime.
func DetectHardware() meshcore.Backend {
	host := resource.DetectHost()
	backend := meshcore.Backend{CPUThreads: host.Threads}

	if p := Processor(); p != nil && p.Ready() {
		backend.GPUAvailable = true
		backend.GPUMemoryBytes = p.MemoryBytes()
	}
	return backend
}

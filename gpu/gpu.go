//go:build !nogpu

// Package gpu registers the wgpu compute processor for
// hardware-accelerated record decoding.
//
// Import this package to route chunk decoding through GPU compute
// dispatches. Chunks the GPU cannot handle (device loss, out of GPU
// memory, dispatch timeout) fall back to the CPU path transparently.
//
// If GPU initialization fails (no Vulkan available), the processor
// stays registered but not ready and all processing runs on CPU.
//
// Usage:
//
//	import _ "github.com/gogpu/meshload/gpu" // enable GPU decoding
package gpu

import (
	"github.com/gogpu/meshload"
	gpuimpl "github.com/gogpu/meshload/internal/gpu"
)

func init() {
	proc := &gpuimpl.MeshProcessor{}
	if err := meshload.RegisterProcessor(proc); err != nil {
		meshload.Logger().Warn("GPU processor not available", "err", err)
	}
}

// SetDeviceProvider configures the processor to use a shared GPU device
// from an external provider (e.g. gogpu). This avoids creating a
// separate GPU instance when the host application already owns one.
//
// The provider should be a gpucontext.DeviceProvider that also
// implements gpucontext.HalProvider for direct HAL access.
func SetDeviceProvider(provider any) error {
	return meshload.SetProcessorDeviceProvider(provider)
}

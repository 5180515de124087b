//go:build !nogpu

package gpu

import (
	"errors"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/meshload"
)

// ErrNilProvider is returned when a nil DeviceProvider is passed.
var ErrNilProvider = errors.New("meshload/gpu: nil DeviceProvider")

// SetDevice wires the processor to a shared device from a gogpu
// context. The provider may not implement gpucontext.HalProvider; in
// that case the processor keeps its own device and the call reports the
// mismatch.
//
// Example:
//
//	app.OnReady(func(ctx *gogpu.Context) {
//	    gpu.SetDevice(ctx)
//	})
func SetDevice(provider gpucontext.DeviceProvider) error {
	if provider == nil {
		return ErrNilProvider
	}
	return meshload.SetProcessorDeviceProvider(provider)
}

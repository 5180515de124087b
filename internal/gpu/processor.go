//go:build !nogpu

// Package gpu implements the wgpu/hal compute processor for record
// decoding. It is registered through the public meshload/gpu package.
package gpu

import (
	"context"
	_ "embed"
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"
	"unsafe"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import Vulkan backend so it registers via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/gogpu/meshload"
	"github.com/gogpu/meshload/meshcore"
)

//go:embed shaders/mesh_records.wgsl
var meshRecordsShaderSource string

// outWordsPerRecord matches OUT_WORDS_PER_RECORD in the shader:
// 9 position floats, 9 normal floats, 1 validity word.
const outWordsPerRecord = 19

// defaultMemoryBudget is reported when the adapter does not expose its
// memory size. The HAL has no portable VRAM query, so a conservative
// figure keeps the coordinator's GPU ledger from overcommitting.
const defaultMemoryBudget = 1 << 30

// frameParams mirrors the shader's Params uniform.
type frameParams struct {
	RecordCount  uint32
	RecordStride uint32
	NormalOffset uint32
	VertexOffset uint32
}

// MeshProcessor decodes chunk records with a wgpu/hal compute dispatch.
// It implements meshload.GPUProcessor.
//
// Dispatches are serialized by the coordinator's GPU lane, so the mutex
// only guards lifecycle transitions against concurrent Close.
type MeshProcessor struct {
	mu sync.Mutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	shader     hal.ShaderModule
	bindLayout hal.BindGroupLayout
	pipeLayout hal.PipelineLayout
	pipeline   hal.ComputePipeline

	gpuReady       bool
	externalDevice bool // shared device: don't destroy on Close
}

var _ meshload.GPUProcessor = (*MeshProcessor)(nil)

func (p *MeshProcessor) Name() string { return "wgpu-compute" }

func (p *MeshProcessor) Init() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.initGPU(); err != nil {
		slogger().Warn("GPU init failed, processing stays on CPU", "err", err)
	}
	return nil
}

func (p *MeshProcessor) Ready() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.gpuReady
}

func (p *MeshProcessor) MemoryBytes() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.gpuReady {
		return 0
	}
	return defaultMemoryBudget
}

func (p *MeshProcessor) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.destroyPipelines()
	if !p.externalDevice {
		if p.device != nil {
			p.device.Destroy()
			p.device = nil
		}
		if p.instance != nil {
			p.instance.Destroy()
			p.instance = nil
		}
	} else {
		// Shared resources are owned by the provider.
		p.device = nil
		p.instance = nil
	}
	p.queue = nil
	p.gpuReady = false
	p.externalDevice = false
}

// SetDeviceProvider switches the processor to a shared GPU device from
// an external provider (e.g. gogpu). The provider must implement
// HalDevice() any and HalQueue() any returning hal.Device and hal.Queue.
func (p *MeshProcessor) SetDeviceProvider(provider any) error {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return fmt.Errorf("mesh-gpu: provider does not expose HAL types")
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return fmt.Errorf("mesh-gpu: provider HalDevice is not hal.Device")
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return fmt.Errorf("mesh-gpu: provider HalQueue is not hal.Queue")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.destroyPipelines()
	if !p.externalDevice && p.device != nil {
		p.device.Destroy()
	}
	if p.instance != nil {
		p.instance.Destroy()
		p.instance = nil
	}

	p.device = device
	p.queue = queue
	p.externalDevice = true

	if err := p.createPipelines(); err != nil {
		p.gpuReady = false
		return fmt.Errorf("mesh-gpu: create pipelines with shared device: %w", err)
	}
	p.gpuReady = true
	slogger().Info("switched to shared GPU device")
	return nil
}

// ProcessChunk runs one chunk through the decode kernel and reads the
// results back. The context deadline bounds the fence wait; expiry
// surfaces as an error so the coordinator retries the chunk on CPU.
func (p *MeshProcessor) ProcessChunk(ctx context.Context, req meshload.ProcessRequest) (*meshcore.GeometryBuffer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.gpuReady {
		return nil, meshload.ErrFallbackToCPU
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := req.Chunk.Records
	if len(req.Raw) != records*req.Layout.RecordSize {
		return nil, fmt.Errorf("mesh-gpu: raw payload is %d bytes, want %d",
			len(req.Raw), records*req.Layout.RecordSize)
	}
	outSize := uint64(records) * outWordsPerRecord * 4

	readback, err := p.dispatch(ctx, req, outSize)
	if err != nil {
		return nil, err
	}
	return unpackResults(req.Chunk, readback), nil
}

// dispatch uploads the chunk, runs the kernel, and returns the raw
// output words.
func (p *MeshProcessor) dispatch(ctx context.Context, req meshload.ProcessRequest, outSize uint64) ([]byte, error) {
	// Storage buffers are word granular; the 50-byte record stride is
	// not, so the upload is padded and the shader splices unaligned
	// floats from adjacent words.
	padded := req.Raw
	if rem := len(padded) % 4; rem != 0 {
		padded = append(append([]byte(nil), req.Raw...), make([]byte, 4-rem)...)
	}

	rawBuf, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mesh_raw", Size: uint64(len(padded)) + 4,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create raw buffer: %w", err)
	}
	defer p.device.DestroyBuffer(rawBuf)

	outBuf, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mesh_out", Size: outSize,
		Usage: gputypes.BufferUsageStorage | gputypes.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create output buffer: %w", err)
	}
	defer p.device.DestroyBuffer(outBuf)

	stagingBuf, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mesh_staging", Size: outSize,
		Usage: gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	defer p.device.DestroyBuffer(stagingBuf)

	params := frameParams{
		RecordCount:  uint32(req.Chunk.Records),  //nolint:gosec // bounded by chunk plan
		RecordStride: uint32(req.Layout.RecordSize),
		NormalOffset: uint32(req.Layout.NormalOffset),
		VertexOffset: uint32(req.Layout.VertexOffset),
	}
	paramSize := uint64(unsafe.Sizeof(params))
	paramBuf, err := p.device.CreateBuffer(&hal.BufferDescriptor{
		Label: "mesh_params", Size: paramSize,
		Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("create params buffer: %w", err)
	}
	defer p.device.DestroyBuffer(paramBuf)

	p.queue.WriteBuffer(rawBuf, 0, padded)
	p.queue.WriteBuffer(paramBuf, 0, structToBytes(unsafe.Pointer(&params), unsafe.Sizeof(params))) //nolint:gosec // safe struct access

	bindGroup, err := p.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label: "mesh_bind", Layout: p.bindLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{Buffer: paramBuf.NativeHandle(), Offset: 0, Size: paramSize}},
			{Binding: 1, Resource: gputypes.BufferBinding{Buffer: rawBuf.NativeHandle(), Offset: 0, Size: uint64(len(padded)) + 4}},
			{Binding: 2, Resource: gputypes.BufferBinding{Buffer: outBuf.NativeHandle(), Offset: 0, Size: outSize}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	defer p.device.DestroyBindGroup(bindGroup)

	encoder, err := p.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "mesh_encoder"})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("mesh_records"); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}

	pass := encoder.BeginComputePass(&hal.ComputePassDescriptor{Label: "mesh_pass"})
	pass.SetPipeline(p.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Dispatch(uint32((req.Chunk.Records+63)/64), 1, 1) //nolint:gosec // bounded by chunk plan
	pass.End()

	encoder.CopyBufferToBuffer(outBuf, stagingBuf, []hal.BufferCopy{
		{SrcOffset: 0, DstOffset: 0, Size: outSize},
	})
	cmdBuf, err := encoder.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("end encoding: %w", err)
	}
	defer p.device.FreeCommandBuffer(cmdBuf)

	fence, err := p.device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	defer p.device.DestroyFence(fence)
	if err := p.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		return nil, fmt.Errorf("submit: %w", err)
	}

	wait := 2 * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
		if wait <= 0 {
			return nil, context.DeadlineExceeded
		}
	}
	fenceOK, err := p.device.Wait(fence, 1, wait)
	if err != nil {
		return nil, fmt.Errorf("wait for GPU: %w", err)
	}
	if !fenceOK {
		return nil, fmt.Errorf("mesh-gpu: kernel dispatch timed out after %s", wait)
	}

	readback := make([]byte, outSize)
	if err := p.queue.ReadBuffer(stagingBuf, 0, readback); err != nil {
		return nil, fmt.Errorf("readback: %w", err)
	}
	return readback, nil
}

// unpackResults converts the kernel's output words into a
// GeometryBuffer, folding the chunk bounds over finite coordinates in
// the same pass.
func unpackResults(c meshcore.Chunk, readback []byte) *meshcore.GeometryBuffer {
	buf := &meshcore.GeometryBuffer{
		ChunkID:  c.ID,
		Records:  c.Records,
		Position: make([]float32, c.Records*9),
		Normal:   make([]float32, c.Records*9),
		Validity: make([]bool, c.Records),
		Bounds:   meshcore.NewBounds(),
	}
	for i := 0; i < c.Records; i++ {
		base := i * outWordsPerRecord * 4
		o := i * 9
		for j := 0; j < 9; j++ {
			buf.Position[o+j] = f32At(readback, base+j*4)
			buf.Normal[o+j] = f32At(readback, base+36+j*4)
		}
		buf.Validity[i] = binary.LittleEndian.Uint32(readback[base+72:]) != 0
		buf.Bounds.Add(buf.Position[o], buf.Position[o+1], buf.Position[o+2])
		buf.Bounds.Add(buf.Position[o+3], buf.Position[o+4], buf.Position[o+5])
		buf.Bounds.Add(buf.Position[o+6], buf.Position[o+7], buf.Position[o+8])
	}
	return buf
}

func f32At(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func (p *MeshProcessor) initGPU() error {
	backend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("vulkan backend not available")
	}
	instance, err := backend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("create instance: %w", err)
	}
	p.instance = instance
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		return fmt.Errorf("no GPU adapters found")
	}
	var selected *hal.ExposedAdapter
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
			adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
			break
		}
	}
	if selected == nil {
		selected = &adapters[0]
	}
	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return fmt.Errorf("open device: %w", err)
	}
	p.device = openDev.Device
	p.queue = openDev.Queue
	if err := p.createPipelines(); err != nil {
		p.device.Destroy()
		p.device = nil
		p.queue = nil
		return fmt.Errorf("create pipelines: %w", err)
	}
	p.gpuReady = true
	slogger().Info("GPU processor initialized", "adapter", selected.Info.Name)
	return nil
}

func (p *MeshProcessor) createPipelines() error {
	shader, err := p.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "mesh_records",
		Source: hal.ShaderSource{WGSL: meshRecordsShaderSource},
	})
	if err != nil {
		return fmt.Errorf("compile mesh_records shader: %w", err)
	}
	p.shader = shader

	bindLayout, err := p.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "mesh_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{Binding: 0, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform}},
			{Binding: 1, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeReadOnlyStorage}},
			{Binding: 2, Visibility: gputypes.ShaderStageCompute, Buffer: &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeStorage}},
		},
	})
	if err != nil {
		return fmt.Errorf("create bind group layout: %w", err)
	}
	p.bindLayout = bindLayout

	pipeLayout, err := p.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label: "mesh_pipe_layout", BindGroupLayouts: []hal.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return fmt.Errorf("create pipeline layout: %w", err)
	}
	p.pipeLayout = pipeLayout

	pipeline, err := p.device.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label: "mesh_pipeline", Layout: p.pipeLayout,
		Compute: hal.ComputeState{Module: p.shader, EntryPoint: "main"},
	})
	if err != nil {
		return fmt.Errorf("create compute pipeline: %w", err)
	}
	p.pipeline = pipeline

	return nil
}

func (p *MeshProcessor) destroyPipelines() {
	if p.device == nil {
		return
	}
	if p.pipeline != nil {
		p.device.DestroyComputePipeline(p.pipeline)
	}
	if p.pipeLayout != nil {
		p.device.DestroyPipelineLayout(p.pipeLayout)
	}
	if p.bindLayout != nil {
		p.device.DestroyBindGroupLayout(p.bindLayout)
	}
	if p.shader != nil {
		p.device.DestroyShaderModule(p.shader)
	}
	p.pipeline = nil
	p.pipeLayout = nil
	p.bindLayout = nil
	p.shader = nil
}

func structToBytes(ptr unsafe.Pointer, size uintptr) []byte {
	return unsafe.Slice((*byte)(ptr), size) //nolint:gosec // safe struct serialization
}

//go:build windows

package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/go-webgpu/webgpu/wgpu"
)

// Runtime owns the WebGPU instance, adapter, device, and queue, plus the
// shader and pipeline caches shared by every engine compiled on it.
type Runtime struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	shaders   map[string]*wgpu.ShaderModule
	pipelines map[string]*wgpu.ComputePipeline
	mu        sync.RWMutex

	adapterInfo *wgpu.AdapterInfo
	pool        *BufferPool
}

// NewRuntime initializes WebGPU and requests a high-performance adapter.
// Returns ErrUnavailable when the native library or an adapter is missing.
func NewRuntime() (rt *Runtime, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			rt = nil
			err = fmt.Errorf("%w: %v", ErrUnavailable, r)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("%w: no adapter: %v", ErrUnavailable, adapterErr)
	}

	adapterInfo := adapter.GetInfo()

	device, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %w", deviceErr)
	}

	queue := device.GetQueue()
	if queue == nil {
		device.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue")
	}

	return &Runtime{
		instance:    instance,
		adapter:     adapter,
		device:      device,
		queue:       queue,
		shaders:     make(map[string]*wgpu.ShaderModule),
		pipelines:   make(map[string]*wgpu.ComputePipeline),
		adapterInfo: &adapterInfo,
		pool:        NewBufferPool(device),
	}, nil
}

// AdapterName reports the device the runtime landed on.
func (rt *Runtime) AdapterName() string {
	if rt.adapterInfo == nil {
		return "unknown"
	}
	return rt.adapterInfo.Device
}

// Release frees all cached pipelines and the device chain.
func (rt *Runtime) Release() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	for _, p := range rt.pipelines {
		p.Release()
	}
	for _, s := range rt.shaders {
		s.Release()
	}
	rt.pipelines = map[string]*wgpu.ComputePipeline{}
	rt.shaders = map[string]*wgpu.ShaderModule{}
	rt.pool.Release()
	rt.queue.Release()
	rt.device.Release()
	rt.adapter.Release()
	rt.instance.Release()
}

// pipeline returns a cached compute pipeline for the named shader,
// compiling it on first use.
func (rt *Runtime) pipeline(name, code string) *wgpu.ComputePipeline {
	rt.mu.RLock()
	if p, ok := rt.pipelines[name]; ok {
		rt.mu.RUnlock()
		return p
	}
	rt.mu.RUnlock()

	shader := rt.device.CreateShaderModuleWGSL(code)
	pipeline := rt.device.CreateComputePipelineSimple(nil, shader, "main")

	rt.mu.Lock()
	rt.shaders[name] = shader
	rt.pipelines[name] = pipeline
	rt.mu.Unlock()
	return pipeline
}

// uploadBuffer creates a storage buffer pre-filled with data via
// MappedAtCreation.
func (rt *Runtime) uploadBuffer(data []byte, usage wgpu.BufferUsage) *wgpu.Buffer {
	size := uint64(len(data))
	buffer := rt.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            usage,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mapped := unsafe.Slice((*byte)(buffer.GetMappedRange(0, size)), size)
	copy(mapped, data)
	buffer.Unmap()
	return buffer
}

// uniformBuffer creates a 16-byte aligned uniform buffer holding params.
func (rt *Runtime) uniformBuffer(data []byte) *wgpu.Buffer {
	alignedSize := (uint64(len(data)) + 15) &^ 15
	buffer := rt.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		Size:             alignedSize,
		MappedAtCreation: wgpu.True,
	})
	mapped := unsafe.Slice((*byte)(buffer.GetMappedRange(0, alignedSize)), alignedSize)
	copy(mapped, data)
	buffer.Unmap()
	return buffer
}

// readBuffer copies a device buffer back to host memory through a
// MapRead staging buffer; storage buffers cannot be mapped directly.
func (rt *Runtime) readBuffer(src *wgpu.Buffer, size uint64) ([]byte, error) {
	staging := rt.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := rt.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(src, 0, staging, 0, size)
	rt.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(rt.device, wgpu.MapModeRead, 0, size); err != nil {
		return nil, fmt.Errorf("webgpu: mapping staging buffer: %w", err)
	}
	mapped := unsafe.Slice((*byte)(staging.GetMappedRange(0, size)), size)
	out := make([]byte, size)
	copy(out, mapped)
	staging.Unmap()
	return out, nil
}

// writeBuffer uploads host bytes into an existing device buffer through
// a transient MappedAtCreation staging buffer.
func (rt *Runtime) writeBuffer(dst *wgpu.Buffer, data []byte) {
	staging := rt.uploadBuffer(data, wgpu.BufferUsageCopySrc)
	defer staging.Release()

	encoder := rt.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, dst, 0, uint64(len(data)))
	rt.queue.Submit(encoder.Finish(nil))
}

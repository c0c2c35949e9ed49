//go:build windows

package webgpu

import (
	"fmt"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"

	"github.com/graft-ml/graft/internal/infer"
	"github.com/graft-ml/graft/internal/tensor"
)

// zeroKey resolves to the engine's one-element scratch buffer.
const zeroKey = "zero"

// Engine is a compiled graph ready to execute on the WebGPU device. It
// satisfies the inference engine contract, so execution contexts, device
// buffers, and streams all come from here.
type Engine struct {
	rt *Runtime

	inputNames  []string
	outputNames []string
	tensors     map[string]infer.TensorInfo

	slotOf    map[string]string // engine tensor name -> value key
	sizes     map[string]uint64 // value key -> byte size
	constBufs map[string]*wgpu.Buffer
	steps     []*step
	zeroBuf   *wgpu.Buffer
}

func (e *Engine) Device() tensor.Device { return tensor.WebGPU }
func (e *Engine) InputNames() []string  { return e.inputNames }
func (e *Engine) OutputNames() []string { return e.outputNames }

func (e *Engine) TensorInfo(name string) (infer.TensorInfo, bool) {
	ti, ok := e.tensors[name]
	return ti, ok
}

// Release frees the engine's constant and parameter buffers. Compiled
// pipelines stay cached on the runtime.
func (e *Engine) Release() {
	for _, buf := range e.constBufs {
		buf.Release()
	}
	e.constBufs = map[string]*wgpu.Buffer{}
	for _, s := range e.steps {
		if s.params != nil {
			s.params.Release()
		}
	}
	if e.zeroBuf != nil {
		e.zeroBuf.Release()
		e.zeroBuf = nil
	}
}

func (e *Engine) AllocDevice(size int) (infer.DeviceBuffer, error) {
	buf := e.rt.pool.Acquire(uint64(size),
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
	return &deviceBuffer{rt: e.rt, buf: buf, size: uint64(size)}, nil
}

func (e *Engine) AllocPinned(size int) (infer.PinnedBuffer, error) {
	// WebGPU has no pinned host memory; plain host bytes fill the role,
	// uploads go through transient staging buffers.
	return &hostBuffer{data: make([]byte, size)}, nil
}

func (e *Engine) NewStream() (infer.Stream, error) {
	return &stream{}, nil
}

func (e *Engine) NewExecContext() (infer.ExecContext, error) {
	return &execContext{
		eng:           e,
		bound:         make(map[string]*deviceBuffer),
		intermediates: make(map[string]*wgpu.Buffer),
	}, nil
}

// deviceBuffer is a pooled storage buffer on the WebGPU device.
type deviceBuffer struct {
	rt    *Runtime
	buf   *wgpu.Buffer
	size  uint64
	freed bool
}

func (b *deviceBuffer) Size() int             { return int(b.size) }
func (b *deviceBuffer) Device() tensor.Device { return tensor.WebGPU }

func (b *deviceBuffer) CopyFrom(src infer.PinnedBuffer, _ infer.Stream) error {
	if b.freed {
		return fmt.Errorf("webgpu: copy into freed buffer")
	}
	b.rt.writeBuffer(b.buf, src.Bytes()[:b.size])
	return nil
}

func (b *deviceBuffer) CopyTo(dst infer.PinnedBuffer, _ infer.Stream) error {
	if b.freed {
		return fmt.Errorf("webgpu: copy out of freed buffer")
	}
	data, err := b.rt.readBuffer(b.buf, b.size)
	if err != nil {
		return err
	}
	copy(dst.Bytes(), data)
	return nil
}

func (b *deviceBuffer) Free() error {
	if b.freed {
		return nil
	}
	b.freed = true
	b.rt.pool.Recycle(b.buf, b.size,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
	return nil
}

// hostBuffer is the staging-side counterpart of a device buffer.
type hostBuffer struct {
	data []byte
}

func (b *hostBuffer) Bytes() []byte { return b.data }
func (b *hostBuffer) Free() error {
	b.data = nil
	return nil
}

// stream is a placeholder ordering handle: every submit in this backend
// completes before the call returns, queue order is submission order.
type stream struct{}

func (s *stream) Synchronize() error { return nil }

// execContext holds per-run buffer state: caller bindings for engine
// tensors plus pooled intermediates for interior nodes.
type execContext struct {
	eng *Engine

	mu            sync.Mutex
	bound         map[string]*deviceBuffer // value key -> bound buffer
	intermediates map[string]*wgpu.Buffer  // value key -> pooled buffer
	released      bool
}

func (x *execContext) Bind(name string, buf infer.DeviceBuffer) error {
	key, ok := x.eng.slotOf[name]
	if !ok {
		return fmt.Errorf("webgpu: engine declares no tensor %q", name)
	}
	db, ok := buf.(*deviceBuffer)
	if !ok {
		return fmt.Errorf("webgpu: foreign buffer type %T", buf)
	}
	if db.size < x.eng.sizes[key] {
		return fmt.Errorf("webgpu: buffer for %q holds %d bytes, tensor needs %d",
			name, db.size, x.eng.sizes[key])
	}
	x.mu.Lock()
	x.bound[key] = db
	x.mu.Unlock()
	return nil
}

// bufferFor resolves a value key to its backing buffer, allocating
// pooled intermediates on first use.
func (x *execContext) bufferFor(key string) (*wgpu.Buffer, error) {
	if key == zeroKey {
		return x.eng.zeroBuf, nil
	}
	if db, ok := x.bound[key]; ok {
		return db.buf, nil
	}
	if buf, ok := x.eng.constBufs[key]; ok {
		return buf, nil
	}
	if buf, ok := x.intermediates[key]; ok {
		return buf, nil
	}
	size, ok := x.eng.sizes[key]
	if !ok {
		return nil, fmt.Errorf("webgpu: unknown value %q", key)
	}
	buf := x.eng.rt.pool.Acquire(size,
		wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
	x.intermediates[key] = buf
	return buf, nil
}

func (x *execContext) Execute() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.released {
		return fmt.Errorf("webgpu: execution context released")
	}
	for _, name := range x.eng.inputNames {
		if _, ok := x.bound[x.eng.slotOf[name]]; !ok {
			return fmt.Errorf("webgpu: input %q not bound", name)
		}
	}

	rt := x.eng.rt
	encoder := rt.device.CreateCommandEncoder(nil)

	var bindGroups []*wgpu.BindGroup
	defer func() {
		for _, bg := range bindGroups {
			bg.Release()
		}
	}()

	for _, s := range x.eng.steps {
		if len(s.copies) > 0 {
			dst, err := x.bufferFor(s.dst)
			if err != nil {
				return err
			}
			for _, c := range s.copies {
				src, err := x.bufferFor(c.src)
				if err != nil {
					return err
				}
				encoder.CopyBufferToBuffer(src, 0, dst, c.dstOff, c.size)
			}
			continue
		}

		entries := make([]wgpu.BindGroupEntry, 0, len(s.bindings)+1)
		for i, key := range s.bindings {
			buf, err := x.bufferFor(key)
			if err != nil {
				return err
			}
			entries = append(entries, wgpu.BufferBindingEntry(uint32(i), buf, 0, s.sizes[i]))
		}
		entries = append(entries, wgpu.BufferBindingEntry(uint32(len(s.bindings)), s.params, 0, 16))

		bindGroup := rt.device.CreateBindGroupSimple(s.pipeline.GetBindGroupLayout(0), entries)
		bindGroups = append(bindGroups, bindGroup)

		pass := encoder.BeginComputePass(nil)
		pass.SetPipeline(s.pipeline)
		pass.SetBindGroup(0, bindGroup, nil)
		pass.DispatchWorkgroups(s.wgX, s.wgY, 1)
		pass.End()
	}

	rt.queue.Submit(encoder.Finish(nil))
	return nil
}

func (x *execContext) Enqueue(_ infer.Stream) error {
	return x.Execute()
}

func (x *execContext) Release() error {
	x.mu.Lock()
	defer x.mu.Unlock()
	if x.released {
		return nil
	}
	x.released = true
	for key, buf := range x.intermediates {
		x.eng.rt.pool.Recycle(buf, x.eng.sizes[key],
			wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc|wgpu.BufferUsageCopyDst)
		delete(x.intermediates, key)
	}
	return nil
}

//go:build windows

package webgpu

import (
	"math/bits"
	"sync"

	"github.com/go-webgpu/webgpu/wgpu"
)

// maxFreePerClass caps the free list length per size class so release
// storms cannot pin unbounded device memory.
const maxFreePerClass = 32

type pooledBuffer struct {
	buffer *wgpu.Buffer
	size   uint64
	usage  wgpu.BufferUsage
}

// BufferPool recycles storage buffers between runs. Buffers are grouped
// into power-of-two size classes; an acquired buffer may be larger than
// requested, which is fine for storage bindings with explicit sizes.
type BufferPool struct {
	device *wgpu.Device

	mu   sync.Mutex
	free map[uint][]*pooledBuffer

	hits   uint64
	misses uint64
}

func NewBufferPool(device *wgpu.Device) *BufferPool {
	return &BufferPool{
		device: device,
		free:   make(map[uint][]*pooledBuffer),
	}
}

func sizeClass(size uint64) uint {
	if size <= 1 {
		return 0
	}
	return uint(bits.Len64(size - 1))
}

// Acquire returns a buffer of at least size bytes with the given usage,
// reusing a pooled one when available.
func (p *BufferPool) Acquire(size uint64, usage wgpu.BufferUsage) *wgpu.Buffer {
	class := sizeClass(size)

	p.mu.Lock()
	list := p.free[class]
	for i, pb := range list {
		if pb.size >= size && pb.usage&usage == usage {
			p.free[class] = append(list[:i], list[i+1:]...)
			p.hits++
			p.mu.Unlock()
			return pb.buffer
		}
	}
	p.misses++
	p.mu.Unlock()

	return p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: usage,
		Size:  uint64(1) << class,
	})
}

// Recycle returns a buffer to the pool, releasing it outright when the
// class is full.
func (p *BufferPool) Recycle(buffer *wgpu.Buffer, size uint64, usage wgpu.BufferUsage) {
	class := sizeClass(size)

	p.mu.Lock()
	if len(p.free[class]) >= maxFreePerClass {
		p.mu.Unlock()
		buffer.Release()
		return
	}
	p.free[class] = append(p.free[class], &pooledBuffer{
		buffer: buffer,
		size:   uint64(1) << class,
		usage:  usage,
	})
	p.mu.Unlock()
}

// Release frees every pooled buffer.
func (p *BufferPool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for class, list := range p.free {
		for _, pb := range list {
			pb.buffer.Release()
		}
		delete(p.free, class)
	}
}

// Stats reports pool hit and miss counts.
func (p *BufferPool) Stats() (hits, misses uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hits, p.misses
}

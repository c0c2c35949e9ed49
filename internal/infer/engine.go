// Package infer executes compiled backend engines: it stages host data
// through pinned buffers into device memory, launches execution
// synchronously or asynchronously, and recovers outputs strictly by
// declared name, because an engine's internal tensor order is not stable
// across backend versions.
package infer

import "github.com/graft-ml/graft/internal/tensor"

// TensorInfo describes one engine tensor.
type TensorInfo struct {
	Name  string
	Shape tensor.Shape
	DType tensor.DataType
}

// ByteSize returns the tensor's buffer size in bytes.
func (ti TensorInfo) ByteSize() int {
	return ti.Shape.NumElements() * ti.DType.Size()
}

// Engine is a compiled backend network. The core treats it as opaque: it
// only needs tensor metadata by name, buffer allocation, and execution
// handles.
type Engine interface {
	// Device is the single device the engine executes on.
	Device() tensor.Device

	// InputNames returns the engine's input tensor names.
	InputNames() []string

	// OutputNames returns the declared outputs in declared order.
	OutputNames() []string

	// TensorInfo queries shape and dtype by tensor name.
	TensorInfo(name string) (TensorInfo, bool)

	// NewExecContext creates an execution handle bound to this engine.
	NewExecContext() (ExecContext, error)

	// NewStream creates an execution stream on the engine's device.
	NewStream() (Stream, error)

	// AllocDevice allocates a device buffer of the given byte size.
	AllocDevice(size int) (DeviceBuffer, error)

	// AllocPinned allocates a page-locked host staging buffer.
	AllocPinned(size int) (PinnedBuffer, error)
}

// ExecContext is an engine-side execution handle.
type ExecContext interface {
	// Bind attaches a device buffer to the named engine tensor.
	Bind(name string, buf DeviceBuffer) error

	// Execute runs the engine and blocks until completion.
	Execute() error

	// Enqueue submits the engine's work onto s and returns once the work
	// is queued. Completion is observed through Stream.Synchronize.
	Enqueue(s Stream) error

	// Release frees engine-side resources.
	Release() error
}

// Stream is an ordered execution queue on a device. Synchronize is the one
// blocking primitive in the package.
type Stream interface {
	Synchronize() error
}

// DeviceBuffer is device-resident memory.
type DeviceBuffer interface {
	Size() int
	Device() tensor.Device

	// CopyFrom uploads the pinned buffer's contents on the given stream.
	CopyFrom(src PinnedBuffer, s Stream) error

	// CopyTo downloads into the pinned buffer on the given stream.
	CopyTo(dst PinnedBuffer, s Stream) error

	Free() error
}

// PinnedBuffer is page-locked host memory usable for staged transfers.
type PinnedBuffer interface {
	Bytes() []byte
	Free() error
}

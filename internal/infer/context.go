package infer

import (
	"fmt"
	"log/slog"

	"github.com/graft-ml/graft/internal/tensor"
)

// State tracks the context lifecycle. Buffers are allocated lazily on the
// first run (Created -> Bound -> Ready); Released is terminal.
type State int

// Context states.
const (
	Created State = iota
	Bound
	Ready
	Running
	Released
)

// DeviceTensor is a device-resident input or output for the zero-copy
// path.
type DeviceTensor struct {
	Buffer DeviceBuffer
	Shape  tensor.Shape
	DType  tensor.DataType

	// Stream, when non-nil, must be the context's own stream. A context
	// serves exactly one device and one stream; caller-supplied streams
	// are rejected.
	Stream Stream
}

type binding struct {
	info   TensorInfo
	device DeviceBuffer
	pinned PinnedBuffer
}

// Context executes a compiled engine. Buffers are allocated once, sized
// from the engine's declared tensor shapes, and reused across calls. A
// Context is not safe for concurrent use; callers wanting parallelism
// create one context per thread of control.
type Context struct {
	eng    Engine
	exec   ExecContext
	stream Stream
	state  State
	logger *slog.Logger

	inputs  []binding
	outputs []binding
}

// ContextOption configures a Context.
type ContextOption func(*Context)

// WithLogger sets the logger used for staging diagnostics.
func WithLogger(l *slog.Logger) ContextOption {
	return func(c *Context) { c.logger = l }
}

// NewContext wraps a compiled engine. No engine resources are touched
// until the first run.
func NewContext(eng Engine, opts ...ContextOption) *Context {
	c := &Context{eng: eng, state: Created, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Context) State() State { return c.state }

// bind allocates execution handles and per-tensor buffers, sized from the
// engine's declared shapes.
func (c *Context) bind() error {
	exec, err := c.eng.NewExecContext()
	if err != nil {
		return fmt.Errorf("creating execution context: %w", err)
	}
	stream, err := c.eng.NewStream()
	if err != nil {
		exec.Release() //nolint:errcheck
		return fmt.Errorf("creating stream: %w", err)
	}

	// Nothing is assigned to the context until every allocation succeeds,
	// so a failed bind leaves the context in Created and retryable.
	var made []binding
	fail := func(err error) error {
		for _, b := range made {
			if b.device != nil {
				b.device.Free() //nolint:errcheck
			}
			if b.pinned != nil {
				b.pinned.Free() //nolint:errcheck
			}
		}
		exec.Release() //nolint:errcheck
		return err
	}

	alloc := func(names []string) ([]binding, error) {
		bindings := make([]binding, 0, len(names))
		for _, name := range names {
			info, ok := c.eng.TensorInfo(name)
			if !ok {
				return nil, fmt.Errorf("engine declares no tensor %q", name)
			}
			dev, err := c.eng.AllocDevice(info.ByteSize())
			if err != nil {
				return nil, fmt.Errorf("allocating device buffer for %q: %w", name, err)
			}
			made = append(made, binding{device: dev})
			pinned, err := c.eng.AllocPinned(info.ByteSize())
			if err != nil {
				return nil, fmt.Errorf("allocating pinned buffer for %q: %w", name, err)
			}
			made[len(made)-1].pinned = pinned
			if err := exec.Bind(name, dev); err != nil {
				return nil, fmt.Errorf("binding %q: %w", name, err)
			}
			bindings = append(bindings, binding{info: info, device: dev, pinned: pinned})
		}
		return bindings, nil
	}

	inputs, err := alloc(c.eng.InputNames())
	if err != nil {
		return fail(err)
	}
	outputs, err := alloc(c.eng.OutputNames())
	if err != nil {
		return fail(err)
	}

	c.exec, c.stream = exec, stream
	c.inputs, c.outputs = inputs, outputs
	c.state = Bound
	c.logger.Debug("inference context bound",
		"inputs", len(c.inputs), "outputs", len(c.outputs), "device", c.eng.Device().String())
	c.state = Ready
	return nil
}

func (c *Context) ensureReady(op string) error {
	switch c.state {
	case Released:
		return &ContextReleasedError{Op: op}
	case Created:
		if err := c.bind(); err != nil {
			return err
		}
	case Running:
		return fmt.Errorf("%s called while a run is in flight", op)
	}
	return nil
}

// stageInput copies one host array into its pinned buffer and uploads it to
// device memory. The input array is only read, never written, and the
// pinned copy means later device writes can never alias caller memory.
func (c *Context) stageInput(b *binding, in *tensor.Native) error {
	if !in.Shape().Equal(b.info.Shape) {
		return fmt.Errorf("input %q: shape %v does not match engine shape %v", b.info.Name, in.Shape(), b.info.Shape)
	}
	dst := b.pinned.Bytes()
	switch {
	case in.DType() == b.info.DType:
		copy(dst, in.Bytes())
	case in.DType() == tensor.Float32 && b.info.DType == tensor.Float16:
		tensor.EncodeFloat16(dst, in.AsFloat32())
	default:
		return fmt.Errorf("input %q: dtype %s does not match engine dtype %s", b.info.Name, in.DType(), b.info.DType)
	}
	return b.device.CopyFrom(b.pinned, c.stream)
}

func (c *Context) stageInputs(inputs map[string]*tensor.Native) error {
	if len(inputs) != len(c.inputs) {
		return fmt.Errorf("got %d inputs, engine declares %d", len(inputs), len(c.inputs))
	}
	for i := range c.inputs {
		b := &c.inputs[i]
		in, ok := inputs[b.info.Name]
		if !ok {
			return fmt.Errorf("missing input %q", b.info.Name)
		}
		if err := c.stageInput(b, in); err != nil {
			return err
		}
	}
	return nil
}

// collectOutputs downloads every output buffer and builds the named result
// set in declared order.
func (c *Context) collectOutputs() (*Results, error) {
	results := newResults()
	for i := range c.outputs {
		b := &c.outputs[i]
		if err := b.device.CopyTo(b.pinned, c.stream); err != nil {
			return nil, fmt.Errorf("output %q: %w", b.info.Name, err)
		}
	}
	if err := c.stream.Synchronize(); err != nil {
		return nil, fmt.Errorf("synchronizing output transfers: %w", err)
	}
	for i := range c.outputs {
		b := &c.outputs[i]
		out, err := tensor.NewNative(b.info.Shape, b.info.DType, tensor.CPU)
		if err != nil {
			return nil, fmt.Errorf("output %q: %w", b.info.Name, err)
		}
		copy(out.Bytes(), b.pinned.Bytes())
		results.set(b.info.Name, out)
	}
	return results, nil
}

// Run executes the engine synchronously over host inputs, keyed by input
// name. Execution blocks until completion before outputs are read back;
// the fully serialized path exists for profiling and debugging, RunAsync
// is the production path.
func (c *Context) Run(inputs map[string]*tensor.Native) (*Results, error) {
	if err := c.ensureReady("Run"); err != nil {
		return nil, err
	}
	c.state = Running
	defer func() { c.state = Ready }()

	if err := c.stageInputs(inputs); err != nil {
		return nil, err
	}
	if err := c.stream.Synchronize(); err != nil {
		return nil, fmt.Errorf("synchronizing input transfers: %w", err)
	}
	if err := c.exec.Execute(); err != nil {
		return nil, fmt.Errorf("executing engine: %w", err)
	}
	return c.collectOutputs()
}

// RunAsync enqueues input transfers and execution on the context stream,
// overlapping host-side work with device execution, then synchronizes the
// stream before returning. Returned outputs are therefore always complete:
// the simpler contract is deliberate, at the cost of overlap spanning only
// the enqueue window rather than beyond the call.
func (c *Context) RunAsync(inputs map[string]*tensor.Native) (*Results, error) {
	if err := c.ensureReady("RunAsync"); err != nil {
		return nil, err
	}
	c.state = Running
	defer func() { c.state = Ready }()

	if err := c.stageInputs(inputs); err != nil {
		return nil, err
	}
	if err := c.exec.Enqueue(c.stream); err != nil {
		return nil, fmt.Errorf("enqueueing engine: %w", err)
	}
	return c.collectOutputs()
}

// RunPositional is Run with inputs matched positionally against the
// engine's declared input names.
func (c *Context) RunPositional(inputs ...*tensor.Native) (*Results, error) {
	names := c.eng.InputNames()
	if len(inputs) != len(names) {
		return nil, fmt.Errorf("got %d inputs, engine declares %d", len(inputs), len(names))
	}
	byName := make(map[string]*tensor.Native, len(inputs))
	for i, name := range names {
		byName[name] = inputs[i]
	}
	return c.Run(byName)
}

// RunDevice executes over device-resident inputs with no host staging:
// input buffers are bound directly into the engine call. Inputs must live
// on the context's device, and any carried stream must be the context's
// own. Outputs are device-resident, synchronized with the context stream
// before return, and reference context-owned buffers valid until the next
// run or Release.
func (c *Context) RunDevice(inputs map[string]DeviceTensor) (*DeviceResults, error) {
	if err := c.ensureReady("RunDevice"); err != nil {
		return nil, err
	}
	c.state = Running
	defer func() { c.state = Ready }()

	if len(inputs) != len(c.inputs) {
		return nil, fmt.Errorf("got %d inputs, engine declares %d", len(inputs), len(c.inputs))
	}
	// Validate every input before binding any of them: a rejection must
	// leave all context-owned bindings in place.
	for i := range c.inputs {
		b := &c.inputs[i]
		in, ok := inputs[b.info.Name]
		if !ok {
			return nil, fmt.Errorf("missing input %q", b.info.Name)
		}
		if in.Buffer.Device() != c.eng.Device() {
			return nil, &UnsupportedDeviceOrStreamError{
				Input:  b.info.Name,
				Reason: fmt.Sprintf("buffer on %s, context bound to %s", in.Buffer.Device(), c.eng.Device()),
			}
		}
		if in.Stream != nil && in.Stream != c.stream {
			return nil, &UnsupportedDeviceOrStreamError{
				Input:  b.info.Name,
				Reason: "caller-supplied stream differs from the context stream",
			}
		}
		if !in.Shape.Equal(b.info.Shape) || in.DType != b.info.DType {
			return nil, fmt.Errorf("input %q: got %s%v, engine declares %s%v",
				b.info.Name, in.DType, in.Shape, b.info.DType, b.info.Shape)
		}
	}
	// Restore context-owned input bindings on every exit, including a
	// failed bind partway through, so the staged paths keep working.
	defer func() {
		for i := range c.inputs {
			b := &c.inputs[i]
			c.exec.Bind(b.info.Name, b.device) //nolint:errcheck
		}
	}()
	for i := range c.inputs {
		b := &c.inputs[i]
		if err := c.exec.Bind(b.info.Name, inputs[b.info.Name].Buffer); err != nil {
			return nil, fmt.Errorf("binding %q: %w", b.info.Name, err)
		}
	}

	if err := c.exec.Enqueue(c.stream); err != nil {
		return nil, fmt.Errorf("enqueueing engine: %w", err)
	}
	if err := c.stream.Synchronize(); err != nil {
		return nil, fmt.Errorf("synchronizing stream: %w", err)
	}

	results := newDeviceResults()
	for i := range c.outputs {
		b := &c.outputs[i]
		results.set(b.info.Name, DeviceTensor{
			Buffer: b.device,
			Shape:  b.info.Shape.Clone(),
			DType:  b.info.DType,
			Stream: c.stream,
		})
	}
	return results, nil
}

// Release frees all buffers and engine handles. Terminal: any later run
// fails with ContextReleasedError. Releasing twice is a no-op.
func (c *Context) Release() error {
	if c.state == Released {
		return nil
	}
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, b := range append(c.inputs, c.outputs...) {
		if b.device != nil {
			keep(b.device.Free())
		}
		if b.pinned != nil {
			keep(b.pinned.Free())
		}
	}
	if c.exec != nil {
		keep(c.exec.Release())
	}
	c.inputs, c.outputs = nil, nil
	c.state = Released
	return firstErr
}

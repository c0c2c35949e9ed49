package webgpu

import "errors"

// ErrUnavailable is returned when the native WebGPU library cannot be
// loaded or no adapter is present on this machine.
var ErrUnavailable = errors.New("webgpu: device not available")

// UnsupportedLayerError is returned when a recorded layer kind has no
// device implementation.
type UnsupportedLayerError struct {
	Kind string
	Name string
}

func (e *UnsupportedLayerError) Error() string {
	return "webgpu: layer " + e.Name + ": no device implementation for kind " + e.Kind
}

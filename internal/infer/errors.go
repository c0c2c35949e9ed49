package infer

import "fmt"

// ContextReleasedError reports a call on a released execution context.
// Release is terminal; no retry is possible.
type ContextReleasedError struct {
	Op string
}

func (e *ContextReleasedError) Error() string {
	return fmt.Sprintf("%s called on released inference context", e.Op)
}

// UnsupportedDeviceOrStreamError reports a device-resident input on a
// different device, or carrying a different stream, than the context was
// built for. One device and one stream per context instance.
type UnsupportedDeviceOrStreamError struct {
	Input  string
	Reason string
}

func (e *UnsupportedDeviceOrStreamError) Error() string {
	return fmt.Sprintf("input %q: %s", e.Input, e.Reason)
}

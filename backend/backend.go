package backend

import (
	"errors"

	"github.com/gogpu/gpubuf"
)

// Backend names.
const (
	BackendSoftware = "software"
	BackendNoop     = "noop"
	BackendVulkan   = "vulkan"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when a requested backend is not
	// registered.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrClosed is returned when a closed device is used.
	ErrClosed = errors.New("backend: device closed")
)

// RenderDevice is a gpubuf.Device that owns a queue: it records frames of
// copy commands and submits them.
type RenderDevice interface {
	gpubuf.Device

	// Name returns the backend identifier (e.g., "software", "vulkan").
	Name() string

	// BeginFrame starts recording a command buffer.
	BeginFrame(label string) (Frame, error)

	// Close releases the device. The device must not be used afterwards.
	Close()
}

// Frame is a command buffer being recorded.
type Frame interface {
	gpubuf.CommandEncoder

	// Submit finishes recording and submits the commands to the queue.
	Submit() error

	// Discard abandons the recording. Discarding a submitted frame is a
	// no-op.
	Discard()
}

package gpubuf

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// ErrNilDevice is returned when a constructor is given a nil Device.
var ErrNilDevice = errors.New("gpubuf: device is nil")

// BufferDescriptor describes a device buffer to create.
type BufferDescriptor struct {
	// Label is an optional debug name.
	Label string

	// Size is the buffer size in bytes.
	Size uint64

	// Usage specifies how the buffer will be used.
	Usage gputypes.BufferUsage

	// Contents, when non-nil, initializes the first len(Contents) bytes.
	// len(Contents) must not exceed Size.
	Contents []byte
}

// DeviceBuffer is an opaque, device-resident memory region with a fixed
// byte size and usage mask.
//
// A DeviceBuffer is exclusively owned by the wrapper that created it and is
// released by that wrapper's Destroy.
type DeviceBuffer interface {
	// Label returns the buffer's debug label.
	Label() string

	// Size returns the buffer size in bytes.
	Size() uint64

	// Usage returns the buffer usage flags.
	Usage() gputypes.BufferUsage

	// Destroy releases the device memory. Calling Destroy twice is a no-op.
	Destroy()
}

// Device is the part of a graphics device the buffer layer consumes:
// buffer allocation with initial contents, byte-level queue writes, and a
// completion signal for submitted work.
//
// Implementations live in backend/software (in-memory, used for tests and
// headless runs) and backend/native (gogpu/wgpu HAL). A Device is shared by
// every buffer and belt created from it and must be safe for concurrent
// read-only use.
type Device interface {
	// CreateBuffer allocates a buffer, copying desc.Contents into it.
	CreateBuffer(desc *BufferDescriptor) (DeviceBuffer, error)

	// WriteBuffer schedules a write of data into dst at offset. The write
	// is ordered before any command buffer submitted afterwards.
	WriteBuffer(dst DeviceBuffer, offset uint64, data []byte) error

	// SubmittedWorkDone returns a Signal that fires once every command
	// buffer submitted so far has finished executing.
	SubmittedWorkDone() Signal
}

// CommandEncoder is the command-recording boundary used by staging belts.
type CommandEncoder interface {
	// CopyBufferToBuffer records a copy of size bytes from src at
	// srcOffset to dst at dstOffset.
	CopyBufferToBuffer(src DeviceBuffer, srcOffset uint64, dst DeviceBuffer, dstOffset, size uint64) error
}

// Signal is a completion future for submitted GPU work.
type Signal interface {
	// Poll reports whether the work has completed. Poll never blocks.
	// A non-nil error means the work can never complete (device loss).
	Poll() (done bool, err error)
}

// createBufferInit allocates a buffer sized to contents and initialized
// with it.
func createBufferInit(dev Device, label string, contents []byte, usage gputypes.BufferUsage) (DeviceBuffer, error) {
	if dev == nil {
		return nil, ErrNilDevice
	}
	buf, err := dev.CreateBuffer(&BufferDescriptor{
		Label:    label,
		Size:     uint64(len(contents)),
		Usage:    usage,
		Contents: contents,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", label, err)
	}
	Logger().Debug("gpubuf: buffer created", "label", label, "size", len(contents))
	return buf, nil
}

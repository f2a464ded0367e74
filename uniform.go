package gpubuf

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpubuf/internal/pod"
	"github.com/gogpu/gputypes"
)

// ErrPayloadLayout is returned when a uniform payload type has padding or
// contains non-plain data, so its bytes would not match what a shader reads.
var ErrPayloadLayout = errors.New("gpubuf: invalid uniform payload layout")

// Uniform is implemented by domain objects (cameras, lights, transforms)
// that convert to a GPU payload P.
//
// Uniform must be pure: the same object state always yields the same
// payload. P must be a fixed-size value with no padding and no references.
type Uniform[P any] interface {
	Uniform() P
}

type identity[P any] struct{ v P }

func (i identity[P]) Uniform() P { return i.v }

// Identity wraps a payload that is already in GPU layout so it can be used
// where a Uniform is expected.
func Identity[P any](v P) Uniform[P] {
	return identity[P]{v: v}
}

// UniformToBuffer converts u and creates a buffer initialized with the
// payload bytes, with Uniform|CopyDst usage.
func UniformToBuffer[P any](dev Device, u Uniform[P], label string) (DeviceBuffer, error) {
	if err := pod.CheckPacked[P](); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayloadLayout, err)
	}
	payload := u.Uniform()
	return createBufferInit(dev, label, pod.Bytes(&payload),
		gputypes.BufferUsageUniform|gputypes.BufferUsageCopyDst)
}

// UniformBuffer is a uniform buffer holding one payload of type P.
type UniformBuffer[P any] struct {
	buffer DeviceBuffer
}

// NewUniformBuffer creates a uniform buffer initialized from u.
func NewUniformBuffer[P any](dev Device, u Uniform[P], label string) (*UniformBuffer[P], error) {
	buf, err := UniformToBuffer(dev, u, label)
	if err != nil {
		return nil, err
	}
	return &UniformBuffer[P]{buffer: buf}, nil
}

// Write replaces the payload with an immediate queue write.
func (b *UniformBuffer[P]) Write(dev Device, u Uniform[P]) error {
	payload := u.Uniform()
	if err := dev.WriteBuffer(b.buffer, 0, pod.Bytes(&payload)); err != nil {
		return fmt.Errorf("write uniform %q: %w", b.buffer.Label(), err)
	}
	return nil
}

// Stage replaces the payload through a staging belt.
func (b *UniformBuffer[P]) Stage(enc CommandEncoder, s *Stager, u Uniform[P]) error {
	payload := u.Uniform()
	return s.WriteBuffer(enc, b.buffer, 0, pod.Bytes(&payload))
}

// Raw returns the underlying device buffer.
func (b *UniformBuffer[P]) Raw() DeviceBuffer { return b.buffer }

// Destroy releases the device buffer.
func (b *UniformBuffer[P]) Destroy() {
	if b.buffer != nil {
		b.buffer.Destroy()
	}
}

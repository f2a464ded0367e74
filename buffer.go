package gpubuf

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gpubuf/internal/pod"
	"github.com/gogpu/gputypes"
)

// ErrTooManyElements is returned when an element count does not fit the
// 32-bit counts used for draw calls.
var ErrTooManyElements = errors.New("gpubuf: element count exceeds uint32")

// Buffer is a device buffer holding elements of type T.
//
// The element type is carried as a type parameter so the buffer can report
// the vertex layout a render pipeline needs without storing any elements.
// Invariant: Raw().Size() == Len() × sizeof(T).
type Buffer[T Vertex] struct {
	count  uint32
	buffer DeviceBuffer
}

// NewBuffer creates a buffer initialized with the raw bytes of elements.
//
// The buffer is sized to len(elements) × sizeof(T). An empty slice requests
// a zero-size buffer, which is passed to the device as is: the software
// backend accepts it, while GPU backends (backend/native) reject it.
func NewBuffer[T Vertex](dev Device, elements []T, usage gputypes.BufferUsage, label string) (*Buffer[T], error) {
	if err := ValidateLayout[T](); err != nil {
		return nil, err
	}
	if uint64(len(elements)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d", ErrTooManyElements, len(elements))
	}
	buf, err := createBufferInit(dev, label, sliceContents(elements), usage)
	if err != nil {
		return nil, err
	}
	return &Buffer[T]{
		count:  uint32(len(elements)), //nolint:gosec // checked above
		buffer: buf,
	}, nil
}

// NewVertexBuffer creates a buffer with vertex usage.
func NewVertexBuffer[T Vertex](dev Device, vertices []T, label string) (*Buffer[T], error) {
	return NewBuffer(dev, vertices, gputypes.BufferUsageVertex, label)
}

// Len returns the number of elements.
func (b *Buffer[T]) Len() uint32 {
	return b.count
}

// Raw returns the underlying device buffer.
func (b *Buffer[T]) Raw() DeviceBuffer {
	return b.buffer
}

// Layout returns the vertex layout of T.
func (b *Buffer[T]) Layout() gputypes.VertexBufferLayout {
	return LayoutOf[T]()
}

// Destroy releases the device buffer.
func (b *Buffer[T]) Destroy() {
	if b.buffer != nil {
		b.buffer.Destroy()
	}
}

// sliceContents returns the bytes of s, or an empty non-nil slice so that
// an empty input still produces an explicit zero-size request.
func sliceContents[T any](s []T) []byte {
	if b := pod.SliceBytes(s); b != nil {
		return b
	}
	return []byte{}
}

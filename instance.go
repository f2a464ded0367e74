package gpubuf

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gpubuf/internal/pod"
	"github.com/gogpu/gputypes"
)

// ErrInstanceIndexOutOfRange is the panic value (wrapped) for writes to an
// instance slot at or past the buffer's capacity.
var ErrInstanceIndexOutOfRange = errors.New("gpubuf: instance index out of range")

// InstanceBuffer holds per-instance data of type T, converted from domain
// objects. The buffer is created with Vertex|CopyDst usage so individual
// slots can be overwritten after creation.
type InstanceBuffer[T Vertex] struct {
	capacity uint32
	buffer   DeviceBuffer
}

// NewInstanceBuffer converts every object with convert and uploads the
// results, in order, into a new instance buffer. The capacity is
// len(objects) and never changes.
func NewInstanceBuffer[T Vertex, U any](dev Device, objects []U, convert func(U) T, label string) (*InstanceBuffer[T], error) {
	if err := ValidateLayout[T](); err != nil {
		return nil, err
	}
	if uint64(len(objects)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d", ErrTooManyElements, len(objects))
	}
	raw := make([]T, len(objects))
	for i, obj := range objects {
		raw[i] = convert(obj)
	}
	buf, err := createBufferInit(dev, label, sliceContents(raw),
		gputypes.BufferUsageVertex|gputypes.BufferUsageCopyDst)
	if err != nil {
		return nil, err
	}
	return &InstanceBuffer[T]{
		capacity: uint32(len(objects)), //nolint:gosec // checked above
		buffer:   buf,
	}, nil
}

// Capacity returns the number of instance slots, the instance count for
// a draw call.
func (b *InstanceBuffer[T]) Capacity() uint32 { return b.capacity }

// Raw returns the underlying device buffer.
func (b *InstanceBuffer[T]) Raw() DeviceBuffer { return b.buffer }

// Layout returns the vertex layout of T.
func (b *InstanceBuffer[T]) Layout() gputypes.VertexBufferLayout { return LayoutOf[T]() }

// Destroy releases the device buffer.
func (b *InstanceBuffer[T]) Destroy() {
	if b.buffer != nil {
		b.buffer.Destroy()
	}
}

// WriteAt writes value into slot index with an immediate queue write.
// Panics if index >= Capacity().
func (b *InstanceBuffer[T]) WriteAt(dev Device, index uint64, value T) error {
	b.checkIndex(index)
	off := index * pod.Size[T]()
	if err := dev.WriteBuffer(b.buffer, off, pod.Bytes(&value)); err != nil {
		return fmt.Errorf("write instance %d: %w", index, err)
	}
	return nil
}

// Stage writes value into slot index through a staging belt. The copy is
// recorded on enc and lands once the belt is submitted.
// Panics if index >= Capacity().
func (b *InstanceBuffer[T]) Stage(enc CommandEncoder, s *Stager, index uint64, value T) error {
	b.checkIndex(index)
	size := pod.Size[T]()
	view, err := s.StagingArea(enc, b.buffer, index*size, size)
	if err != nil {
		return err
	}
	pod.Put(view, value)
	return nil
}

// StageAll writes values into slots [0, len(values)) through one staging
// area. Panics if len(values) exceeds Capacity().
func (b *InstanceBuffer[T]) StageAll(enc CommandEncoder, s *Stager, values []T) error {
	if len(values) == 0 {
		return nil
	}
	b.checkIndex(uint64(len(values) - 1))
	return s.WriteBuffer(enc, b.buffer, 0, pod.SliceBytes(values))
}

func (b *InstanceBuffer[T]) checkIndex(index uint64) {
	if index >= uint64(b.capacity) {
		panic(fmt.Errorf("%w: index %d, capacity %d", ErrInstanceIndexOutOfRange, index, b.capacity))
	}
}

// OverwriteSingle converts object and writes it into slot index of b with
// an immediate queue write of exactly sizeof(T) bytes at byte offset
// index × sizeof(T). Panics if index >= b.Capacity().
func OverwriteSingle[T Vertex, U any](dev Device, b *InstanceBuffer[T], object U, index uint64, convert func(U) T) error {
	return b.WriteAt(dev, index, convert(object))
}

// OverwriteSingleInView converts object and writes it into slot index of a
// CPU-visible view that mirrors b, such as a staging area covering the
// whole instance buffer. Exactly sizeof(T) bytes are written.
//
// The index is an int because it addresses host memory: on 32-bit
// platforms views larger than 2 GiB cannot be addressed this way.
// Panics if index is negative, index >= b.Capacity(), or the view is too
// short to hold the slot.
func OverwriteSingleInView[T Vertex, U any](view []byte, b *InstanceBuffer[T], object U, index int, convert func(U) T) {
	if index < 0 {
		panic(fmt.Errorf("%w: index %d", ErrInstanceIndexOutOfRange, index))
	}
	b.checkIndex(uint64(index))
	size := int(pod.Size[T]()) //nolint:gosec // element sizes are small
	start := index * size
	if start+size > len(view) {
		panic(fmt.Errorf("%w: slot %d ends at byte %d, view is %d bytes",
			ErrInstanceIndexOutOfRange, index, start+size, len(view)))
	}
	pod.Put(view[start:start+size], convert(object))
}

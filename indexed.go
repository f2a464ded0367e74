package gpubuf

import (
	"errors"
	"fmt"
	"math"

	"github.com/gogpu/gputypes"
)

// ErrIndexOutOfBounds is returned when an index references a vertex slot
// past the end of the vertex data.
var ErrIndexOutOfBounds = errors.New("gpubuf: index out of vertex bounds")

// IndexedBuffer pairs a vertex buffer of T with a 16-bit index buffer.
// Invariant: IndexCount() equals the number of indices uploaded.
type IndexedBuffer[T Vertex] struct {
	vertexCount uint32
	indexCount  uint32
	vertices    DeviceBuffer
	indices     DeviceBuffer
}

// NewIndexedBuffer creates the vertex and index buffers in one call.
//
// Every index must be less than len(vertices); an out-of-range index is
// reported as ErrIndexOutOfBounds before anything is allocated, instead of
// being left for the GPU to read past the vertex data.
func NewIndexedBuffer[T Vertex](dev Device, vertices []T, indices []uint16, vertexLabel, indexLabel string) (*IndexedBuffer[T], error) {
	if err := ValidateLayout[T](); err != nil {
		return nil, err
	}
	if uint64(len(vertices)) > math.MaxUint32 || uint64(len(indices)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %d vertices, %d indices", ErrTooManyElements, len(vertices), len(indices))
	}
	for i, idx := range indices {
		if int(idx) >= len(vertices) {
			return nil, fmt.Errorf("%w: indices[%d] = %d, %d vertices", ErrIndexOutOfBounds, i, idx, len(vertices))
		}
	}

	vbuf, err := createBufferInit(dev, vertexLabel, sliceContents(vertices), gputypes.BufferUsageVertex)
	if err != nil {
		return nil, err
	}
	ibuf, err := createBufferInit(dev, indexLabel, sliceContents(indices), gputypes.BufferUsageIndex)
	if err != nil {
		vbuf.Destroy()
		return nil, err
	}
	return &IndexedBuffer[T]{
		vertexCount: uint32(len(vertices)), //nolint:gosec // checked above
		indexCount:  uint32(len(indices)),  //nolint:gosec // checked above
		vertices:    vbuf,
		indices:     ibuf,
	}, nil
}

// VertexCount returns the number of vertices.
func (b *IndexedBuffer[T]) VertexCount() uint32 { return b.vertexCount }

// IndexCount returns the number of indices, the count to pass to an
// indexed draw.
func (b *IndexedBuffer[T]) IndexCount() uint32 { return b.indexCount }

// Vertices returns the vertex device buffer.
func (b *IndexedBuffer[T]) Vertices() DeviceBuffer { return b.vertices }

// Indices returns the index device buffer.
func (b *IndexedBuffer[T]) Indices() DeviceBuffer { return b.indices }

// IndexFormat returns the format of the index buffer entries.
func (b *IndexedBuffer[T]) IndexFormat() gputypes.IndexFormat { return gputypes.IndexFormatUint16 }

// Layout returns the vertex layout of T.
func (b *IndexedBuffer[T]) Layout() gputypes.VertexBufferLayout { return LayoutOf[T]() }

// Destroy releases both device buffers.
func (b *IndexedBuffer[T]) Destroy() {
	if b.vertices != nil {
		b.vertices.Destroy()
	}
	if b.indices != nil {
		b.indices.Destroy()
	}
}

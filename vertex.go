package gpubuf

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpubuf/internal/pod"
	"github.com/gogpu/gputypes"
)

// Vertex layout errors.
var (
	// ErrElementLayout is returned when an element type cannot be stored in
	// a typed buffer: it is not plain data, or its declared layout does not
	// match its memory layout.
	ErrElementLayout = errors.New("gpubuf: invalid element layout")

	// ErrUnsupportedFormat is returned for vertex formats without a known
	// byte size or shader type.
	ErrUnsupportedFormat = errors.New("gpubuf: unsupported vertex format")
)

// Vertex is implemented by element types that can describe their own
// vertex buffer layout.
//
// VertexLayout is called on the zero value of the element type and must not
// depend on the receiver's contents: the layout is a property of the type,
// not of any particular buffer or element.
//
// Example:
//
//	type ColorVertex struct {
//	    Position [3]float32
//	    Color    [3]float32
//	}
//
//	func (ColorVertex) VertexLayout() gputypes.VertexBufferLayout {
//	    return gpubuf.NewLayout[ColorVertex](gputypes.VertexStepModeVertex, 0,
//	        gputypes.VertexFormatFloat32x3, gputypes.VertexFormatFloat32x3)
//	}
type Vertex interface {
	VertexLayout() gputypes.VertexBufferLayout
}

// LayoutOf returns the vertex buffer layout of element type T.
func LayoutOf[T Vertex]() gputypes.VertexBufferLayout {
	var zero T
	return zero.VertexLayout()
}

// NewLayout builds a tightly packed layout for T: attributes are placed
// back to back in the given formats, starting at shader location
// startLocation, and the array stride is the size of T.
func NewLayout[T any](step gputypes.VertexStepMode, startLocation uint32, formats ...gputypes.VertexFormat) gputypes.VertexBufferLayout {
	return gputypes.VertexBufferLayout{
		ArrayStride: pod.Size[T](),
		StepMode:    step,
		Attributes:  Attributes(startLocation, formats...),
	}
}

// Attributes lays out formats back to back from offset zero, assigning
// consecutive shader locations from startLocation.
// Unknown formats contribute no size; ValidateLayout reports them.
func Attributes(startLocation uint32, formats ...gputypes.VertexFormat) []gputypes.VertexAttribute {
	attrs := make([]gputypes.VertexAttribute, len(formats))
	var offset uint64
	for i, f := range formats {
		attrs[i] = gputypes.VertexAttribute{
			Format:         f,
			Offset:         offset,
			ShaderLocation: startLocation + uint32(i), //nolint:gosec // attribute count is tiny
		}
		offset += f.Size()
	}
	return attrs
}

// ValidateLayout checks that T is plain data and that its declared layout
// fits its memory layout: the stride equals the size of T and is a
// multiple of 4, and every attribute lies inside one element.
func ValidateLayout[T Vertex]() error {
	if err := pod.CheckPlain[T](); err != nil {
		return fmt.Errorf("%w: %w", ErrElementLayout, err)
	}
	layout := LayoutOf[T]()
	size := pod.Size[T]()
	if layout.ArrayStride != size {
		return fmt.Errorf("%w: stride %d, element size %d", ErrElementLayout, layout.ArrayStride, size)
	}
	if size%copyAlignment != 0 {
		return fmt.Errorf("%w: element size %d is not a multiple of %d", ErrElementLayout, size, copyAlignment)
	}
	for _, a := range layout.Attributes {
		n := a.Format.Size()
		if n == 0 {
			return fmt.Errorf("%w: location %d (%v)", ErrUnsupportedFormat, a.ShaderLocation, a.Format)
		}
		if a.Offset+n > size {
			return fmt.Errorf("%w: location %d ends at byte %d, element is %d bytes",
				ErrElementLayout, a.ShaderLocation, a.Offset+n, size)
		}
	}
	return nil
}

package gpubuf

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// wgslType returns the WGSL type a vertex format is read as. Normalized
// and 16-bit float formats are read as f32 vectors.
func wgslType(f gputypes.VertexFormat) (string, bool) {
	switch f {
	case gputypes.VertexFormatFloat32:
		return "f32", true
	case gputypes.VertexFormatUint32:
		return "u32", true
	case gputypes.VertexFormatSint32:
		return "i32", true
	case gputypes.VertexFormatFloat32x2, gputypes.VertexFormatFloat16x2,
		gputypes.VertexFormatUnorm8x2, gputypes.VertexFormatSnorm8x2,
		gputypes.VertexFormatUnorm16x2, gputypes.VertexFormatSnorm16x2:
		return "vec2<f32>", true
	case gputypes.VertexFormatUint32x2, gputypes.VertexFormatUint8x2, gputypes.VertexFormatUint16x2:
		return "vec2<u32>", true
	case gputypes.VertexFormatSint32x2, gputypes.VertexFormatSint8x2, gputypes.VertexFormatSint16x2:
		return "vec2<i32>", true
	case gputypes.VertexFormatFloat32x3:
		return "vec3<f32>", true
	case gputypes.VertexFormatUint32x3:
		return "vec3<u32>", true
	case gputypes.VertexFormatSint32x3:
		return "vec3<i32>", true
	case gputypes.VertexFormatFloat32x4, gputypes.VertexFormatFloat16x4,
		gputypes.VertexFormatUnorm8x4, gputypes.VertexFormatSnorm8x4,
		gputypes.VertexFormatUnorm16x4, gputypes.VertexFormatSnorm16x4,
		gputypes.VertexFormatUnorm1010102:
		return "vec4<f32>", true
	case gputypes.VertexFormatUint32x4, gputypes.VertexFormatUint8x4, gputypes.VertexFormatUint16x4:
		return "vec4<u32>", true
	case gputypes.VertexFormatSint32x4, gputypes.VertexFormatSint8x4, gputypes.VertexFormatSint16x4:
		return "vec4<i32>", true
	default:
		return "", false
	}
}

// WGSLVertexInput renders the WGSL struct a vertex shader uses to receive
// the attributes of the given layouts, one member per attribute named
// loc<N> after its shader location.
//
// Overlapping shader locations across layouts are reported as an error,
// as a render pipeline would reject them.
func WGSLVertexInput(name string, layouts ...gputypes.VertexBufferLayout) (string, error) {
	seen := make(map[uint32]bool)
	var b strings.Builder
	fmt.Fprintf(&b, "struct %s {\n", name)
	for _, l := range layouts {
		for _, a := range l.Attributes {
			typ, ok := wgslType(a.Format)
			if !ok {
				return "", fmt.Errorf("%w: location %d", ErrUnsupportedFormat, a.ShaderLocation)
			}
			if seen[a.ShaderLocation] {
				return "", fmt.Errorf("%w: location %d used twice", ErrElementLayout, a.ShaderLocation)
			}
			seen[a.ShaderLocation] = true
			fmt.Fprintf(&b, "    @location(%d) loc%d: %s,\n", a.ShaderLocation, a.ShaderLocation, typ)
		}
	}
	if len(seen) == 0 {
		return "", fmt.Errorf("%w: no attributes", ErrElementLayout)
	}
	b.WriteString("}\n")
	return b.String(), nil
}

// Package pod provides byte views over plain-old-data values and checks
// that a Go type has a fixed, platform-independent memory layout.
//
// GPU buffers are filled by reinterpreting Go values as raw bytes, the same
// way the shader side reads them back: positionally, with no type
// information. That is only sound for types built from fixed-size numeric
// fields, so the layout checks here reject pointers, slices, strings, maps,
// interfaces, and the platform-sized int/uint/uintptr kinds.
package pod

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"
)

var (
	// ErrNotPlain is returned for types that contain references or
	// platform-sized integers.
	ErrNotPlain = errors.New("pod: type is not plain data")

	// ErrPadding is returned for types whose fields leave implicit padding.
	ErrPadding = errors.New("pod: type contains implicit padding")
)

// Size returns the in-memory size of T in bytes.
func Size[T any]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

// Bytes returns the bytes backing *v. The slice aliases v.
func Bytes[T any](v *T) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v)) //nolint:gosec // plain data reinterpretation
}

// SliceBytes returns the bytes backing s. The slice aliases s.
// Returns nil for an empty slice.
func SliceBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(s[0])) * len(s)
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), size) //nolint:gosec // plain data reinterpretation
}

// Put copies the bytes of v into dst, which must be exactly Size[T]() long.
func Put[T any](dst []byte, v T) {
	src := Bytes(&v)
	if len(dst) != len(src) {
		panic(fmt.Sprintf("pod: destination is %d bytes, value is %d", len(dst), len(src)))
	}
	copy(dst, src)
}

// CheckPlain reports whether T is made only of fixed-size numeric data.
// Padding between fields is allowed.
func CheckPlain[T any]() error {
	return check(reflect.TypeFor[T](), false)
}

// CheckPacked reports whether T is plain data with no implicit padding
// anywhere in its layout.
func CheckPacked[T any]() error {
	return check(reflect.TypeFor[T](), true)
}

func check(t reflect.Type, packed bool) error {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.Complex64, reflect.Complex128:
		return nil
	case reflect.Array:
		return check(t.Elem(), packed)
	case reflect.Struct:
		var next uintptr
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if err := check(f.Type, packed); err != nil {
				return fmt.Errorf("%s.%s: %w", t, f.Name, err)
			}
			if packed && f.Offset != next {
				return fmt.Errorf("%w: %s has %d bytes before field %s",
					ErrPadding, t, f.Offset-next, f.Name)
			}
			next = f.Offset + f.Type.Size()
		}
		if packed && next != t.Size() {
			return fmt.Errorf("%w: %s has %d trailing bytes", ErrPadding, t, t.Size()-next)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s has kind %s", ErrNotPlain, t, t.Kind())
	}
}

package pod

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

type vec4 struct {
	X, Y, Z, W float32
}

type padded struct {
	A uint8
	B uint32
}

type trailing struct {
	A uint32
	B uint8
}

type withPointer struct {
	P *int
}

func TestSize(t *testing.T) {
	if got := Size[vec4](); got != 16 {
		t.Errorf("Size[vec4]() = %d, want 16", got)
	}
	if got := Size[[4][4]float32](); got != 64 {
		t.Errorf("Size[mat4]() = %d, want 64", got)
	}
}

func TestBytes(t *testing.T) {
	v := vec4{X: 1, Y: 2, Z: 3, W: 4}
	b := Bytes(&v)
	if len(b) != 16 {
		t.Fatalf("len(Bytes) = %d, want 16", len(b))
	}
	want := make([]byte, 16)
	for i, f := range []float32{1, 2, 3, 4} {
		binary.NativeEndian.PutUint32(want[i*4:], math.Float32bits(f))
	}
	if !bytes.Equal(b, want) {
		t.Errorf("Bytes = %v, want %v", b, want)
	}
}

func TestSliceBytes(t *testing.T) {
	if got := SliceBytes[vec4](nil); got != nil {
		t.Errorf("SliceBytes(nil) = %v, want nil", got)
	}

	s := []uint16{0x0102, 0x0304, 0x0506}
	b := SliceBytes(s)
	if len(b) != 6 {
		t.Fatalf("len(SliceBytes) = %d, want 6", len(b))
	}
	if got := binary.NativeEndian.Uint16(b[2:]); got != 0x0304 {
		t.Errorf("second element = %#x, want 0x0304", got)
	}

	// The view aliases the slice.
	s[0] = 0xFFFF
	if b[0] != 0xFF || b[1] != 0xFF {
		t.Error("SliceBytes does not alias its input")
	}
}

func TestPut(t *testing.T) {
	dst := make([]byte, 4)
	Put(dst, uint32(0xAABBCCDD))
	if got := binary.NativeEndian.Uint32(dst); got != 0xAABBCCDD {
		t.Errorf("Put wrote %#x, want 0xAABBCCDD", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("Put with short destination did not panic")
		}
	}()
	Put(make([]byte, 2), uint32(1))
}

func TestCheck(t *testing.T) {
	tests := []struct {
		name       string
		plain      error
		packed     error
		checkPlain func() error
		checkPack  func() error
	}{
		{"vec4", nil, nil, CheckPlain[vec4], CheckPacked[vec4]},
		{"mat4", nil, nil, CheckPlain[[4][4]float32], CheckPacked[[4][4]float32]},
		{"padded", nil, ErrPadding, CheckPlain[padded], CheckPacked[padded]},
		{"trailing", nil, ErrPadding, CheckPlain[trailing], CheckPacked[trailing]},
		{"pointer", ErrNotPlain, ErrNotPlain, CheckPlain[withPointer], CheckPacked[withPointer]},
		{"int", ErrNotPlain, ErrNotPlain, CheckPlain[int], CheckPacked[int]},
		{"string", ErrNotPlain, ErrNotPlain, CheckPlain[string], CheckPacked[string]},
		{"slice", ErrNotPlain, ErrNotPlain, CheckPlain[[]float32], CheckPacked[[]float32]},
		{"nested padded array", nil, ErrPadding, CheckPlain[[2]trailing], CheckPacked[[2]trailing]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.checkPlain(); !errors.Is(err, tt.plain) {
				t.Errorf("CheckPlain = %v, want %v", err, tt.plain)
			}
			if err := tt.checkPack(); !errors.Is(err, tt.packed) {
				t.Errorf("CheckPacked = %v, want %v", err, tt.packed)
			}
		})
	}
}

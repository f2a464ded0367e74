package software

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpubuf"
	"github.com/gogpu/gputypes"
)

// ErrEncoderFinished is returned when recording into a finished encoder.
var ErrEncoderFinished = errors.New("software: encoder already finished")

type copyOp struct {
	src, dst          *Buffer
	srcOffset, offset uint64
	size              uint64
}

func (op copyOp) execute() {
	if op.src.destroyed || op.dst.destroyed {
		return
	}
	copy(op.dst.data[op.offset:op.offset+op.size], op.src.data[op.srcOffset:op.srcOffset+op.size])
}

// Encoder records buffer copies. It implements gpubuf.CommandEncoder.
type Encoder struct {
	dev      *Device
	label    string
	copies   []copyOp
	finished bool
}

// CopyBufferToBuffer records a copy. src needs CopySrc usage and dst needs
// CopyDst usage; both ranges must be in bounds and 4-byte aligned.
// Source and destination must not be the same buffer.
func (e *Encoder) CopyBufferToBuffer(src gpubuf.DeviceBuffer, srcOffset uint64, dst gpubuf.DeviceBuffer, dstOffset, size uint64) error {
	if e.finished {
		return fmt.Errorf("%w: %q", ErrEncoderFinished, e.label)
	}
	e.dev.mu.Lock()
	defer e.dev.mu.Unlock()
	if e.dev.lost != nil {
		return e.dev.lost
	}
	s, err := e.dev.own(src, gputypes.BufferUsageCopySrc)
	if err != nil {
		return err
	}
	d, err := e.dev.own(dst, gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	if s == d {
		return fmt.Errorf("software: copy within buffer %q", s.label)
	}
	if err := checkRange(s, srcOffset, size); err != nil {
		return err
	}
	if err := checkRange(d, dstOffset, size); err != nil {
		return err
	}
	e.copies = append(e.copies, copyOp{src: s, dst: d, srcOffset: srcOffset, offset: dstOffset, size: size})
	return nil
}

// Copies returns the number of copies recorded so far.
func (e *Encoder) Copies() int { return len(e.copies) }

// Finish ends recording and returns the command buffer.
func (e *Encoder) Finish() *CommandBuffer {
	e.finished = true
	return &CommandBuffer{dev: e.dev, label: e.label, copies: e.copies}
}

// CommandBuffer is a finished recording, ready for Device.Submit.
type CommandBuffer struct {
	dev       *Device
	label     string
	copies    []copyOp
	submitted bool
}

// frame adapts an Encoder to backend.Frame.
type frame struct {
	enc  *Encoder
	done bool
}

func (f *frame) CopyBufferToBuffer(src gpubuf.DeviceBuffer, srcOffset uint64, dst gpubuf.DeviceBuffer, dstOffset, size uint64) error {
	return f.enc.CopyBufferToBuffer(src, srcOffset, dst, dstOffset, size)
}

func (f *frame) Submit() error {
	if f.done {
		return fmt.Errorf("%w: %q", ErrEncoderFinished, f.enc.label)
	}
	f.done = true
	return f.enc.dev.Submit(f.enc.Finish())
}

func (f *frame) Discard() {
	f.done = true
	f.enc.finished = true
}

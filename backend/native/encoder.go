// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"errors"
	"fmt"

	"github.com/gogpu/gpubuf"
	"github.com/gogpu/wgpu/hal"
)

// ErrEncoderFinished is returned when recording into a submitted or
// discarded encoder.
var ErrEncoderFinished = errors.New("native: encoder already finished")

// Encoder records copy commands into a HAL command encoder.
// It implements gpubuf.CommandEncoder and backend.Frame.
type Encoder struct {
	dev     *Device
	encoder hal.CommandEncoder
	label   string
	done    bool
}

// CopyBufferToBuffer records a copy of size bytes from src to dst.
func (e *Encoder) CopyBufferToBuffer(src gpubuf.DeviceBuffer, srcOffset uint64, dst gpubuf.DeviceBuffer, dstOffset, size uint64) error {
	if e.done {
		return fmt.Errorf("%w: %q", ErrEncoderFinished, e.label)
	}
	e.dev.mu.Lock()
	defer e.dev.mu.Unlock()
	s, err := e.dev.own(src)
	if err != nil {
		return err
	}
	d, err := e.dev.own(dst)
	if err != nil {
		return err
	}
	e.encoder.CopyBufferToBuffer(s.raw, d.raw, []hal.BufferCopy{
		{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size},
	})
	return nil
}

// Submit ends encoding and submits the command buffer.
func (e *Encoder) Submit() error {
	if e.done {
		return fmt.Errorf("%w: %q", ErrEncoderFinished, e.label)
	}
	e.done = true
	cmd, err := e.encoder.EndEncoding()
	if err != nil {
		return fmt.Errorf("end encoding: %w", err)
	}
	return e.dev.submit(cmd)
}

// Discard abandons the recording.
func (e *Encoder) Discard() {
	if e.done {
		return
	}
	e.done = true
	e.encoder.DiscardEncoding()
}

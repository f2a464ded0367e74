// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package native

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer wraps a hal.Buffer created by a Device.
type Buffer struct {
	dev       *Device
	raw       hal.Buffer
	label     string
	size      uint64
	usage     gputypes.BufferUsage
	destroyed bool
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string { return b.label }

// Size returns the requested buffer size in bytes.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the buffer usage flags, including any CopyDst added for
// initial contents.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Raw returns the underlying HAL buffer for binding in render passes.
func (b *Buffer) Raw() hal.Buffer { return b.raw }

// Destroy releases the HAL buffer. Calling Destroy twice is a no-op.
func (b *Buffer) Destroy() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	delete(b.dev.buffers, b)
	if !b.dev.closed {
		b.dev.device.DestroyBuffer(b.raw)
	}
}

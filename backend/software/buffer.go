package software

import "github.com/gogpu/gputypes"

// Buffer is an in-memory device buffer.
type Buffer struct {
	dev       *Device
	label     string
	usage     gputypes.BufferUsage
	data      []byte
	size      uint64
	destroyed bool
}

// Label returns the buffer's debug label.
func (b *Buffer) Label() string { return b.label }

// Size returns the buffer size in bytes. It is stable after Destroy.
func (b *Buffer) Size() uint64 { return b.size }

// Usage returns the buffer usage flags.
func (b *Buffer) Usage() gputypes.BufferUsage { return b.usage }

// Destroyed reports whether Destroy has been called.
func (b *Buffer) Destroyed() bool {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	return b.destroyed
}

// Destroy releases the buffer memory. Calling Destroy twice is a no-op.
func (b *Buffer) Destroy() {
	b.dev.mu.Lock()
	defer b.dev.mu.Unlock()
	if b.destroyed {
		return
	}
	b.destroyed = true
	b.data = nil
	delete(b.dev.buffers, b)
}

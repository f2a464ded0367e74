package gpubuf

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// copyAlignment is the alignment device queue writes require.
const copyAlignment = 4

// chunk is one device buffer of a staging belt together with its
// CPU-side mirror. Staging areas are carved out of data; the used prefix
// is flushed to the device buffer when the belt is submitted.
type chunk struct {
	buffer DeviceBuffer
	data   []byte
	offset uint64
}

func (c *chunk) size() uint64 { return uint64(len(c.data)) }

// fits reports whether size more bytes fit after aligning the offset.
func (c *chunk) fits(size, align uint64) bool {
	start := alignUp(c.offset, align)
	return start <= c.size() && size <= c.size()-start
}

// recall is a batch of closed chunks waiting for the GPU work that reads
// them to complete.
type recall struct {
	chunks []*chunk
	signal Signal
}

// belt is the chunk bookkeeping of one named staging belt.
//
// A chunk moves active → closed (SubmitAll) → pending (RecallAll) → free
// (signal fired) → active (reused by an allocation). Chunks are never
// shrunk or returned to the device before the factory is destroyed.
type belt struct {
	name      string
	chunkSize uint64
	alignment uint64
	maxChunk  uint64
	label     string

	active  []*chunk
	closed  []*chunk
	free    []*chunk
	pending []recall
	created int
}

// allocate reserves size bytes and returns the chunk and the offset of the
// reservation within it.
func (b *belt) allocate(dev Device, size uint64) (*chunk, uint64, error) {
	c := b.findActive(size)
	if c == nil {
		c = b.takeFree(size)
	}
	if c == nil {
		var err error
		if c, err = b.newChunk(dev, size); err != nil {
			return nil, 0, err
		}
	}
	start := alignUp(c.offset, b.alignment)
	c.offset = start + size
	return c, start, nil
}

func (b *belt) findActive(size uint64) *chunk {
	for _, c := range b.active {
		if c.fits(size, b.alignment) {
			return c
		}
	}
	return nil
}

func (b *belt) takeFree(size uint64) *chunk {
	for i, c := range b.free {
		if c.size() >= size {
			b.free = append(b.free[:i], b.free[i+1:]...)
			c.offset = 0
			b.active = append(b.active, c)
			return c
		}
	}
	return nil
}

func (b *belt) newChunk(dev Device, size uint64) (*chunk, error) {
	// size and chunkSize are at most maxChunk, so rounding cannot wrap.
	n := alignUp(max(b.chunkSize, size), b.alignment)
	label := fmt.Sprintf("%s#%d", b.label, b.created)
	buf, err := dev.CreateBuffer(&BufferDescriptor{
		Label: label,
		Size:  n,
		Usage: gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("staging belt %q: allocate %d-byte chunk: %w", b.name, n, err)
	}
	b.created++
	c := &chunk{buffer: buf, data: make([]byte, n)}
	b.active = append(b.active, c)
	Logger().Debug("gpubuf: staging chunk allocated", "belt", b.name, "size", n, "chunks", b.created)
	return c, nil
}

// finish flushes every active chunk to the device and closes it.
// Every chunk is closed even when a flush fails; the first error is
// returned.
func (b *belt) finish(dev Device) error {
	var first error
	for _, c := range b.active {
		if c.offset == 0 {
			continue
		}
		n := min(alignUp(c.offset, copyAlignment), c.size())
		if err := dev.WriteBuffer(c.buffer, 0, c.data[:n]); err != nil && first == nil {
			first = fmt.Errorf("staging belt %q: flush chunk %q: %w", b.name, c.buffer.Label(), err)
		}
	}
	b.closed = append(b.closed, b.active...)
	b.active = b.active[:0]
	return first
}

// enqueue attaches signal to the closed chunks.
func (b *belt) enqueue(signal Signal) {
	if len(b.closed) == 0 {
		return
	}
	b.pending = append(b.pending, recall{chunks: b.closed, signal: signal})
	b.closed = nil
}

// reclaim polls the pending recalls, moving chunks whose signal fired to
// the free list. It repeats while a pass still frees something. Recalls
// that have not completed stay queued.
func (b *belt) reclaim() error {
	for progress := true; progress; {
		progress = false
		kept := b.pending[:0]
		var failed error
		for _, r := range b.pending {
			if failed != nil {
				kept = append(kept, r)
				continue
			}
			done, err := r.signal.Poll()
			if err != nil {
				failed = fmt.Errorf("staging belt %q: recall: %w", b.name, err)
				kept = append(kept, r)
				continue
			}
			if !done {
				kept = append(kept, r)
				continue
			}
			b.free = append(b.free, r.chunks...)
			progress = true
			Logger().Debug("gpubuf: staging chunks reclaimed", "belt", b.name, "chunks", len(r.chunks))
		}
		clear(b.pending[len(kept):])
		b.pending = kept
		if failed != nil {
			return failed
		}
	}
	return nil
}

// destroy releases every chunk the belt owns.
func (b *belt) destroy() {
	for _, c := range b.active {
		c.buffer.Destroy()
	}
	for _, c := range b.closed {
		c.buffer.Destroy()
	}
	for _, c := range b.free {
		c.buffer.Destroy()
	}
	for _, r := range b.pending {
		for _, c := range r.chunks {
			c.buffer.Destroy()
		}
	}
	b.active, b.closed, b.free, b.pending = nil, nil, nil, nil
}

func (b *belt) stats() BeltStats {
	s := BeltStats{
		Name:      b.name,
		ChunkSize: b.chunkSize,
		Active:    len(b.active),
		Closed:    len(b.closed),
		Free:      len(b.free),
		Created:   b.created,
	}
	for _, r := range b.pending {
		s.Pending += len(r.chunks)
	}
	return s
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

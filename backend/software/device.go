// Package software provides an in-memory gpubuf.Device.
//
// Buffers are plain byte slices and the queue executes on the CPU. The
// device validates usage flags, bounds, and copy alignment the way a GPU
// validation layer would, and supports readback, which makes it the
// reference device for tests and headless runs.
//
// By default submitted work completes immediately. WithDeferredCompletion
// holds queue operations until Tick, so callers can observe work in flight.
package software

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gpubuf"
	"github.com/gogpu/gpubuf/backend"
	"github.com/gogpu/gputypes"
)

func init() {
	backend.Register(backend.BackendSoftware, func() (backend.RenderDevice, error) {
		return New(), nil
	})
}

// CopyAlignment is the required alignment of queue write and copy offsets
// and sizes.
const CopyAlignment = 4

// Device errors.
var (
	// ErrDeviceLost is returned by every operation after Lose.
	ErrDeviceLost = errors.New("software: device lost")

	// ErrForeignBuffer is returned for buffers created by another device.
	ErrForeignBuffer = errors.New("software: buffer belongs to another device")

	// ErrDestroyed is returned for buffers used after Destroy.
	ErrDestroyed = errors.New("software: buffer destroyed")

	// ErrUsage is returned when a buffer lacks the usage an operation needs.
	ErrUsage = errors.New("software: missing buffer usage")

	// ErrOutOfBounds is returned for accesses past the end of a buffer.
	ErrOutOfBounds = errors.New("software: access out of bounds")

	// ErrAlignment is returned for misaligned copy offsets or sizes.
	ErrAlignment = errors.New("software: misaligned copy")
)

// Option configures a Device.
type Option func(*Device)

// WithDeferredCompletion holds queue writes and submitted command buffers
// until Tick executes them.
func WithDeferredCompletion() Option {
	return func(d *Device) {
		d.deferred = true
	}
}

// Device is an in-memory device.
//
// Thread Safety: Device is safe for concurrent use.
type Device struct {
	mu       sync.Mutex
	deferred bool
	lost     error

	buffers map[*Buffer]struct{}
	queue   []func()

	submitted uint64
	completed uint64
	writes    int
}

// New creates a device.
func New(opts ...Option) *Device {
	d := &Device{buffers: make(map[*Buffer]struct{})}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns "software".
func (d *Device) Name() string { return backend.BackendSoftware }

// CreateBuffer allocates a zero-filled buffer and copies desc.Contents into
// it. Zero-size buffers are allowed.
func (d *Device) CreateBuffer(desc *gpubuf.BufferDescriptor) (gpubuf.DeviceBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost != nil {
		return nil, d.lost
	}
	if uint64(len(desc.Contents)) > desc.Size {
		return nil, fmt.Errorf("%w: %d content bytes for %d-byte buffer %q",
			ErrOutOfBounds, len(desc.Contents), desc.Size, desc.Label)
	}
	b := &Buffer{
		dev:   d,
		label: desc.Label,
		usage: desc.Usage,
		size:  desc.Size,
		data:  make([]byte, desc.Size),
	}
	copy(b.data, desc.Contents)
	d.buffers[b] = struct{}{}
	return b, nil
}

// WriteBuffer writes data into dst at offset. dst needs CopyDst usage.
func (d *Device) WriteBuffer(dst gpubuf.DeviceBuffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost != nil {
		return d.lost
	}
	b, err := d.own(dst, gputypes.BufferUsageCopyDst)
	if err != nil {
		return err
	}
	if err := checkRange(b, offset, uint64(len(data))); err != nil {
		return err
	}
	staged := append([]byte(nil), data...)
	d.writes++
	d.enqueue(func() {
		if !b.destroyed {
			copy(b.data[offset:], staged)
		}
	})
	return nil
}

// SubmittedWorkDone returns a signal that fires once everything submitted
// so far has executed.
func (d *Device) SubmittedWorkDone() gpubuf.Signal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &signal{dev: d, value: d.submitted}
}

// CreateCommandEncoder starts recording a command buffer.
func (d *Device) CreateCommandEncoder(label string) *Encoder {
	return &Encoder{dev: d, label: label}
}

// BeginFrame starts recording a frame.
func (d *Device) BeginFrame(label string) (backend.Frame, error) {
	d.mu.Lock()
	lost := d.lost
	d.mu.Unlock()
	if lost != nil {
		return nil, lost
	}
	return &frame{enc: d.CreateCommandEncoder(label)}, nil
}

// Submit executes (or, with deferred completion, queues) command buffers
// in order.
func (d *Device) Submit(cmds ...*CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost != nil {
		return d.lost
	}
	for _, cb := range cmds {
		if cb.dev != d {
			return fmt.Errorf("%w: command buffer %q", ErrForeignBuffer, cb.label)
		}
		if cb.submitted {
			return fmt.Errorf("software: command buffer %q submitted twice", cb.label)
		}
		cb.submitted = true
	}
	for _, cb := range cmds {
		for _, op := range cb.copies {
			d.enqueue(op.execute)
		}
	}
	d.submitted++
	if !d.deferred {
		d.completed = d.submitted
	}
	return nil
}

// Tick executes every queued operation and completes all submitted work.
// Without deferred completion Tick is a no-op.
func (d *Device) Tick() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost != nil {
		return
	}
	for _, op := range d.queue {
		op()
	}
	clear(d.queue)
	d.queue = d.queue[:0]
	d.completed = d.submitted
}

// ReadBuffer returns a copy of size bytes of buf at offset, as the queue
// has executed so far.
func (d *Device) ReadBuffer(buf gpubuf.DeviceBuffer, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost != nil {
		return nil, d.lost
	}
	b, err := d.own(buf, 0)
	if err != nil {
		return nil, err
	}
	if offset+size > uint64(len(b.data)) {
		return nil, fmt.Errorf("%w: read [%d, %d) of %d-byte buffer %q",
			ErrOutOfBounds, offset, offset+size, len(b.data), b.label)
	}
	return append([]byte(nil), b.data[offset:offset+size]...), nil
}

// Lose marks the device lost. Pending signals report err from Poll and
// every later operation fails with it.
func (d *Device) Lose(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = fmt.Errorf("%w: %w", ErrDeviceLost, err)
}

// LiveBuffers returns the number of buffers not yet destroyed.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// Writes returns the number of queue writes accepted so far.
func (d *Device) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

// Close destroys every remaining buffer.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for b := range d.buffers {
		b.destroyed = true
		b.data = nil
	}
	clear(d.buffers)
	d.queue = nil
}

// enqueue runs op now or, with deferred completion, at the next Tick.
// d.mu must be held.
func (d *Device) enqueue(op func()) {
	if d.deferred {
		d.queue = append(d.queue, op)
		return
	}
	op()
}

// own resolves buf to a live buffer of d with the given usage.
// d.mu must be held.
func (d *Device) own(buf gpubuf.DeviceBuffer, usage gputypes.BufferUsage) (*Buffer, error) {
	b, ok := buf.(*Buffer)
	if !ok || b.dev != d {
		return nil, fmt.Errorf("%w: %q", ErrForeignBuffer, buf.Label())
	}
	if b.destroyed {
		return nil, fmt.Errorf("%w: %q", ErrDestroyed, b.label)
	}
	if usage != 0 && !b.usage.Contains(usage) {
		return nil, fmt.Errorf("%w: %q needs %v", ErrUsage, b.label, usage)
	}
	return b, nil
}

func checkRange(b *Buffer, offset, size uint64) error {
	if offset%CopyAlignment != 0 || size%CopyAlignment != 0 {
		return fmt.Errorf("%w: offset %d, size %d in %q", ErrAlignment, offset, size, b.label)
	}
	if offset+size > uint64(len(b.data)) {
		return fmt.Errorf("%w: [%d, %d) of %d-byte buffer %q",
			ErrOutOfBounds, offset, offset+size, len(b.data), b.label)
	}
	return nil
}

// signal fires when the device's completed counter reaches value.
type signal struct {
	dev   *Device
	value uint64
}

func (s *signal) Poll() (bool, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	if s.dev.lost != nil {
		return false, s.dev.lost
	}
	return s.dev.completed >= s.value, nil
}

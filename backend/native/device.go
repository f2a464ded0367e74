// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package native implements gpubuf.Device on a gogpu/wgpu HAL device.
//
// Buffers are hal.Buffer objects, queue writes go through hal.Queue, and
// submitted work is tracked with a single timeline fence: every submission
// signals the next fence value, and a completion Signal polls the fence
// without blocking.
//
// A Device is either opened by this package (OpenNoop, OpenVulkan) and owns
// the HAL device, or wraps a device shared by a host application (New,
// NewFromProvider) and leaves its lifetime to the host.
package native

import (
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/gpubuf"
	"github.com/gogpu/gpubuf/backend"
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// writeAlignment is the alignment of HAL queue write sizes.
const writeAlignment = 4

// closeTimeout bounds the wait for in-flight work on Close.
const closeTimeout = 5 * time.Second

// inFlight is a submitted command buffer and the fence value that marks
// its completion.
type inFlight struct {
	cmd   hal.CommandBuffer
	value uint64
}

// Device adapts a hal.Device and hal.Queue to gpubuf.Device.
//
// Thread Safety: Device is safe for concurrent use from multiple goroutines.
type Device struct {
	mu     sync.Mutex
	name   string
	device hal.Device
	queue  hal.Queue
	fence  hal.Fence

	// Set only for devices opened by this package.
	instance hal.Instance
	owned    bool

	submitted uint64
	completed uint64
	inFlight  []inFlight
	buffers   map[*Buffer]struct{}
	closed    bool
}

// New wraps a HAL device and queue owned by the caller.
func New(device hal.Device, queue hal.Queue) (*Device, error) {
	return newDevice(device, queue, "hal")
}

// NewFromProvider wraps the device of a host application. The provider
// must expose HalDevice() any and HalQueue() any returning hal.Device and
// hal.Queue, as gogpu's device provider does.
func NewFromProvider(provider gpucontext.DeviceProvider) (*Device, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrInvalidProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, fmt.Errorf("%w: HalDevice is not hal.Device", ErrInvalidProvider)
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, fmt.Errorf("%w: HalQueue is not hal.Queue", ErrInvalidProvider)
	}
	return newDevice(device, queue, "provider")
}

func newDevice(device hal.Device, queue hal.Queue, name string) (*Device, error) {
	if device == nil || queue == nil {
		return nil, gpubuf.ErrNilDevice
	}
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("create fence: %w", err)
	}
	return &Device{
		name:    name,
		device:  device,
		queue:   queue,
		fence:   fence,
		buffers: make(map[*Buffer]struct{}),
	}, nil
}

// Name returns the backend name the device was opened with.
func (d *Device) Name() string { return d.name }

// HalDevice returns the underlying HAL device.
func (d *Device) HalDevice() hal.Device { return d.device }

// HalQueue returns the underlying HAL queue.
func (d *Device) HalQueue() hal.Queue { return d.queue }

// CreateBuffer allocates a HAL buffer and uploads desc.Contents with a
// queue write. CopyDst usage is added when contents are given. The HAL
// allocation is rounded up to a multiple of 4 bytes; Size reports the
// requested size.
func (d *Device) CreateBuffer(desc *gpubuf.BufferDescriptor) (gpubuf.DeviceBuffer, error) {
	if desc.Size == 0 {
		return nil, fmt.Errorf("%w: %q", ErrZeroSizeBuffer, desc.Label)
	}
	if uint64(len(desc.Contents)) > desc.Size {
		return nil, fmt.Errorf("native: %d content bytes for %d-byte buffer %q", len(desc.Contents), desc.Size, desc.Label)
	}
	usage := desc.Usage
	if len(desc.Contents) > 0 {
		usage |= gputypes.BufferUsageCopyDst
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label,
		Size:  alignUp(desc.Size, writeAlignment),
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", desc.Label, err)
	}
	if len(desc.Contents) > 0 {
		d.queue.WriteBuffer(raw, 0, padded(desc.Contents))
	}
	b := &Buffer{dev: d, raw: raw, label: desc.Label, size: desc.Size, usage: usage}
	d.buffers[b] = struct{}{}
	return b, nil
}

// WriteBuffer writes data into dst at offset through the queue.
func (d *Device) WriteBuffer(dst gpubuf.DeviceBuffer, offset uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.own(dst)
	if err != nil {
		return err
	}
	if len(data) > 0 {
		d.queue.WriteBuffer(b.raw, offset, data)
	}
	return nil
}

// ReadBuffer reads size bytes of buf at offset back from the GPU. The
// buffer needs MapRead or CopySrc usage, depending on the HAL backend.
func (d *Device) ReadBuffer(buf gpubuf.DeviceBuffer, offset, size uint64) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, err := d.own(buf)
	if err != nil {
		return nil, err
	}
	data := make([]byte, size)
	if err := d.queue.ReadBuffer(b.raw, offset, data); err != nil {
		return nil, fmt.Errorf("readback %q: %w", b.label, err)
	}
	return data, nil
}

// SubmittedWorkDone returns a signal that fires once the fence reaches the
// value of the latest submission.
func (d *Device) SubmittedWorkDone() gpubuf.Signal {
	d.mu.Lock()
	defer d.mu.Unlock()
	return &fenceSignal{dev: d, value: d.submitted}
}

// BeginFrame starts recording a command buffer.
func (d *Device) BeginFrame(label string) (backend.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrClosed
	}
	encoder, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("begin encoding: %w", err)
	}
	return &Encoder{dev: d, encoder: encoder, label: label}, nil
}

// submit queues cmd, signalling the next fence value on completion.
func (d *Device) submit(cmd hal.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.device.FreeCommandBuffer(cmd)
		return ErrClosed
	}
	value := d.submitted + 1
	if err := d.queue.Submit([]hal.CommandBuffer{cmd}, d.fence, value); err != nil {
		d.device.FreeCommandBuffer(cmd)
		return fmt.Errorf("submit: %w", err)
	}
	d.submitted = value
	d.inFlight = append(d.inFlight, inFlight{cmd: cmd, value: value})
	return nil
}

// poll reports whether the fence has reached value, freeing command
// buffers that have completed. d.mu must be held.
func (d *Device) poll(value uint64, timeout time.Duration) (bool, error) {
	if d.completed >= value {
		return true, nil
	}
	if d.closed {
		return false, ErrClosed
	}
	ok, err := d.device.Wait(d.fence, value, timeout)
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrDeviceLost, err)
	}
	if !ok {
		return false, nil
	}
	d.completed = value
	kept := d.inFlight[:0]
	for _, f := range d.inFlight {
		if f.value <= value {
			d.device.FreeCommandBuffer(f.cmd)
			continue
		}
		kept = append(kept, f)
	}
	clear(d.inFlight[len(kept):])
	d.inFlight = kept
	return true, nil
}

// LiveBuffers returns the number of buffers not yet destroyed.
func (d *Device) LiveBuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// Close waits for in-flight work, destroys every remaining buffer and the
// fence, and, for devices opened by this package, the HAL device and
// instance. Close is idempotent.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.submitted > d.completed {
		if ok, err := d.poll(d.submitted, closeTimeout); !ok || err != nil {
			gpubuf.Logger().Warn("native: in-flight work did not finish before close",
				"submitted", d.submitted, "err", err)
		}
	}
	d.closed = true
	for _, f := range d.inFlight {
		d.device.FreeCommandBuffer(f.cmd)
	}
	d.inFlight = nil
	for b := range d.buffers {
		b.destroyed = true
		d.device.DestroyBuffer(b.raw)
	}
	clear(d.buffers)
	d.device.DestroyFence(d.fence)
	if d.owned {
		d.device.Destroy()
		if d.instance != nil {
			d.instance.Destroy()
		}
	}
}

// own resolves buf to a live buffer of d. d.mu must be held.
func (d *Device) own(buf gpubuf.DeviceBuffer) (*Buffer, error) {
	if d.closed {
		return nil, ErrClosed
	}
	b, ok := buf.(*Buffer)
	if !ok || b.dev != d {
		return nil, fmt.Errorf("%w: %q", ErrForeignBuffer, buf.Label())
	}
	if b.destroyed {
		return nil, fmt.Errorf("%w: %q", ErrBufferDestroyed, b.label)
	}
	return b, nil
}

// fenceSignal fires when the device fence reaches value.
type fenceSignal struct {
	dev   *Device
	value uint64
}

func (s *fenceSignal) Poll() (bool, error) {
	s.dev.mu.Lock()
	defer s.dev.mu.Unlock()
	return s.dev.poll(s.value, 0)
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}

// padded returns data extended with zeros to a multiple of the queue
// write alignment.
func padded(data []byte) []byte {
	n := alignUp(uint64(len(data)), writeAlignment)
	if n == uint64(len(data)) {
		return data
	}
	out := make([]byte, n)
	copy(out, data)
	return out
}

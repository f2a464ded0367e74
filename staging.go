package gpubuf

import (
	"errors"
	"fmt"
	"sync"
)

// BeltStats is a snapshot of a staging belt's chunk lists.
type BeltStats struct {
	Name      string
	ChunkSize uint64

	// Active chunks accept writes for the current frame.
	Active int
	// Closed chunks were submitted and wait for RecallAll.
	Closed int
	// Pending chunks wait for their GPU work to complete.
	Pending int
	// Free chunks are ready for reuse.
	Free int
	// Created counts every chunk ever allocated by the belt.
	Created int
}

// beltCell guards one belt. The lock is only ever try-acquired: a belt
// that is already leased is a caller bug, not something to wait for.
type beltCell struct {
	mu   sync.Mutex
	belt belt
}

// StagingFactory is a registry of named staging belts sharing one device.
//
// Each frame the render loop fetches a Stager per belt it writes through,
// releases it, then calls SubmitAll, submits its command buffer, and calls
// RecallAll:
//
//	f.With("camera", func(s *gpubuf.Stager) {
//	    err = s.WriteBuffer(enc, cameraBuf, 0, payload)
//	})
//	if err := f.SubmitAll(); err != nil { ... }
//	queue.Submit(enc.Finish())
//	if err := f.RecallAll(); err != nil { ... }
//
// Belts are independent: leasing one never blocks another. A
// StagingFactory is safe for concurrent use, but each belt has at most one
// live Stager.
type StagingFactory struct {
	dev  Device
	opts factoryOptions

	mu    sync.RWMutex
	belts map[string]*beltCell
	order []*beltCell
}

// NewStagingFactory creates an empty registry for dev.
// Panics if dev is nil.
func NewStagingFactory(dev Device, opts ...FactoryOption) *StagingFactory {
	if dev == nil {
		panic(ErrNilDevice)
	}
	o := defaultFactoryOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &StagingFactory{
		dev:   dev,
		opts:  o,
		belts: make(map[string]*beltCell),
	}
}

// Device returns the device the belts allocate from.
func (f *StagingFactory) Device() Device { return f.dev }

// Register adds a belt whose chunks are at least chunkSize bytes.
// Panics with ErrBeltRegistered if name is taken and ErrInvalidChunkSize if
// chunkSize is zero or above the maximum chunk size (WithMaxChunkSize).
func (f *StagingFactory) Register(name string, chunkSize uint64) {
	if chunkSize == 0 || chunkSize > f.opts.maxChunk {
		panic(fmt.Errorf("%w: belt %q, chunk size %d, maximum %d", ErrInvalidChunkSize, name, chunkSize, f.opts.maxChunk))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.belts[name]; ok {
		panic(fmt.Errorf("%w: %q", ErrBeltRegistered, name))
	}
	cell := &beltCell{belt: belt{
		name:      name,
		chunkSize: chunkSize,
		alignment: f.opts.alignment,
		maxChunk:  f.opts.maxChunk,
		label:     f.opts.label + "/" + name,
	}}
	f.belts[name] = cell
	f.order = append(f.order, cell)
	Logger().Info("gpubuf: staging belt registered", "belt", name, "chunk_size", chunkSize)
}

// Registered reports whether a belt named name exists.
func (f *StagingFactory) Registered(name string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.belts[name]
	return ok
}

// Fetch leases the named belt. The returned Stager must be released before
// SubmitAll.
// Panics with ErrBeltUnknown for unregistered names and ErrBeltInUse if
// the belt is already leased.
func (f *StagingFactory) Fetch(name string) *Stager {
	f.mu.RLock()
	cell, ok := f.belts[name]
	f.mu.RUnlock()
	if !ok {
		panic(fmt.Errorf("%w: %q", ErrBeltUnknown, name))
	}
	if !cell.mu.TryLock() {
		panic(fmt.Errorf("%w: %q", ErrBeltInUse, name))
	}
	return &Stager{dev: f.dev, cell: cell}
}

// With fetches the named belt, runs fn with it, and releases it.
func (f *StagingFactory) With(name string, fn func(s *Stager)) {
	s := f.Fetch(name)
	defer s.Release()
	fn(s)
}

// SubmitAll closes the current write batch of every belt: each active
// chunk's bytes are written to its device buffer and the chunk moves to
// the closed list. Call it after every Stager of the frame has been
// released and before submitting the command buffer that holds the copies.
// Panics with ErrBeltInUse if a Stager is still alive.
func (f *StagingFactory) SubmitAll() error {
	var errs []error
	f.each(func(b *belt) {
		if err := b.finish(f.dev); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// RecallAll attaches a completion signal for the work submitted so far to
// every closed chunk, then returns chunks whose work has completed to the
// free lists. It never blocks: chunks still in flight stay queued and are
// polled again on the next call. Belts without closed chunks are left
// untouched and no signal is requested when no belt has any.
// Panics with ErrBeltInUse if a Stager is still alive.
func (f *StagingFactory) RecallAll() error {
	var signal Signal
	var errs []error
	f.each(func(b *belt) {
		if len(b.closed) > 0 {
			if signal == nil {
				signal = f.dev.SubmittedWorkDone()
			}
			b.enqueue(signal)
		}
		if len(b.pending) == 0 {
			return
		}
		if err := b.reclaim(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}

// Stats returns a snapshot of the named belt.
// Panics with ErrBeltUnknown for unregistered names and ErrBeltInUse if
// the belt is leased.
func (f *StagingFactory) Stats(name string) BeltStats {
	s := f.Fetch(name)
	defer s.Release()
	return s.cell.belt.stats()
}

// Destroy releases every chunk of every belt. The factory must not be used
// afterwards.
// Panics with ErrBeltInUse if a Stager is still alive.
func (f *StagingFactory) Destroy() {
	f.each(func(b *belt) { b.destroy() })
}

// each runs fn on every belt in registration order, holding each belt's
// lock for the call.
func (f *StagingFactory) each(fn func(b *belt)) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, cell := range f.order {
		cell.run(fn)
	}
}

func (c *beltCell) run(fn func(b *belt)) {
	if !c.mu.TryLock() {
		panic(fmt.Errorf("%w: %q still leased", ErrBeltInUse, c.belt.name))
	}
	defer c.mu.Unlock()
	fn(&c.belt)
}

// Stager is an exclusive lease on one staging belt for one write session.
//
// Staging areas returned by a Stager are CPU-writable views that stay
// valid until the next SubmitAll. The copies into their targets are
// recorded on the caller's encoder and take effect when that encoder's
// command buffer is submitted after SubmitAll.
type Stager struct {
	dev      Device
	cell     *beltCell
	released bool
}

// Name returns the name of the leased belt.
func (s *Stager) Name() string { return s.cell.belt.name }

// StagingArea reserves size bytes, records a copy of them into target at
// offset on enc, and returns the view to write the bytes into.
//
// The area comes from an active chunk with room, else a free chunk large
// enough, else a new chunk of max(chunk size, size rounded up to the
// alignment). Sizes above the maximum chunk size return an error wrapping
// ErrStagingTooLarge.
// Panics with ErrZeroSizeWrite if size is zero.
func (s *Stager) StagingArea(enc CommandEncoder, target DeviceBuffer, offset, size uint64) ([]byte, error) {
	s.checkLive()
	if size == 0 {
		panic(fmt.Errorf("%w: belt %q, target %q", ErrZeroSizeWrite, s.cell.belt.name, target.Label()))
	}
	if size > s.cell.belt.maxChunk {
		return nil, fmt.Errorf("staging belt %q: %w: %d bytes for %q, maximum %d",
			s.cell.belt.name, ErrStagingTooLarge, size, target.Label(), s.cell.belt.maxChunk)
	}
	c, start, err := s.cell.belt.allocate(s.dev, size)
	if err != nil {
		return nil, err
	}
	if err := enc.CopyBufferToBuffer(c.buffer, start, target, offset, size); err != nil {
		return nil, fmt.Errorf("staging belt %q: record copy to %q: %w", s.cell.belt.name, target.Label(), err)
	}
	return c.data[start : start+size : start+size], nil
}

// WriteBuffer stages data for target at offset.
// Panics with ErrZeroSizeWrite if data is empty.
func (s *Stager) WriteBuffer(enc CommandEncoder, target DeviceBuffer, offset uint64, data []byte) error {
	view, err := s.StagingArea(enc, target, offset, uint64(len(data)))
	if err != nil {
		return err
	}
	copy(view, data)
	return nil
}

// Release ends the lease. Releasing twice is a no-op.
func (s *Stager) Release() {
	if s.released {
		return
	}
	s.released = true
	s.cell.mu.Unlock()
}

func (s *Stager) checkLive() {
	if s.released {
		panic(fmt.Errorf("%w: belt %q", ErrStagerReleased, s.cell.belt.name))
	}
}

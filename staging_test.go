package gpubuf

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
)

func newTarget(t *testing.T, dev *testDevice, size uint64) DeviceBuffer {
	t.Helper()
	buf, err := dev.CreateBuffer(&BufferDescriptor{Label: "target", Size: size, Usage: gputypes.BufferUsageCopyDst})
	if err != nil {
		t.Fatalf("CreateBuffer() error = %v", err)
	}
	return buf
}

func TestRegisterTwicePanics(t *testing.T) {
	f := NewStagingFactory(newTestDevice())
	f.Register("a", 64)
	expectPanic(t, ErrBeltRegistered, func() { f.Register("a", 128) })
	if !f.Registered("a") || f.Registered("b") {
		t.Error("Registered() reports wrong names")
	}
}

func TestRegisterZeroChunkPanics(t *testing.T) {
	f := NewStagingFactory(newTestDevice())
	expectPanic(t, ErrInvalidChunkSize, func() { f.Register("a", 0) })
}

func TestNewStagingFactoryNilDevice(t *testing.T) {
	expectPanic(t, ErrNilDevice, func() { NewStagingFactory(nil) })
}

func TestFetchUnknownPanics(t *testing.T) {
	f := NewStagingFactory(newTestDevice())
	expectPanic(t, ErrBeltUnknown, func() { f.Fetch("missing") })
}

func TestFetchInUsePanics(t *testing.T) {
	f := NewStagingFactory(newTestDevice())
	f.Register("a", 64)
	f.Register("b", 64)

	s := f.Fetch("a")
	expectPanic(t, ErrBeltInUse, func() { f.Fetch("a") })

	// Other belts are independent.
	other := f.Fetch("b")
	other.Release()

	s.Release()
	s.Release()
	f.Fetch("a").Release()
}

func TestStagerUseAfterRelease(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)

	s := f.Fetch("a")
	s.Release()
	expectPanic(t, ErrStagerReleased, func() {
		_, _ = s.StagingArea(&testEncoder{}, target, 0, 4)
	})
}

func TestZeroSizeWritePanics(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)

	s := f.Fetch("a")
	defer s.Release()
	expectPanic(t, ErrZeroSizeWrite, func() {
		_, _ = s.StagingArea(&testEncoder{}, target, 0, 0)
	})
	expectPanic(t, ErrZeroSizeWrite, func() {
		_ = s.WriteBuffer(&testEncoder{}, target, 0, nil)
	})
}

func TestSubmitWithLiveStagerPanics(t *testing.T) {
	f := NewStagingFactory(newTestDevice())
	f.Register("a", 64)
	s := f.Fetch("a")
	expectPanic(t, ErrBeltInUse, func() { _ = f.SubmitAll() })
	expectPanic(t, ErrBeltInUse, func() { _ = f.RecallAll() })
	s.Release()
	if err := f.SubmitAll(); err != nil {
		t.Errorf("SubmitAll() after Release error = %v", err)
	}
}

func TestStagingAreaRecordsCopy(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)
	enc := &testEncoder{}

	s := f.Fetch("a")
	view, err := s.StagingArea(enc, target, 16, 12)
	if err != nil {
		t.Fatalf("StagingArea() error = %v", err)
	}
	if len(view) != 12 {
		t.Errorf("len(view) = %d, want 12", len(view))
	}
	copy(view, "hello world!")
	s.Release()

	if len(enc.copies) != 1 {
		t.Fatalf("copies = %d, want 1", len(enc.copies))
	}
	c := enc.copies[0]
	if c.dst != target || c.offset != 16 || c.size != 12 || c.srcOffset != 0 {
		t.Errorf("copy = %+v, want 12 bytes from chunk offset 0 to target offset 16", c)
	}
	chunk := c.src.(*testBuffer)
	if chunk.Size() != 64 {
		t.Errorf("chunk size = %d, want 64", chunk.Size())
	}
	want := gputypes.BufferUsageCopySrc | gputypes.BufferUsageCopyDst
	if chunk.Usage() != want {
		t.Errorf("chunk usage = %v, want CopySrc|CopyDst", chunk.Usage())
	}
	if chunk.Label() != "staging/a#0" {
		t.Errorf("chunk label = %q, want %q", chunk.Label(), "staging/a#0")
	}

	// Nothing reaches the device before SubmitAll.
	if bytes.Contains(chunk.data, []byte("hello")) {
		t.Error("chunk written before SubmitAll")
	}
	if err := f.SubmitAll(); err != nil {
		t.Fatalf("SubmitAll() error = %v", err)
	}
	if !bytes.Equal(chunk.data[:12], []byte("hello world!")) {
		t.Errorf("chunk data = %q, want staged bytes", chunk.data[:12])
	}
}

func TestStagingAreaAlignment(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)
	enc := &testEncoder{}

	s := f.Fetch("a")
	defer s.Release()
	for _, size := range []uint64{4, 12, 8} {
		if _, err := s.StagingArea(enc, target, 0, size); err != nil {
			t.Fatalf("StagingArea(%d) error = %v", size, err)
		}
	}
	for i, want := range []uint64{0, 8, 24} {
		if got := enc.copies[i].srcOffset; got != want {
			t.Errorf("copies[%d].srcOffset = %d, want %d", i, got, want)
		}
	}
	if enc.copies[0].src != enc.copies[2].src {
		t.Error("small writes did not share one chunk")
	}
}

func TestStagingAreaCustomAlignment(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev, WithChunkAlignment(256), WithFactoryLabel("frame"))
	f.Register("a", 1024)
	target := newTarget(t, dev, 64)
	enc := &testEncoder{}

	s := f.Fetch("a")
	defer s.Release()
	for range 2 {
		if _, err := s.StagingArea(enc, target, 0, 4); err != nil {
			t.Fatalf("StagingArea() error = %v", err)
		}
	}
	if got := enc.copies[1].srcOffset; got != 256 {
		t.Errorf("second srcOffset = %d, want 256", got)
	}
	if got := enc.copies[0].src.Label(); got != "frame/a#0" {
		t.Errorf("chunk label = %q, want %q", got, "frame/a#0")
	}
}

func TestWithChunkAlignmentPanics(t *testing.T) {
	for _, align := range []uint64{0, 2, 6, 12, 1 << 17} {
		expectPanic(t, ErrInvalidAlignment, func() { WithChunkAlignment(align) })
	}
}

func TestOversizedWriteGetsDedicatedChunk(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 256)
	enc := &testEncoder{}

	s := f.Fetch("a")
	if _, err := s.StagingArea(enc, target, 0, 100); err != nil {
		t.Fatalf("StagingArea() error = %v", err)
	}
	s.Release()

	if got := enc.copies[0].src.Size(); got != 104 {
		t.Errorf("chunk size = %d, want 104 (100 rounded up to 8)", got)
	}
}

func TestHugeStagingAreaIsRejected(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)
	enc := &testEncoder{}

	s := f.Fetch("a")
	defer s.Release()
	if _, err := s.StagingArea(enc, target, 0, 4); err != nil {
		t.Fatalf("StagingArea() error = %v", err)
	}
	for _, size := range []uint64{^uint64(0) - 4, ^uint64(0), 1 << 63, 256<<20 + 1} {
		view, err := s.StagingArea(enc, target, 0, size)
		if !errors.Is(err, ErrStagingTooLarge) {
			t.Errorf("StagingArea(%d) error = %v, want ErrStagingTooLarge", size, err)
		}
		if view != nil {
			t.Errorf("StagingArea(%d) returned a view", size)
		}
	}
	if len(enc.copies) != 1 {
		t.Errorf("recorded %d copies, want only the valid one", len(enc.copies))
	}
	if n := len(dev.buffers); n != 2 {
		t.Errorf("device holds %d buffers, want the target and one chunk", n)
	}
}

func TestMaxChunkSize(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev, WithMaxChunkSize(128))
	expectPanic(t, ErrInvalidChunkSize, func() { f.Register("big", 256) })
	f.Register("a", 64)
	target := newTarget(t, dev, 256)
	enc := &testEncoder{}

	f.With("a", func(s *Stager) {
		if _, err := s.StagingArea(enc, target, 0, 128); err != nil {
			t.Errorf("StagingArea(128) error = %v", err)
		}
		if _, err := s.StagingArea(enc, target, 0, 129); !errors.Is(err, ErrStagingTooLarge) {
			t.Errorf("StagingArea(129) error = %v, want ErrStagingTooLarge", err)
		}
	})
}

func TestChunkFitsNearCapacity(t *testing.T) {
	c := &chunk{data: make([]byte, 16), offset: 13}
	if c.fits(^uint64(0)-4, 8) {
		t.Error("fits() accepted a size that wraps past the chunk")
	}
	if c.fits(1, 8) {
		t.Error("fits() accepted a reservation starting past the end")
	}
	c.offset = 4
	if !c.fits(8, 8) || c.fits(9, 8) {
		t.Error("fits() misjudged the space after the aligned offset")
	}
}

func TestChunkRollover(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)
	enc := &testEncoder{}

	s := f.Fetch("a")
	for range 3 {
		if _, err := s.StagingArea(enc, target, 0, 40); err != nil {
			t.Fatalf("StagingArea() error = %v", err)
		}
	}
	s.Release()

	st := f.Stats("a")
	if st.Active != 3 || st.Created != 3 {
		t.Errorf("Stats = %+v, want 3 active chunks", st)
	}
}

func TestSubmitRecallReuse(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)

	frame := func() {
		t.Helper()
		enc := &testEncoder{}
		f.With("a", func(s *Stager) {
			if err := s.WriteBuffer(enc, target, 0, []byte{1, 2, 3, 4}); err != nil {
				t.Fatalf("WriteBuffer() error = %v", err)
			}
		})
		if err := f.SubmitAll(); err != nil {
			t.Fatalf("SubmitAll() error = %v", err)
		}
		if st := f.Stats("a"); st.Closed != 1 || st.Active != 0 {
			t.Fatalf("after SubmitAll Stats = %+v, want 1 closed", st)
		}
		if err := f.RecallAll(); err != nil {
			t.Fatalf("RecallAll() error = %v", err)
		}
	}

	for range 5 {
		frame()
	}
	st := f.Stats("a")
	if st.Created != 1 {
		t.Errorf("Created = %d, want 1 (chunk reused every frame)", st.Created)
	}
	if st.Free != 1 || st.Pending != 0 || st.Closed != 0 {
		t.Errorf("Stats = %+v, want the chunk back on the free list", st)
	}
}

func TestRecallKeepsInFlightChunks(t *testing.T) {
	dev := newTestDevice()
	dev.holdSignals = true
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)

	for range 2 {
		f.With("a", func(s *Stager) {
			if err := s.WriteBuffer(&testEncoder{}, target, 0, []byte{1, 2, 3, 4}); err != nil {
				t.Fatalf("WriteBuffer() error = %v", err)
			}
		})
		if err := f.SubmitAll(); err != nil {
			t.Fatalf("SubmitAll() error = %v", err)
		}
		if err := f.RecallAll(); err != nil {
			t.Fatalf("RecallAll() error = %v", err)
		}
	}

	st := f.Stats("a")
	if st.Created != 2 || st.Pending != 2 || st.Free != 0 {
		t.Fatalf("Stats = %+v, want 2 chunks pending", st)
	}

	// Completing the first frame's work frees only its chunk.
	dev.signals[0].done = true
	if err := f.RecallAll(); err != nil {
		t.Fatalf("RecallAll() error = %v", err)
	}
	if st := f.Stats("a"); st.Pending != 1 || st.Free != 1 {
		t.Errorf("Stats = %+v, want 1 pending and 1 free", st)
	}
	if len(dev.signals) != 2 {
		t.Errorf("signals requested = %d, want 2 (none for a recall without closed chunks)", len(dev.signals))
	}
}

func TestRecallDeviceLost(t *testing.T) {
	dev := newTestDevice()
	dev.holdSignals = true
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)

	f.With("a", func(s *Stager) {
		if err := s.WriteBuffer(&testEncoder{}, target, 0, []byte{1, 2, 3, 4}); err != nil {
			t.Fatalf("WriteBuffer() error = %v", err)
		}
	})
	if err := f.SubmitAll(); err != nil {
		t.Fatalf("SubmitAll() error = %v", err)
	}
	if err := f.RecallAll(); err != nil {
		t.Fatalf("RecallAll() error = %v", err)
	}

	lost := errors.New("device lost")
	dev.signals[0].err = lost
	if err := f.RecallAll(); !errors.Is(err, lost) {
		t.Errorf("RecallAll() error = %v, want wrapping %v", err, lost)
	}
	if st := f.Stats("a"); st.Pending != 1 {
		t.Errorf("Pending = %d, want the failed recall kept queued", st.Pending)
	}
}

func TestIdleBeltsUntouched(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("busy", 64)
	f.Register("idle", 64)
	target := newTarget(t, dev, 64)

	f.With("busy", func(s *Stager) {
		if err := s.WriteBuffer(&testEncoder{}, target, 0, []byte{1, 2, 3, 4}); err != nil {
			t.Fatalf("WriteBuffer() error = %v", err)
		}
	})
	if err := f.SubmitAll(); err != nil {
		t.Fatalf("SubmitAll() error = %v", err)
	}
	if err := f.RecallAll(); err != nil {
		t.Fatalf("RecallAll() error = %v", err)
	}

	if st := f.Stats("idle"); st != (BeltStats{Name: "idle", ChunkSize: 64}) {
		t.Errorf("idle Stats = %+v, want untouched", st)
	}
	if len(dev.signals) != 1 {
		t.Errorf("signals requested = %d, want 1 shared by all belts", len(dev.signals))
	}
}

func TestRecallWithoutWritesRequestsNoSignal(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	if err := f.SubmitAll(); err != nil {
		t.Fatalf("SubmitAll() error = %v", err)
	}
	if err := f.RecallAll(); err != nil {
		t.Fatalf("RecallAll() error = %v", err)
	}
	if len(dev.signals) != 0 {
		t.Errorf("signals requested = %d, want 0", len(dev.signals))
	}
}

func TestSubmitAllFlushError(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)
	f.With("a", func(s *Stager) {
		if err := s.WriteBuffer(&testEncoder{}, target, 0, []byte{1, 2, 3, 4}); err != nil {
			t.Fatalf("WriteBuffer() error = %v", err)
		}
	})

	cause := errors.New("queue write failed")
	dev.failWrite = cause
	if err := f.SubmitAll(); !errors.Is(err, cause) {
		t.Errorf("SubmitAll() error = %v, want wrapping %v", err, cause)
	}
	if st := f.Stats("a"); st.Closed != 1 || st.Active != 0 {
		t.Errorf("Stats = %+v, want the chunk closed despite the error", st)
	}
}

func TestStagingAreaCopyError(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)
	cause := errors.New("encoder lost")

	s := f.Fetch("a")
	defer s.Release()
	if _, err := s.StagingArea(&testEncoder{err: cause}, target, 0, 4); !errors.Is(err, cause) {
		t.Errorf("StagingArea() error = %v, want wrapping %v", err, cause)
	}
}

func TestChunkAllocationError(t *testing.T) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)
	cause := errors.New("out of memory")
	dev.failCreate = cause

	s := f.Fetch("a")
	defer s.Release()
	if _, err := s.StagingArea(&testEncoder{}, target, 0, 4); !errors.Is(err, cause) {
		t.Errorf("StagingArea() error = %v, want wrapping %v", err, cause)
	}
}

func TestDestroyReleasesChunks(t *testing.T) {
	dev := newTestDevice()
	dev.holdSignals = true
	f := NewStagingFactory(dev)
	f.Register("a", 64)
	target := newTarget(t, dev, 64)

	// One pending, one active chunk.
	for i := range 2 {
		f.With("a", func(s *Stager) {
			if err := s.WriteBuffer(&testEncoder{}, target, 0, []byte{1, 2, 3, 4}); err != nil {
				t.Fatalf("WriteBuffer() error = %v", err)
			}
		})
		if i == 0 {
			if err := f.SubmitAll(); err != nil {
				t.Fatalf("SubmitAll() error = %v", err)
			}
			if err := f.RecallAll(); err != nil {
				t.Fatalf("RecallAll() error = %v", err)
			}
		}
	}

	f.Destroy()
	for _, b := range dev.buffers[1:] {
		if b.destroyed != 1 {
			t.Errorf("chunk %q destroyed %d times, want 1", b.label, b.destroyed)
		}
	}
	if target.(*testBuffer).destroyed != 0 {
		t.Error("Destroy released a buffer the factory does not own")
	}
}

func TestStagerName(t *testing.T) {
	f := NewStagingFactory(newTestDevice())
	f.Register("camera", 64)
	f.With("camera", func(s *Stager) {
		if s.Name() != "camera" {
			t.Errorf("Name() = %q, want %q", s.Name(), "camera")
		}
	})
}

func BenchmarkStagingArea(b *testing.B) {
	dev := newTestDevice()
	f := NewStagingFactory(dev)
	f.Register("bench", 1<<16)
	target, _ := dev.CreateBuffer(&BufferDescriptor{Label: "target", Size: 64, Usage: gputypes.BufferUsageCopyDst})
	enc := &testEncoder{}
	payload := make([]byte, 64)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.With("bench", func(s *Stager) {
			_ = s.WriteBuffer(enc, target, 0, payload)
		})
		if i%512 == 511 {
			_ = f.SubmitAll()
			_ = f.RecallAll()
			enc.copies = enc.copies[:0]
		}
	}
}

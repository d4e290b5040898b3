package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/AlverezYari/reviewgreen/internal/logging"
)

func init() {
	logging.SetOutput(io.Discard)
}

type fakeAcquirer struct {
	mu        sync.Mutex
	active    int
	maxActive int
	acquired  int
	released  int
	overlap   bool
	facings   []FacingMode
	streams   []*fakeStream
	err       error
	noFrames  bool
	gate      chan struct{}
	called    chan struct{}
}

func (a *fakeAcquirer) Acquire(ctx context.Context, facing FacingMode, res Resolution) (Stream, error) {
	a.mu.Lock()
	if a.active > 0 {
		a.overlap = true
	}
	a.facings = append(a.facings, facing)
	gate, called, err := a.gate, a.called, a.err
	a.mu.Unlock()

	if called != nil {
		called <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}

	s := &fakeStream{
		acq:     a,
		facing:  facing,
		frames:  make(chan image.Image, 1),
		stopped: make(chan struct{}),
	}
	if !a.noFrames {
		s.frames <- testFrame(res)
	}

	a.mu.Lock()
	a.active++
	a.acquired++
	if a.active > a.maxActive {
		a.maxActive = a.active
	}
	a.streams = append(a.streams, s)
	a.mu.Unlock()
	return s, nil
}

func (a *fakeAcquirer) stats() (active, maxActive, acquired, released int, overlap bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active, a.maxActive, a.acquired, a.released, a.overlap
}

type fakeStream struct {
	acq       *fakeAcquirer
	facing    FacingMode
	frames    chan image.Image
	once      sync.Once
	closeOnce sync.Once
	stopped   chan struct{}
}

func (s *fakeStream) Facing() FacingMode          { return s.facing }
func (s *fakeStream) Frames() <-chan image.Image { return s.frames }

// end simulates a device that stops delivering frames while still held.
func (s *fakeStream) end() {
	s.closeOnce.Do(func() { close(s.frames) })
}

func (s *fakeStream) Stop() error {
	s.once.Do(func() {
		s.end()
		close(s.stopped)
		s.acq.mu.Lock()
		s.acq.active--
		s.acq.released++
		s.acq.mu.Unlock()
	})
	return nil
}

type failingEncoder struct{}

func (failingEncoder) Encode(ctx context.Context, frame image.Image, quality int) ([]byte, error) {
	return nil, errors.New("codec exploded")
}

func (failingEncoder) ContentType() string { return "image/jpeg" }

// stuckSink never returns from Present until released.
type stuckSink struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newStuckSink() *stuckSink {
	return &stuckSink{entered: make(chan struct{}), release: make(chan struct{})}
}

func (k *stuckSink) Present(image.Image) {
	k.once.Do(func() { close(k.entered) })
	<-k.release
}

func testFrame(res Resolution) image.Image {
	w, h := res.Width/20, res.Height/20
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: 160, B: uint8(y), A: 255})
		}
	}
	return img
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func openReady(t *testing.T, s *Session, facing FacingMode) {
	t.Helper()
	if err := s.Open(context.Background(), facing); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	waitFor(t, "first frame", s.Ready)
}

func TestOpenAndCapture(t *testing.T) {
	acq := &fakeAcquirer{}
	locators := NewMemoryLocators()
	s := NewSession(Options{Acquirer: acq, Locators: locators})

	if err := s.Open(context.Background(), FacingBack); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if got := s.Phase(); got != PhaseLive {
		t.Fatalf("phase after open = %s, want live", got)
	}
	waitFor(t, "first frame", s.Ready)

	a, err := s.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	if got := s.Phase(); got != PhaseCaptured {
		t.Fatalf("phase after capture = %s, want captured", got)
	}
	if len(a.Data) == 0 {
		t.Fatalf("captured artifact is empty")
	}
	if _, err := jpeg.Decode(bytes.NewReader(a.Data)); err != nil {
		t.Fatalf("artifact is not a JPEG: %v", err)
	}
	if a.Facing != FacingBack || a.Source != SourceLive {
		t.Errorf("artifact facing/source = %s/%s", a.Facing, a.Source)
	}
	if _, ok := locators.Lookup(a.Locator); !ok {
		t.Errorf("artifact locator %q not registered", a.Locator)
	}
	if active, _, _, _, _ := acq.stats(); active != 0 {
		t.Errorf("stream still held after capture: active = %d", active)
	}
	if s.Surface().Bound() {
		t.Errorf("surface still bound after capture")
	}
}

func TestAtMostOneStreamHeld(t *testing.T) {
	acq := &fakeAcquirer{}
	s := NewSession(Options{Acquirer: acq})
	ctx := context.Background()

	openReady(t, s, FacingBack)
	for i := 0; i < 5; i++ {
		if _, err := s.Capture(ctx); err != nil {
			t.Fatalf("Capture() #%d failed: %v", i, err)
		}
		if err := s.Retake(ctx); err != nil {
			t.Fatalf("Retake() #%d failed: %v", i, err)
		}
		waitFor(t, "frame after retake", s.Ready)
		if err := s.SwitchFacing(ctx); err != nil {
			t.Fatalf("SwitchFacing() #%d failed: %v", i, err)
		}
		waitFor(t, "frame after switch", s.Ready)
	}
	s.Close()

	active, maxActive, acquired, released, overlap := acq.stats()
	if maxActive > 1 || overlap {
		t.Fatalf("more than one stream held at once: max=%d overlap=%v", maxActive, overlap)
	}
	if active != 0 || acquired != released {
		t.Fatalf("leaked streams: active=%d acquired=%d released=%d", active, acquired, released)
	}
}

func TestSwitchFacingReleasesBeforeAcquire(t *testing.T) {
	acq := &fakeAcquirer{}
	s := NewSession(Options{Acquirer: acq})
	openReady(t, s, FacingBack)

	first := acq.streams[0]
	if err := s.SwitchFacing(context.Background()); err != nil {
		t.Fatalf("SwitchFacing() failed: %v", err)
	}
	select {
	case <-first.stopped:
	default:
		t.Fatalf("previous stream not stopped")
	}

	_, _, _, _, overlap := acq.stats()
	if overlap {
		t.Fatalf("new acquisition began while old stream was active")
	}
	if got := s.Facing(); got != FacingFront {
		t.Errorf("facing after switch = %s, want %s", got, FacingFront)
	}
	if len(acq.facings) != 2 || acq.facings[1] != FacingFront {
		t.Errorf("acquired facings = %v", acq.facings)
	}
	s.Close()
}

func TestCloseFromAnyPhase(t *testing.T) {
	ctx := context.Background()

	t.Run("idle", func(t *testing.T) {
		s := NewSession(Options{Acquirer: &fakeAcquirer{}})
		s.Close()
		s.Close()
		if s.Phase() != PhaseIdle {
			t.Fatalf("phase = %s, want idle", s.Phase())
		}
	})

	t.Run("live", func(t *testing.T) {
		acq := &fakeAcquirer{}
		s := NewSession(Options{Acquirer: acq})
		openReady(t, s, FacingBack)
		s.Close()
		s.Close()
		if active, _, _, _, _ := acq.stats(); active != 0 {
			t.Fatalf("active streams after close = %d", active)
		}
		if s.Phase() != PhaseIdle {
			t.Fatalf("phase = %s, want idle", s.Phase())
		}
	})

	t.Run("captured", func(t *testing.T) {
		acq := &fakeAcquirer{}
		locators := NewMemoryLocators()
		s := NewSession(Options{Acquirer: acq, Locators: locators})
		openReady(t, s, FacingBack)
		if _, err := s.Capture(ctx); err != nil {
			t.Fatalf("Capture() failed: %v", err)
		}
		s.Close()
		if s.Artifact() != nil {
			t.Fatalf("artifact survived close")
		}
		if locators.Len() != 0 {
			t.Fatalf("locator not revoked on close")
		}
		if active, _, _, _, _ := acq.stats(); active != 0 {
			t.Fatalf("active streams after close = %d", active)
		}
	})
}

func TestCaptureBeforeFirstFrame(t *testing.T) {
	acq := &fakeAcquirer{noFrames: true}
	s := NewSession(Options{Acquirer: acq})
	if err := s.Open(context.Background(), FacingBack); err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if s.Ready() {
		t.Fatalf("session reports ready without a frame")
	}

	_, err := s.Capture(context.Background())
	if !errors.Is(err, ErrEncodingFailed) {
		t.Fatalf("Capture() error = %v, want ErrEncodingFailed", err)
	}
	if s.Phase() != PhaseLive {
		t.Fatalf("phase = %s, want live", s.Phase())
	}
	if active, _, _, _, _ := acq.stats(); active != 1 {
		t.Fatalf("stream should still be held, active = %d", active)
	}
	s.Close()
}

func TestEncoderFailureKeepsSessionLive(t *testing.T) {
	acq := &fakeAcquirer{}
	s := NewSession(Options{Acquirer: acq, Encoder: failingEncoder{}})
	openReady(t, s, FacingBack)

	if _, err := s.Capture(context.Background()); !errors.Is(err, ErrEncodingFailed) {
		t.Fatalf("Capture() error = %v, want ErrEncodingFailed", err)
	}
	if s.Phase() != PhaseLive {
		t.Fatalf("phase = %s, want live", s.Phase())
	}
	s.Close()
}

func TestRetakeRoundTrip(t *testing.T) {
	acq := &fakeAcquirer{}
	locators := NewMemoryLocators()
	s := NewSession(Options{Acquirer: acq, Locators: locators})
	ctx := context.Background()
	openReady(t, s, FacingFront)

	first, err := s.Capture(ctx)
	if err != nil {
		t.Fatalf("first Capture() failed: %v", err)
	}
	if err := s.Retake(ctx); err != nil {
		t.Fatalf("Retake() failed: %v", err)
	}
	if s.Phase() != PhaseLive {
		t.Fatalf("phase after retake = %s, want live", s.Phase())
	}
	if s.Artifact() != nil {
		t.Fatalf("prior artifact not discarded")
	}
	if _, ok := locators.Lookup(first.Locator); ok {
		t.Fatalf("prior locator still registered")
	}
	if got := acq.facings[len(acq.facings)-1]; got != FacingFront {
		t.Fatalf("retake facing = %s, want %s", got, FacingFront)
	}

	waitFor(t, "frame after retake", s.Ready)
	second, err := s.Capture(ctx)
	if err != nil {
		t.Fatalf("second Capture() failed: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("second capture reused artifact id")
	}
	s.Close()
}

func TestCloseWhileAcquiring(t *testing.T) {
	acq := &fakeAcquirer{gate: make(chan struct{}), called: make(chan struct{}, 1)}
	s := NewSession(Options{Acquirer: acq})

	result := make(chan error, 1)
	go func() { result <- s.Open(context.Background(), FacingBack) }()

	<-acq.called
	if s.Phase() != PhaseAcquiring {
		t.Fatalf("phase = %s, want acquiring", s.Phase())
	}
	s.Close()
	close(acq.gate)

	if err := <-result; !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Open() error = %v, want ErrSessionClosed", err)
	}
	waitFor(t, "late stream release", func() bool {
		active, _, acquired, released, _ := acq.stats()
		return acquired == 1 && released == 1 && active == 0
	})
	if s.Surface().Bound() {
		t.Fatalf("late stream was bound to the surface")
	}
	if s.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", s.Phase())
	}
}

func TestCancelWhileAcquiring(t *testing.T) {
	acq := &fakeAcquirer{gate: make(chan struct{}), called: make(chan struct{}, 1)}
	s := NewSession(Options{Acquirer: acq})
	ctx, cancel := context.WithCancel(context.Background())

	result := make(chan error, 1)
	go func() { result <- s.Open(ctx, FacingBack) }()

	<-acq.called
	cancel()
	if err := <-result; !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Open() error = %v, want ErrSessionClosed", err)
	}
	if s.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", s.Phase())
	}

	close(acq.gate)
	waitFor(t, "late stream release", func() bool {
		active, _, acquired, released, _ := acq.stats()
		return acquired == 1 && released == 1 && active == 0
	})
}

func TestAcquireFailureReturnsToIdle(t *testing.T) {
	acq := &fakeAcquirer{err: Unavailable(ReasonPermissionDenied, errors.New("user said no"))}
	s := NewSession(Options{Acquirer: acq})

	err := s.Open(context.Background(), FacingBack)
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("Open() error = %v, want ErrCameraUnavailable", err)
	}
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.Reason != ReasonPermissionDenied {
		t.Fatalf("Open() error = %v, want permission denied reason", err)
	}
	if s.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", s.Phase())
	}

	acq.err = errors.New("device vanished")
	if err := s.Open(context.Background(), FacingBack); !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("plain acquirer error not collapsed: %v", err)
	}
}

func TestOpenWithoutAcquirer(t *testing.T) {
	s := NewSession(Options{})
	err := s.Open(context.Background(), FacingFront)
	var ue *UnavailableError
	if !errors.As(err, &ue) || ue.Reason != ReasonUnsupported {
		t.Fatalf("Open() error = %v, want unsupported", err)
	}
	if s.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", s.Phase())
	}
}

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewSession(Options{Acquirer: &fakeAcquirer{}})

	if _, err := s.Capture(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Capture() in idle = %v", err)
	}
	if err := s.SwitchFacing(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("SwitchFacing() in idle = %v", err)
	}
	if err := s.Retake(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Retake() in idle = %v", err)
	}
	if _, err := s.Confirm(); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Confirm() in idle = %v", err)
	}

	openReady(t, s, FacingBack)
	if err := s.Open(ctx, FacingBack); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Open() while live = %v", err)
	}
	if err := s.Retake(ctx); !errors.Is(err, ErrInvalidState) {
		t.Errorf("Retake() while live = %v", err)
	}
	if err := s.Open(ctx, FacingMode("sideways")); err == nil {
		t.Errorf("Open() accepted an invalid facing mode")
	}
	s.Close()
}

func TestConfirmTransfersArtifact(t *testing.T) {
	acq := &fakeAcquirer{}
	locators := NewMemoryLocators()
	s := NewSession(Options{Acquirer: acq, Locators: locators})
	openReady(t, s, FacingBack)

	captured, err := s.Capture(context.Background())
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	confirmed, err := s.Confirm()
	if err != nil {
		t.Fatalf("Confirm() failed: %v", err)
	}
	if confirmed != captured {
		t.Fatalf("Confirm() returned a different artifact")
	}
	s.Close()
	if _, ok := locators.Lookup(confirmed.Locator); !ok {
		t.Fatalf("confirmed artifact locator revoked by close")
	}
	if s.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", s.Phase())
	}
}

func within(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("%s blocked", what)
	}
}

func TestStuckSinkDoesNotBlockRelease(t *testing.T) {
	acq := &fakeAcquirer{}
	sink := newStuckSink()
	defer close(sink.release)

	s := NewSession(Options{Acquirer: acq, Sink: sink})
	openReady(t, s, FacingBack)
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("sink never received a frame")
	}

	within(t, "Capture()", func() {
		if _, err := s.Capture(context.Background()); err != nil {
			t.Errorf("Capture() failed: %v", err)
		}
	})
	within(t, "Phase()", func() { s.Phase() })
	if active, _, _, released, _ := acq.stats(); active != 0 || released != 1 {
		t.Fatalf("after capture active = %d released = %d", active, released)
	}

	within(t, "Retake()", func() {
		if err := s.Retake(context.Background()); err != nil {
			t.Errorf("Retake() failed: %v", err)
		}
	})
	within(t, "Close()", s.Close)
	if active, _, _, released, _ := acq.stats(); active != 0 || released != 2 {
		t.Fatalf("after close active = %d released = %d", active, released)
	}
	if s.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", s.Phase())
	}
}

func TestEndedStreamIsNotCaptured(t *testing.T) {
	acq := &fakeAcquirer{}
	s := NewSession(Options{Acquirer: acq})
	openReady(t, s, FacingBack)

	acq.mu.Lock()
	stream := acq.streams[0]
	acq.mu.Unlock()
	stream.end()

	waitFor(t, "source to end", s.SourceEnded)
	if s.Ready() {
		t.Fatal("session ready after its stream ended")
	}

	_, err := s.Capture(context.Background())
	if !errors.Is(err, ErrCameraUnavailable) {
		t.Fatalf("Capture() error = %v, want ErrCameraUnavailable", err)
	}
	if s.Phase() != PhaseIdle {
		t.Fatalf("phase = %s, want idle", s.Phase())
	}
	if active, _, _, released, _ := acq.stats(); active != 0 || released != 1 {
		t.Fatalf("active = %d released = %d", active, released)
	}
	s.Close()
}

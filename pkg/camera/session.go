// pkg/camera/session.go
package camera

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AlverezYari/reviewgreen/internal/logging"
)

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseAcquiring
	PhaseLive
	PhaseCaptured
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseAcquiring:
		return "acquiring"
	case PhaseLive:
		return "live"
	case PhaseCaptured:
		return "captured"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

type Options struct {
	Acquirer   Acquirer
	Encoder    Encoder
	Locators   Locators
	Sink       FrameSink
	Resolution Resolution
	Quality    int
}

// Session is a live capture session. It holds at most one stream at a time and
// releases it whenever it leaves the live phase.
type Session struct {
	opts    Options
	surface *Surface

	mu        sync.Mutex
	phase     Phase
	facing    FacingMode
	stream    Stream
	artifact  *Artifact
	gen       uint64
	capturing bool
}

func NewSession(opts Options) *Session {
	if opts.Encoder == nil {
		opts.Encoder = JPEGEncoder{}
	}
	if opts.Locators == nil {
		opts.Locators = NewMemoryLocators()
	}
	if opts.Resolution.Width <= 0 || opts.Resolution.Height <= 0 {
		opts.Resolution = DefaultResolution
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = DefaultQuality
	}
	return &Session{
		opts:    opts,
		surface: NewSurface(opts.Sink),
		facing:  FacingBack,
	}
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

func (s *Session) Facing() FacingMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

// Artifact returns the pending still while the session is in the captured phase.
func (s *Session) Artifact() *Artifact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.artifact
}

// SourceEnded reports a live session whose stream stopped delivering frames.
func (s *Session) SourceEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase == PhaseLive && s.surface.Ended()
}

func (s *Session) Surface() *Surface {
	return s.surface
}

// Ready reports whether the capture action may be offered: the session is live,
// no capture is in flight and at least one frame has been decoded.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseLive || s.capturing {
		return false
	}
	_, ok := s.surface.Frame()
	return ok
}

// Open acquires a stream for facing and binds it to the surface.
// Cancelling ctx before the acquisition resolves has the same effect as Close.
func (s *Session) Open(ctx context.Context, facing FacingMode) error {
	if !facing.Valid() {
		return fmt.Errorf("invalid facing mode %q", facing)
	}

	s.mu.Lock()
	if s.phase != PhaseIdle {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: open while %s", ErrInvalidState, phase)
	}
	s.facing = facing
	gen := s.beginAcquireLocked()
	s.mu.Unlock()

	return s.acquire(ctx, gen, facing)
}

// SwitchFacing releases the current stream and reacquires with the other camera.
func (s *Session) SwitchFacing(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseLive || s.capturing {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: switch facing while %s", ErrInvalidState, phase)
	}
	s.releaseLocked()
	s.facing = s.facing.Toggle()
	facing := s.facing
	gen := s.beginAcquireLocked()
	s.mu.Unlock()

	logging.Debugf("camera: switching to %s camera", facing)
	return s.acquire(ctx, gen, facing)
}

// Capture encodes the frame currently on the surface, releases the stream and
// moves to the captured phase. Without a rendered frame it fails with
// ErrEncodingFailed and the session stays live. If the stream has died the
// session returns to idle and the error matches ErrCameraUnavailable.
func (s *Session) Capture(ctx context.Context) (*Artifact, error) {
	s.mu.Lock()
	if s.phase != PhaseLive || s.capturing {
		phase := s.phase
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: capture while %s", ErrInvalidState, phase)
	}
	frame, ok := s.surface.Frame()
	if !ok && s.surface.Ended() {
		s.releaseLocked()
		s.gen++
		s.phase = PhaseIdle
		s.mu.Unlock()
		logging.Errorf("camera: %s camera stopped delivering frames", s.facing)
		return nil, Unavailable(ReasonNoDevice, errors.New("stream ended"))
	}
	if !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: no frame rendered yet", ErrEncodingFailed)
	}
	s.capturing = true
	gen, facing := s.gen, s.facing
	s.mu.Unlock()

	data, err := s.opts.Encoder.Encode(ctx, frame, s.opts.Quality)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.capturing = false

	if s.gen != gen || s.phase != PhaseLive {
		return nil, ErrSessionClosed
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncodingFailed, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: encoder produced no data", ErrEncodingFailed)
	}

	bounds := frame.Bounds()
	a := &Artifact{
		ID:          newArtifactID(),
		Data:        data,
		ContentType: s.opts.Encoder.ContentType(),
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Facing:      facing,
		Source:      SourceLive,
		CapturedAt:  time.Now(),
	}
	a.Locator = s.opts.Locators.Register(a.ID, a.ContentType, a.Data)

	s.releaseLocked()
	s.artifact = a
	s.phase = PhaseCaptured
	logging.Infof("camera: captured %dx%d still (%d bytes)", a.Width, a.Height, len(a.Data))
	return a, nil
}

// Retake discards the captured still and reacquires with the last facing mode.
func (s *Session) Retake(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseCaptured {
		phase := s.phase
		s.mu.Unlock()
		return fmt.Errorf("%w: retake while %s", ErrInvalidState, phase)
	}
	s.discardLocked()
	facing := s.facing
	gen := s.beginAcquireLocked()
	s.mu.Unlock()

	return s.acquire(ctx, gen, facing)
}

// Confirm hands the captured still to the caller and ends the session. The
// artifact's locator stays valid; revoking it is now the caller's job.
func (s *Session) Confirm() (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseCaptured || s.artifact == nil {
		return nil, fmt.Errorf("%w: confirm while %s", ErrInvalidState, s.phase)
	}
	a := s.artifact
	s.artifact = nil
	s.gen++
	s.phase = PhaseIdle
	return a, nil
}

// Close releases any held stream and discards any unconfirmed still. It is safe
// to call from any phase, any number of times.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.releaseLocked()
	s.discardLocked()
	s.phase = PhaseIdle
}

func (s *Session) beginAcquireLocked() uint64 {
	s.gen++
	s.phase = PhaseAcquiring
	return s.gen
}

type acquired struct {
	stream Stream
	err    error
}

func (s *Session) acquire(ctx context.Context, gen uint64, facing FacingMode) error {
	if s.opts.Acquirer == nil {
		return s.complete(gen, nil, Unavailable(ReasonUnsupported, errors.New("no media capture capability")))
	}

	results := make(chan acquired, 1)
	go func() {
		stream, err := s.opts.Acquirer.Acquire(ctx, facing, s.opts.Resolution)
		results <- acquired{stream: stream, err: err}
	}()

	select {
	case r := <-results:
		return s.complete(gen, r.stream, r.err)
	case <-ctx.Done():
		s.mu.Lock()
		if s.gen == gen && s.phase == PhaseAcquiring {
			s.gen++
			s.phase = PhaseIdle
		}
		s.mu.Unlock()

		// the host still owns the request; release whatever it eventually grants
		go func() {
			r := <-results
			s.complete(gen, r.stream, r.err)
		}()
		return fmt.Errorf("%w: %v", ErrSessionClosed, ctx.Err())
	}
}

func (s *Session) complete(gen uint64, stream Stream, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.gen != gen || s.phase != PhaseAcquiring {
		if stream != nil {
			logging.Debugf("camera: releasing stream granted after session closed")
			stopStream(stream)
		}
		return ErrSessionClosed
	}
	if err != nil {
		s.phase = PhaseIdle
		return asUnavailable(err)
	}
	if stream == nil {
		s.phase = PhaseIdle
		return Unavailable(ReasonUnknown, errors.New("acquirer returned no stream"))
	}

	s.stream = stream
	s.surface.Bind(stream)
	s.phase = PhaseLive
	logging.Infof("camera: %s camera live", stream.Facing())
	return nil
}

func (s *Session) releaseLocked() {
	if s.stream == nil {
		return
	}
	s.surface.Unbind()
	stopStream(s.stream)
	s.stream = nil
}

func (s *Session) discardLocked() {
	if s.artifact == nil {
		return
	}
	s.opts.Locators.Revoke(s.artifact.Locator)
	s.artifact = nil
}

func stopStream(stream Stream) {
	if err := stream.Stop(); err != nil {
		logging.Warnf("camera: error stopping stream: %v", err)
	}
}

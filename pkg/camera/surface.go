package camera

import (
	"image"
	"sync"
)

// Surface is the render target a live stream is bound to. It keeps the most
// recently decoded frame so a still can be taken from it.
type Surface struct {
	sink FrameSink

	mu     sync.RWMutex
	frame  image.Image
	frames int
	ended  bool
	stop   chan struct{}
	done   chan struct{}
}

func NewSurface(sink FrameSink) *Surface {
	return &Surface{sink: sink}
}

// Bind attaches stream as the surface source and starts playback. Any previous
// source is unbound first.
func (s *Surface) Bind(stream Stream) {
	s.Unbind()

	stop := make(chan struct{})
	done := make(chan struct{})

	s.mu.Lock()
	s.frame = nil
	s.frames = 0
	s.ended = false
	s.stop = stop
	s.done = done
	s.mu.Unlock()

	var mailbox chan image.Image
	if s.sink != nil {
		mailbox = make(chan image.Image, 1)
		go s.present(mailbox, stop)
	}
	go s.play(stream.Frames(), mailbox, stop, done)
}

func (s *Surface) play(frames <-chan image.Image, mailbox chan image.Image, stop, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case frame, ok := <-frames:
			if !ok {
				// the source died under us; a stale frame must not be captured
				s.mu.Lock()
				s.frame = nil
				s.ended = true
				s.mu.Unlock()
				return
			}
			if frame == nil {
				continue
			}
			s.mu.Lock()
			s.frame = frame
			s.frames++
			s.mu.Unlock()
			if mailbox != nil {
				offer(mailbox, frame)
			}
		}
	}
}

// present hands frames to the sink on its own goroutine so a slow sink never
// holds up playback or Unbind.
func (s *Surface) present(mailbox <-chan image.Image, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case frame := <-mailbox:
			s.sink.Present(frame)
		}
	}
}

// offer replaces whatever is waiting in mailbox with frame.
func offer(mailbox chan image.Image, frame image.Image) {
	select {
	case mailbox <- frame:
		return
	default:
	}
	select {
	case <-mailbox:
	default:
	}
	select {
	case mailbox <- frame:
	default:
	}
}

// Unbind stops playback and detaches the source. It returns once the playback
// goroutine has exited; it never waits on the sink.
func (s *Surface) Unbind() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.frame = nil
	s.frames = 0
	s.ended = false
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done

	// playback may have stored one last frame before observing stop
	s.mu.Lock()
	s.frame = nil
	s.frames = 0
	s.ended = false
	s.mu.Unlock()
}

// Frame returns the latest decoded frame, or false before the first one arrives
// and after the source has ended.
func (s *Surface) Frame() (image.Image, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frame, s.frame != nil
}

// Ended reports whether the bound source stopped delivering frames on its own.
func (s *Surface) Ended() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ended
}

// FramesDecoded is the number of frames shown since the last Bind.
func (s *Surface) FramesDecoded() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frames
}

func (s *Surface) Bound() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stop != nil
}

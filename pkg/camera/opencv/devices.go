package opencv

import (
	"image"
	"sync"
)

type stopper interface {
	Stop() error
}

// deviceTable tracks which capture devices are held. A device is reserved
// before it opens so a second Acquire cannot race the first.
type deviceTable struct {
	mu      sync.Mutex
	streams map[string]stopper
}

func newDeviceTable() *deviceTable {
	return &deviceTable{streams: make(map[string]stopper)}
}

// reserve claims id and reports false when it is already held.
func (t *deviceTable) reserve(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, held := t.streams[id]; held {
		return false
	}
	t.streams[id] = nil
	return true
}

// attach records the open stream for a reserved id.
func (t *deviceTable) attach(id string, s stopper) {
	t.mu.Lock()
	t.streams[id] = s
	t.mu.Unlock()
}

func (t *deviceTable) release(id string) {
	t.mu.Lock()
	delete(t.streams, id)
	t.mu.Unlock()
}

func (t *deviceTable) held(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.streams[id]
	return ok
}

// stopAll stops every attached stream. Streams release themselves.
func (t *deviceTable) stopAll() {
	t.mu.Lock()
	streams := make([]stopper, 0, len(t.streams))
	for _, s := range t.streams {
		if s != nil {
			streams = append(streams, s)
		}
	}
	t.mu.Unlock()

	for _, s := range streams {
		s.Stop()
	}
}

// deliverLatest keeps only the newest frame when the consumer lags behind.
func deliverLatest(frames chan image.Image, frame image.Image) {
	select {
	case frames <- frame:
		return
	default:
	}
	select {
	case <-frames:
	default:
	}
	select {
	case frames <- frame:
	default:
	}
}

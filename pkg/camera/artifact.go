package camera

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultQuality is the JPEG quality used for stills, on the 1-100 scale.
const DefaultQuality = 90

type Source string

const (
	SourceLive    Source = "live"
	SourceCamera  Source = "camera"
	SourceGallery Source = "gallery"
)

// Artifact is one finalized, encoded still image.
type Artifact struct {
	ID          string
	Data        []byte
	ContentType string
	// Locator is a short-lived address the UI can display the image from.
	Locator    string
	Path       string
	Width      int
	Height     int
	Facing     FacingMode
	Source     Source
	CapturedAt time.Time
}

func (a *Artifact) Empty() bool {
	return a == nil || (len(a.Data) == 0 && a.Path == "")
}

// Encoder compresses a frame into a still image.
type Encoder interface {
	Encode(ctx context.Context, frame image.Image, quality int) ([]byte, error)
	ContentType() string
}

type JPEGEncoder struct{}

func (JPEGEncoder) Encode(ctx context.Context, frame image.Image, quality int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b := frame.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("frame has no pixels")
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (JPEGEncoder) ContentType() string { return "image/jpeg" }

// Locators hands out display locators for encoded stills and revokes them once
// the still is discarded.
type Locators interface {
	Register(id, contentType string, data []byte) string
	Revoke(locator string)
}

// MemoryLocators keeps registered stills in memory under "mem://<id>".
type MemoryLocators struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryLocators() *MemoryLocators {
	return &MemoryLocators{blobs: make(map[string][]byte)}
}

func (m *MemoryLocators) Register(id, contentType string, data []byte) string {
	locator := "mem://" + id
	m.mu.Lock()
	m.blobs[locator] = data
	m.mu.Unlock()
	return locator
}

func (m *MemoryLocators) Revoke(locator string) {
	m.mu.Lock()
	delete(m.blobs, locator)
	m.mu.Unlock()
}

func (m *MemoryLocators) Lookup(locator string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.blobs[locator]
	return data, ok
}

func (m *MemoryLocators) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.blobs)
}

func newArtifactID() string {
	return uuid.New().String()
}

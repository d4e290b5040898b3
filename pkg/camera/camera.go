// pkg/camera/camera.go
package camera

import (
	"context"
	"fmt"
	"image"
	"strconv"
	"strings"
)

// FacingMode selects which physical camera to use.
type FacingMode string

const (
	FacingFront FacingMode = "user"
	FacingBack  FacingMode = "environment"
)

func (f FacingMode) Toggle() FacingMode {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

func (f FacingMode) Valid() bool {
	return f == FacingFront || f == FacingBack
}

func ParseFacingMode(s string) (FacingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "user", "front":
		return FacingFront, nil
	case "environment", "back", "":
		return FacingBack, nil
	}
	return "", fmt.Errorf("invalid facing mode: %q", s)
}

// Resolution is advisory; the host may substitute the nearest supported mode.
type Resolution struct {
	Width  int
	Height int
}

var DefaultResolution = Resolution{Width: 1280, Height: 720}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q, want WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil || width <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution width in %q", s)
	}
	height, err := strconv.Atoi(h)
	if err != nil || height <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution height in %q", s)
	}
	return Resolution{Width: width, Height: height}, nil
}

type DeviceType int

const (
	USBCamera DeviceType = iota
	BuiltInCamera
	VirtualCamera
)

type Device struct {
	ID          string
	Name        string
	IsAvailable bool
	DeviceType  DeviceType
}

// Stream is an exclusively owned live video stream. Whoever acquired it must Stop it.
type Stream interface {
	Facing() FacingMode
	// Frames delivers decoded frames and is closed once the stream stops.
	Frames() <-chan image.Image
	// Stop releases the device. Calling it more than once is a no-op.
	Stop() error
}

// Acquirer obtains camera streams from the host platform.
type Acquirer interface {
	Acquire(ctx context.Context, facing FacingMode, res Resolution) (Stream, error)
}

// SupportChecker is implemented by acquirers that can tell up front whether live capture
// is possible at all on this host.
type SupportChecker interface {
	Supported() bool
}

// Supported reports whether a live stream can be attempted with a.
func Supported(a Acquirer) bool {
	if a == nil {
		return false
	}
	if p, ok := a.(SupportChecker); ok {
		return p.Supported()
	}
	return true
}

// FrameSink receives every frame presented on a bound surface.
type FrameSink interface {
	Present(frame image.Image)
}

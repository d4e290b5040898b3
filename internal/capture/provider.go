package capture

import (
	"context"

	"github.com/AlverezYari/reviewgreen/internal/bridge"
	"github.com/AlverezYari/reviewgreen/pkg/camera"
)

// Result of a provider attempt: a live session for the user to drive, or a
// finished artifact.
type Result struct {
	Session  *camera.Session
	Artifact *camera.Artifact
}

// Provider is one host capability for taking a photo.
type Provider interface {
	Name() string
	Supported() bool
	TakePhoto(ctx context.Context) (Result, error)
}

// StreamProvider opens an in-process live capture session.
type StreamProvider struct {
	opts   camera.Options
	facing camera.FacingMode
}

func NewStreamProvider(opts camera.Options, facing camera.FacingMode) *StreamProvider {
	if !facing.Valid() {
		facing = camera.FacingBack
	}
	return &StreamProvider{opts: opts, facing: facing}
}

func (p *StreamProvider) Name() string { return "live stream" }

func (p *StreamProvider) Supported() bool {
	return camera.Supported(p.opts.Acquirer)
}

func (p *StreamProvider) TakePhoto(ctx context.Context) (Result, error) {
	s := camera.NewSession(p.opts)
	if err := s.Open(ctx, p.facing); err != nil {
		s.Close()
		return Result{}, err
	}
	return Result{Session: s}, nil
}

// BridgeProvider hands capture to the native bridge.
type BridgeProvider struct {
	adapter *bridge.Adapter
}

func NewBridgeProvider(adapter *bridge.Adapter) *BridgeProvider {
	return &BridgeProvider{adapter: adapter}
}

func (p *BridgeProvider) Name() string { return "native bridge" }

func (p *BridgeProvider) Supported() bool { return p.adapter != nil }

func (p *BridgeProvider) TakePhoto(ctx context.Context) (Result, error) {
	a, err := p.adapter.CapturePhoto(ctx)
	if err != nil {
		return Result{}, err
	}
	return Result{Artifact: a}, nil
}

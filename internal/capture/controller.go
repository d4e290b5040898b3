// Package capture orchestrates taking a photo: live session first, native
// bridge as fallback, and handing the confirmed still to the share submitter.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AlverezYari/reviewgreen/internal/bridge"
	"github.com/AlverezYari/reviewgreen/internal/logging"
	"github.com/AlverezYari/reviewgreen/pkg/camera"
)

const (
	msgCameraUnavailable = "Unable to access camera. Please check permissions and try again."
	msgGalleryFailed     = "Unable to access photo gallery."
	msgHoldSteady        = "Camera is still starting. Hold steady and try again."
	msgShareFailed       = "Could not share your creation. Please try again."
)

// Submitter receives confirmed artifacts. Ownership passes to it on success.
type Submitter interface {
	Submit(ctx context.Context, a *camera.Artifact) error
}

type Config struct {
	// Providers in order of preference. Unsupported ones are dropped at start.
	Providers []Provider
	Gallery   *bridge.Adapter
	Submitter Submitter
	Notifier  Notifier
	// Locators revokes display locators of discarded stills.
	Locators camera.Locators
}

// Controller turns user actions into capture operations. Every failure is
// reported through the Notifier; no method returns an error.
type Controller struct {
	providers []Provider
	gallery   *bridge.Adapter
	submitter Submitter
	notifier  Notifier
	locators  camera.Locators

	mu      sync.Mutex
	busy    bool
	cancel  context.CancelFunc
	session *camera.Session
	pending *camera.Artifact
}

func NewController(cfg Config) *Controller {
	c := &Controller{
		gallery:   cfg.Gallery,
		submitter: cfg.Submitter,
		notifier:  cfg.Notifier,
		locators:  cfg.Locators,
	}
	for _, p := range cfg.Providers {
		if p == nil {
			continue
		}
		if p.Supported() {
			c.providers = append(c.providers, p)
			logging.Infof("capture: %s available", p.Name())
		} else {
			logging.Infof("capture: %s not supported on this host", p.Name())
		}
	}
	return c
}

// Busy reports whether an action is in flight; the UI hides its affordances meanwhile.
func (c *Controller) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Controller) Live() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session != nil
}

func (c *Controller) LivePhase() camera.Phase {
	s := c.liveSession()
	if s == nil {
		return camera.PhaseIdle
	}
	return s.Phase()
}

func (c *Controller) LiveFacing() camera.FacingMode {
	s := c.liveSession()
	if s == nil {
		return ""
	}
	return s.Facing()
}

// LiveReady reports whether the capture action may be offered.
func (c *Controller) LiveReady() bool {
	s := c.liveSession()
	return s != nil && !c.Busy() && s.Ready()
}

// LiveLost reports a live session whose camera stopped delivering frames.
func (c *Controller) LiveLost() bool {
	s := c.liveSession()
	return s != nil && s.SourceEnded()
}

// LiveArtifact is the still awaiting "use photo" or "retake".
func (c *Controller) LiveArtifact() *camera.Artifact {
	s := c.liveSession()
	if s == nil {
		return nil
	}
	return s.Artifact()
}

// Pending is the artifact waiting to be shared or discarded.
func (c *Controller) Pending() *camera.Artifact {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// TakePhoto tries each provider in order. Only an unavailable camera moves on
// to the next provider; a cancelled attempt ends silently.
func (c *Controller) TakePhoto(ctx context.Context) {
	c.mu.Lock()
	idle := c.session == nil && c.pending == nil
	c.mu.Unlock()
	if !idle {
		return
	}

	ctx, ok := c.begin(ctx)
	if !ok {
		return
	}
	defer c.end()

	if len(c.providers) == 0 {
		c.notify(LevelError, KindCameraUnavailable, msgCameraUnavailable)
		return
	}

	var lastErr error
	for _, p := range c.providers {
		res, err := p.TakePhoto(ctx)
		if err == nil {
			c.accept(ctx, p.Name(), res)
			return
		}
		if cancelled(ctx, err) {
			logging.Debugf("capture: %s attempt cancelled", p.Name())
			return
		}
		lastErr = err
		if !errors.Is(err, camera.ErrCameraUnavailable) {
			break
		}
		logging.Warnf("capture: %s failed, trying next provider: %v", p.Name(), err)
	}

	logging.Errorf("capture: unable to take photo: %v", lastErr)
	c.notify(LevelError, KindCameraUnavailable, msgCameraUnavailable)
}

func (c *Controller) accept(ctx context.Context, source string, res Result) {
	c.mu.Lock()
	closed := ctx.Err() != nil
	if !closed {
		if res.Session != nil {
			c.session = res.Session
		} else {
			c.pending = res.Artifact
		}
	}
	c.mu.Unlock()

	if closed {
		if res.Session != nil {
			res.Session.Close()
		}
		c.revoke(res.Artifact)
		return
	}

	if res.Session != nil {
		c.notify(LevelSuccess, KindStatus, "Camera ready!")
		return
	}
	logging.Infof("capture: photo received from %s", source)
	c.notify(LevelSuccess, KindStatus, "Photo captured successfully!")
}

// CaptureLive takes a still from the live session.
func (c *Controller) CaptureLive(ctx context.Context) {
	s := c.liveSession()
	if s == nil {
		return
	}
	ctx, ok := c.begin(ctx)
	if !ok {
		return
	}
	defer c.end()

	_, err := s.Capture(ctx)
	switch {
	case err == nil:
		c.notify(LevelSuccess, KindStatus, "Photo captured!")
	case errors.Is(err, camera.ErrEncodingFailed):
		logging.Warnf("capture: %v", err)
		c.notify(LevelInfo, KindEncoding, msgHoldSteady)
	case errors.Is(err, camera.ErrCameraUnavailable):
		logging.Errorf("capture: live camera lost: %v", err)
		c.dropSession(s)
		c.notify(LevelError, KindCameraUnavailable, msgCameraUnavailable)
	case cancelled(ctx, err):
	default:
		logging.Debugf("capture: capture ignored: %v", err)
	}
}

// SwitchFacing flips between front and back cameras.
func (c *Controller) SwitchFacing(ctx context.Context) {
	c.restartLive(ctx, (*camera.Session).SwitchFacing)
}

// RetakeLive discards the captured still and goes back to the live feed.
func (c *Controller) RetakeLive(ctx context.Context) {
	c.restartLive(ctx, (*camera.Session).Retake)
}

func (c *Controller) restartLive(ctx context.Context, op func(*camera.Session, context.Context) error) {
	s := c.liveSession()
	if s == nil {
		return
	}
	ctx, ok := c.begin(ctx)
	if !ok {
		return
	}
	defer c.end()

	err := op(s, ctx)
	switch {
	case err == nil:
	case cancelled(ctx, err):
	case errors.Is(err, camera.ErrCameraUnavailable):
		logging.Errorf("capture: reacquire failed: %v", err)
		c.dropSession(s)
		c.notify(LevelError, KindCameraUnavailable, msgCameraUnavailable)
	default:
		logging.Debugf("capture: request ignored: %v", err)
	}
}

// UsePhoto accepts the live still; it becomes the pending artifact.
func (c *Controller) UsePhoto() {
	s := c.liveSession()
	if s == nil || c.Busy() {
		return
	}
	a, err := s.Confirm()
	if err != nil {
		logging.Debugf("capture: use photo ignored: %v", err)
		return
	}
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.pending = a
	c.mu.Unlock()
}

// CloseLive dismisses the camera, cancelling anything in flight.
func (c *Controller) CloseLive() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	s := c.session
	c.session = nil
	c.mu.Unlock()

	if s != nil {
		s.Close()
	}
}

// SelectFromGallery asks the native bridge for a library photo. Galleries are
// not streams, so no live session is attempted.
func (c *Controller) SelectFromGallery(ctx context.Context) {
	c.mu.Lock()
	idle := c.session == nil && c.pending == nil
	c.mu.Unlock()
	if !idle {
		return
	}
	if c.gallery == nil {
		c.notify(LevelError, KindBridge, msgGalleryFailed)
		return
	}

	ctx, ok := c.begin(ctx)
	if !ok {
		return
	}
	defer c.end()

	a, err := c.gallery.PickFromGallery(ctx)
	if err != nil {
		if cancelled(ctx, err) {
			return
		}
		logging.Errorf("capture: gallery failed: %v", err)
		c.notify(LevelError, KindBridge, msgGalleryFailed)
		return
	}
	c.accept(ctx, "photo gallery", Result{Artifact: a})
}

// Share submits the pending artifact to the community.
func (c *Controller) Share(ctx context.Context) {
	if c.Pending() == nil {
		return
	}
	ctx, ok := c.begin(ctx)
	if !ok {
		return
	}
	defer c.end()

	a := c.Pending()
	if a == nil {
		return
	}
	if c.submitter == nil {
		c.notify(LevelError, KindShare, msgShareFailed)
		return
	}
	if err := c.submitter.Submit(ctx, a); err != nil {
		logging.Errorf("capture: share failed: %v", err)
		c.notify(LevelError, KindShare, msgShareFailed)
		return
	}

	c.mu.Lock()
	if c.pending == a {
		c.pending = nil
	}
	c.mu.Unlock()
	c.revoke(a)
	c.notify(LevelSuccess, KindStatus, "Your creation has been shared with the community!")
}

// Discard drops the pending artifact.
func (c *Controller) Discard() {
	c.mu.Lock()
	a := c.pending
	c.pending = nil
	c.mu.Unlock()
	c.revoke(a)
}

// Close tears everything down; it is used on every exit path of the capture UI.
func (c *Controller) Close() {
	c.CloseLive()
	c.Discard()
}

func (c *Controller) begin(parent context.Context) (context.Context, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return nil, false
	}
	ctx, cancel := context.WithCancel(parent)
	c.busy = true
	c.cancel = cancel
	return ctx, true
}

func (c *Controller) end() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	c.cancel = nil
	c.busy = false
}

func (c *Controller) liveSession() *camera.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Controller) dropSession(s *camera.Session) {
	c.mu.Lock()
	if c.session == s {
		c.session = nil
	}
	c.mu.Unlock()
	s.Close()
}

func (c *Controller) revoke(a *camera.Artifact) {
	if a == nil || c.locators == nil || a.Locator == "" {
		return
	}
	c.locators.Revoke(a.Locator)
}

func (c *Controller) notify(level Level, kind Kind, message string) {
	if c.notifier == nil {
		return
	}
	c.notifier.Notify(Notification{Level: level, Kind: kind, Message: message, Time: time.Now()})
}

func cancelled(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, camera.ErrUserCancelled) ||
		errors.Is(err, camera.ErrSessionClosed)
}

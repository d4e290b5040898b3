package bridge

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/AlverezYari/reviewgreen/internal/logging"
	"github.com/AlverezYari/reviewgreen/pkg/camera"
)

func init() {
	logging.SetOutput(io.Discard)
}

func shell(script string) []string {
	return []string{"sh", "-c", script}
}

func TestCommandBridgeReturnsPath(t *testing.T) {
	b := NewCommandBridge(shell(`echo "/tmp/photo-$REVIEWGREEN_PHOTO_QUALITY-$REVIEWGREEN_PHOTO_SOURCE.jpg"`), nil)

	photo, err := b.GetPhoto(context.Background(), DefaultOptions(SourceCamera))
	if err != nil {
		t.Fatalf("GetPhoto() failed: %v", err)
	}
	if photo.Path != "/tmp/photo-90-camera.jpg" {
		t.Fatalf("GetPhoto() path = %q", photo.Path)
	}
}

func TestCommandBridgeCancellation(t *testing.T) {
	b := NewCommandBridge(shell("exit 1"), nil)
	if _, err := b.GetPhoto(context.Background(), DefaultOptions(SourceCamera)); !errors.Is(err, camera.ErrUserCancelled) {
		t.Fatalf("GetPhoto() error = %v, want ErrUserCancelled", err)
	}
}

func TestCommandBridgeFailures(t *testing.T) {
	tests := map[string][]string{
		"non-zero exit": shell("echo boom >&2; exit 3"),
		"empty output":  shell("exit 0"),
		"missing tool":  {"reviewgreen-helper-that-does-not-exist"},
		"unconfigured":  nil,
	}
	for name, argv := range tests {
		t.Run(name, func(t *testing.T) {
			b := NewCommandBridge(argv, nil)
			_, err := b.GetPhoto(context.Background(), DefaultOptions(SourceCamera))
			if !errors.Is(err, camera.ErrBridgeFailure) {
				t.Fatalf("GetPhoto() error = %v, want ErrBridgeFailure", err)
			}
		})
	}
}

type stubBridge struct {
	photo Photo
	err   error
	opts  []PhotoOptions
}

func (s *stubBridge) GetPhoto(ctx context.Context, opts PhotoOptions) (Photo, error) {
	s.opts = append(s.opts, opts)
	return s.photo, s.err
}

func TestAdapterBuildsArtifacts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chair.png")
	if err := os.WriteFile(path, []byte("png"), 0644); err != nil {
		t.Fatalf("failed to write photo: %v", err)
	}
	stub := &stubBridge{photo: Photo{Path: path}}
	adapter := NewAdapter(stub)

	a, err := adapter.PickFromGallery(context.Background())
	if err != nil {
		t.Fatalf("PickFromGallery() failed: %v", err)
	}
	if a.Source != camera.SourceGallery || a.Path != path || a.ContentType != "image/png" {
		t.Fatalf("artifact = %+v", a)
	}
	if !strings.HasPrefix(a.Locator, "file://") || a.ID == "" {
		t.Fatalf("artifact locator/id = %q/%q", a.Locator, a.ID)
	}

	if _, err := adapter.CapturePhoto(context.Background()); err != nil {
		t.Fatalf("CapturePhoto() failed: %v", err)
	}
	if len(stub.opts) != 2 || stub.opts[0].Source != SourcePhotos || stub.opts[1].Source != SourceCamera {
		t.Fatalf("bridge options = %+v", stub.opts)
	}
	for _, o := range stub.opts {
		if o.Quality != 90 || !o.AllowEditing || o.ResultType != "uri" {
			t.Fatalf("bridge options not fixed: %+v", o)
		}
	}
}

func TestAdapterErrorClasses(t *testing.T) {
	adapter := NewAdapter(&stubBridge{err: camera.ErrUserCancelled})
	if _, err := adapter.CapturePhoto(context.Background()); !errors.Is(err, camera.ErrUserCancelled) {
		t.Fatalf("cancel error = %v", err)
	}

	adapter = NewAdapter(&stubBridge{err: errors.New("plugin rejected")})
	if _, err := adapter.CapturePhoto(context.Background()); !errors.Is(err, camera.ErrBridgeFailure) {
		t.Fatalf("plain error not classed as bridge failure: %v", err)
	}

	adapter = NewAdapter(&stubBridge{})
	if _, err := adapter.PickFromGallery(context.Background()); !errors.Is(err, camera.ErrBridgeFailure) {
		t.Fatalf("empty photo not classed as bridge failure: %v", err)
	}
}

// Package bridge delegates photo capture to a host helper when no live stream
// can be opened in-process. The host owns the camera UI; we only get a path back.
package bridge

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AlverezYari/reviewgreen/internal/logging"
	"github.com/AlverezYari/reviewgreen/pkg/camera"
)

type PhotoSource string

const (
	SourceCamera PhotoSource = "camera"
	SourcePhotos PhotoSource = "photos"
)

type PhotoOptions struct {
	Quality      int
	AllowEditing bool
	ResultType   string
	Source       PhotoSource
}

// DefaultOptions are the options the capture controller uses unless configured otherwise.
func DefaultOptions(source PhotoSource) PhotoOptions {
	return PhotoOptions{
		Quality:      camera.DefaultQuality,
		AllowEditing: true,
		ResultType:   "uri",
		Source:       source,
	}
}

type Photo struct {
	Path string
}

// Bridge is the native getPhoto capability.
type Bridge interface {
	GetPhoto(ctx context.Context, opts PhotoOptions) (Photo, error)
}

// CommandBridge runs a host helper per source. Options are passed in
// REVIEWGREEN_PHOTO_* variables and the helper prints the resulting path.
// Exit status 1 with no output means the user dismissed the helper.
type CommandBridge struct {
	Commands map[PhotoSource][]string
}

func NewCommandBridge(cameraCmd, galleryCmd []string) *CommandBridge {
	return &CommandBridge{Commands: map[PhotoSource][]string{
		SourceCamera: cameraCmd,
		SourcePhotos: galleryCmd,
	}}
}

func (b *CommandBridge) GetPhoto(ctx context.Context, opts PhotoOptions) (Photo, error) {
	argv := b.Commands[opts.Source]
	if len(argv) == 0 {
		return Photo{}, fmt.Errorf("%w: no helper configured for %s", camera.ErrBridgeFailure, opts.Source)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(),
		"REVIEWGREEN_PHOTO_QUALITY="+strconv.Itoa(opts.Quality),
		"REVIEWGREEN_PHOTO_ALLOW_EDITING="+strconv.FormatBool(opts.AllowEditing),
		"REVIEWGREEN_PHOTO_RESULT_TYPE="+opts.ResultType,
		"REVIEWGREEN_PHOTO_SOURCE="+string(opts.Source),
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	path := firstLine(out)

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 && path == "" && ctx.Err() == nil {
			return Photo{}, camera.ErrUserCancelled
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return Photo{}, fmt.Errorf("%w: %s: %v: %s", camera.ErrBridgeFailure, argv[0], err, msg)
		}
		return Photo{}, fmt.Errorf("%w: %s: %v", camera.ErrBridgeFailure, argv[0], err)
	}
	if path == "" {
		return Photo{}, fmt.Errorf("%w: %s returned no photo", camera.ErrBridgeFailure, argv[0])
	}
	return Photo{Path: path}, nil
}

func firstLine(out []byte) string {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	if scanner.Scan() {
		return strings.TrimSpace(scanner.Text())
	}
	return ""
}

// Adapter is the fallback capture path. It has no session state: every call is
// one request/response with the host.
type Adapter struct {
	bridge Bridge
	// Options sent with every request; Source is set per call.
	Options PhotoOptions
}

func NewAdapter(b Bridge) *Adapter {
	return &Adapter{bridge: b, Options: DefaultOptions("")}
}

func (a *Adapter) CapturePhoto(ctx context.Context) (*camera.Artifact, error) {
	return a.getPhoto(ctx, SourceCamera)
}

func (a *Adapter) PickFromGallery(ctx context.Context) (*camera.Artifact, error) {
	return a.getPhoto(ctx, SourcePhotos)
}

func (a *Adapter) getPhoto(ctx context.Context, source PhotoSource) (*camera.Artifact, error) {
	opts := a.Options
	opts.Source = source
	photo, err := a.bridge.GetPhoto(ctx, opts)
	if err != nil {
		if errors.Is(err, camera.ErrUserCancelled) {
			logging.Debugf("bridge: %s request cancelled by user", source)
			return nil, camera.ErrUserCancelled
		}
		if !errors.Is(err, camera.ErrBridgeFailure) {
			err = fmt.Errorf("%w: %v", camera.ErrBridgeFailure, err)
		}
		return nil, err
	}
	if photo.Path == "" {
		return nil, fmt.Errorf("%w: bridge returned no photo", camera.ErrBridgeFailure)
	}

	abs, err := filepath.Abs(photo.Path)
	if err != nil {
		abs = photo.Path
	}
	artifactSource := camera.SourceCamera
	if source == SourcePhotos {
		artifactSource = camera.SourceGallery
	}

	logging.Infof("bridge: received %s photo %s", source, abs)
	return &camera.Artifact{
		ID:          uuid.New().String(),
		Path:        abs,
		Locator:     (&url.URL{Scheme: "file", Path: abs}).String(),
		ContentType: contentType(abs),
		Source:      artifactSource,
		CapturedAt:  time.Now(),
	}, nil
}

func contentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	default:
		return "image/jpeg"
	}
}

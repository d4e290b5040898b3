// Package share publishes confirmed photos to the local community feed.
package share

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nfnt/resize"

	"github.com/AlverezYari/reviewgreen/internal/account"
	"github.com/AlverezYari/reviewgreen/internal/logging"
	"github.com/AlverezYari/reviewgreen/internal/storage"
	"github.com/AlverezYari/reviewgreen/pkg/camera"
)

const (
	thumbSize    = 300
	thumbQuality = 85
)

var ErrEmptyArtifact = errors.New("artifact has no image data")

// Store records published shares.
type Store interface {
	SaveShare(share *storage.Share) error
}

// Submitter copies a confirmed photo into the share directory, renders its
// thumbnail and records it under the signed-in author.
type Submitter struct {
	dir   string
	store Store
	users *account.Context
}

func NewSubmitter(dir string, store Store, users *account.Context) *Submitter {
	return &Submitter{dir: dir, store: store, users: users}
}

func (s *Submitter) Submit(ctx context.Context, a *camera.Artifact) error {
	if a.Empty() {
		return ErrEmptyArtifact
	}
	user, ok := s.users.User()
	if !ok {
		return account.ErrSignedOut
	}

	data := a.Data
	if len(data) == 0 {
		raw, err := os.ReadFile(a.Path)
		if err != nil {
			return fmt.Errorf("failed to read photo: %w", err)
		}
		data = raw
	}
	if len(data) == 0 {
		return ErrEmptyArtifact
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to decode photo: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create share directory: %w", err)
	}

	id := uuid.New().String()
	filePath := filepath.Join(s.dir, id+extension(a.ContentType))
	thumbPath := filepath.Join(s.dir, id+"_thumb.jpg")

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write photo: %w", err)
	}

	thumb := resize.Thumbnail(thumbSize, thumbSize, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: thumbQuality}); err != nil {
		os.Remove(filePath)
		return fmt.Errorf("failed to encode thumbnail: %w", err)
	}
	if err := os.WriteFile(thumbPath, buf.Bytes(), 0644); err != nil {
		os.Remove(filePath)
		return fmt.Errorf("failed to write thumbnail: %w", err)
	}

	bounds := img.Bounds()
	share := &storage.Share{
		ID:          id,
		AuthorName:  user.Name,
		AuthorEmail: user.Email,
		FilePath:    filePath,
		ThumbPath:   thumbPath,
		ContentType: a.ContentType,
		Width:       bounds.Dx(),
		Height:      bounds.Dy(),
		Source:      string(a.Source),
		CreatedAt:   time.Now(),
	}
	if err := s.store.SaveShare(share); err != nil {
		os.Remove(filePath)
		os.Remove(thumbPath)
		return fmt.Errorf("failed to record share: %w", err)
	}

	logging.Infof("share: %s shared %s photo %s", user.Email, a.Source, id)
	return nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	default:
		return ".jpg"
	}
}

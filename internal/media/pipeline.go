// Package media turns uploaded images into stored, resized variants.
package media

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/underpines/pines/internal/apperr"
	"github.com/underpines/pines/internal/models"
	"github.com/underpines/pines/pkg/logging"
)

// Upload bounds and variant sizes
const (
	MaxUploadBytes = 10 << 20
	MediumEdge     = 1080
	SmallEdge      = 320
	JPEGQuality    = 85

	keyPrefix = "media/"
)

type variant struct {
	name string
	edge int
}

var variants = []variant{
	{name: "medium", edge: MediumEdge},
	{name: "small", edge: SmallEdge},
}

// Pipeline decodes, resizes and stores images
type Pipeline struct {
	store  ObjectStore
	logger *zap.Logger
}

// NewPipeline creates a media pipeline on store
func NewPipeline(store ObjectStore) *Pipeline {
	return &Pipeline{store: store, logger: logging.WithComponent("media")}
}

// ObjectKey returns the storage key of one variant of an upload
func ObjectKey(ownerID, uploadID, name string) string {
	return path.Join("media", ownerID, uploadID, name)
}

// UploadImage stores the original plus medium and small JPEG variants under
// media/<owner>/<upload>/ and returns the attachment describing them.
func (p *Pipeline) UploadImage(ctx context.Context, ownerID, filename string, data []byte) (*models.Media, error) {
	if len(data) == 0 {
		return nil, apperr.Validation("invalid_image", "file is empty")
	}
	if len(data) > MaxUploadBytes {
		return nil, apperr.Validation("file_too_large", "images are limited to 10 MB")
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, apperr.Validation("invalid_image", "file is not a supported image")
	}
	bounds := img.Bounds()

	uploadID := uuid.NewString()
	originalKey := ObjectKey(ownerID, uploadID, "original")
	if err := p.store.Put(ctx, originalKey, bytes.NewReader(data), int64(len(data)), http.DetectContentType(data)); err != nil {
		return nil, apperr.Dependency("store original image", err)
	}

	urls := make(map[string]string, len(variants))
	for _, v := range variants {
		buf, err := encodeVariant(img, v.edge)
		if err != nil {
			return nil, apperr.Dependency("encode "+v.name, err)
		}
		key := ObjectKey(ownerID, uploadID, v.name)
		if err := p.store.Put(ctx, key, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "image/jpeg"); err != nil {
			return nil, apperr.Dependency("store "+v.name+" image", err)
		}
		urls[v.name] = p.store.URL(key)
	}

	p.logger.Info("Image uploaded",
		zap.String("owner_id", ownerID),
		zap.String("upload_id", uploadID),
		zap.String("filename", filename),
		zap.Int("bytes", len(data)))

	return &models.Media{
		Type:      models.MediaTypeImage,
		URL:       p.store.URL(originalKey),
		MediumURL: urls["medium"],
		SmallURL:  urls["small"],
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Bytes:     int64(len(data)),
	}, nil
}

// encodeVariant fits img inside an edge x edge box, never upscaling, and encodes it as JPEG
func encodeVariant(img image.Image, edge int) (*bytes.Buffer, error) {
	b := img.Bounds()
	out := img
	if b.Dx() > edge || b.Dy() > edge {
		out = imaging.Fit(img, edge, edge, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return &buf, nil
}

// SignedURL returns a time-limited URL for a media key
func (p *Pipeline) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	clean := path.Clean(key)
	if !strings.HasPrefix(clean, keyPrefix) || strings.Contains(clean, "..") {
		return "", apperr.Validation("invalid_key", "key is not a media object")
	}
	u, err := p.store.SignedURL(ctx, clean, ttl)
	if err != nil {
		return "", apperr.Dependency("sign media url", err)
	}
	return u, nil
}

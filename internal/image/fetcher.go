package image

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rs/zerolog"
	"github.com/sykelle/myanimelist-bot/internal/domain"
)

// Publishing envelope: covers smaller than the floor are upscaled so both
// minimums are met; covers larger than the ceiling are fit within it.
const (
	minWidth  = 720
	minHeight = 720
	maxWidth  = 1920
	maxHeight = 1080

	jpegQuality     = 98
	downloadTimeout = 30 * time.Second
)

// Fetcher downloads cover images and normalizes them for upload. Every
// failure is a non-error outcome: the cycle publishes text-only instead.
type Fetcher struct {
	log    zerolog.Logger
	client *http.Client
	dir    string
}

var _ domain.ImageFetcher = (*Fetcher)(nil)

// NewFetcher creates a fetcher that stages normalized images under dir.
func NewFetcher(log zerolog.Logger, dir string) *Fetcher {
	return &Fetcher{
		log:    log.With().Str("module", "image").Logger(),
		client: &http.Client{Timeout: downloadTimeout},
		dir:    dir,
	}
}

// Acquire downloads and normalizes the cover image for c. It returns
// (nil, nil) when c has no image URL or the download or processing fails;
// the caller proceeds without media. The returned asset's file is keyed by
// category and id so overlapping cycles would not collide.
func (f *Fetcher) Acquire(ctx context.Context, c domain.Completion) (*domain.MediaAsset, error) {
	if c.ImageURL == "" {
		f.log.Warn().Str("title", c.Title).Str("category", string(c.Category)).Msg("no image url")
		return nil, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ImageURL, nil)
	if err != nil {
		f.log.Error().Err(err).Str("url", c.ImageURL).Msg("failed to create image request")
		return nil, nil
	}

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Error().Err(err).Str("url", c.ImageURL).Msg("failed to download image")
		return nil, nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		f.log.Error().Int("status", resp.StatusCode).Str("url", c.ImageURL).Msg("failed to download image")
		return nil, nil
	}

	img, err := imaging.Decode(resp.Body)
	if err != nil {
		f.log.Error().Err(err).Str("title", c.Title).Msg("failed to decode image")
		return nil, nil
	}

	img = normalize(img)

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		f.log.Error().Err(err).Str("dir", f.dir).Msg("failed to create temp dir")
		return nil, nil
	}

	path := filepath.Join(f.dir, fmt.Sprintf("%s_%d.jpg", c.Category, c.MalID))
	if err := imaging.Save(img, path, imaging.JPEGQuality(jpegQuality)); err != nil {
		f.log.Error().Err(err).Str("path", path).Msg("failed to save image")
		return nil, nil
	}

	b := img.Bounds()
	f.log.Info().Str("path", path).Int("width", b.Dx()).Int("height", b.Dy()).Msg("image saved")
	return &domain.MediaAsset{Path: path}, nil
}

// normalize flattens any transparency onto white and scales the image into
// the publishing envelope with Lanczos resampling.
func normalize(img image.Image) image.Image {
	b := img.Bounds()
	flat := imaging.New(b.Dx(), b.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	w, h := b.Dx(), b.Dy()
	switch {
	case w < minWidth || h < minHeight:
		// Upscale by the larger of the two required ratios so both
		// minimums are met while keeping the aspect ratio.
		scale := math.Max(float64(minWidth)/float64(w), float64(minHeight)/float64(h))
		nw := int(math.Round(float64(w) * scale))
		nh := int(math.Round(float64(h) * scale))
		return imaging.Resize(flat, nw, nh, imaging.Lanczos)
	case w > maxWidth || h > maxHeight:
		return imaging.Fit(flat, maxWidth, maxHeight, imaging.Lanczos)
	}
	return flat
}

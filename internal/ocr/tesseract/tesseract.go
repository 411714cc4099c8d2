/**
 * Tesseract OCR - local line-oriented backend
 *
 * Offline recognition of single-page images. Used when no OCR service is
 * configured, or for the one-shot CLI. Each Tesseract text line becomes
 * one line with its pixel rectangle.
 */

package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/adverant/nexus/docparse-worker/internal/geometry"
	"github.com/adverant/nexus/docparse-worker/internal/ocr"
)

// Provider recognizes images locally with gosseract.
type Provider struct {
	languages []string
}

// Config holds Tesseract configuration
type Config struct {
	Languages []string
}

var _ ocr.Provider = (*Provider)(nil)

var tesseractMimeTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/tiff": true,
	"image/bmp":  true,
	"image/webp": true,
}

// NewProvider creates a new Tesseract provider
func NewProvider(cfg *Config) *Provider {
	langs := cfg.Languages
	if len(langs) == 0 {
		langs = []string{"eng"}
	}
	return &Provider{languages: langs}
}

func (t *Provider) Name() string { return "tesseract" }

// MaxPages is 0: images are single pages, so there is nothing to chunk.
func (t *Provider) MaxPages() int { return 0 }

func (t *Provider) Supports(mimeType string) bool {
	return tesseractMimeTypes[strings.ToLower(mimeType)]
}

// Recognize runs Tesseract over the image in src and returns one page.
func (t *Provider) Recognize(ctx context.Context, src ocr.Source) (*ocr.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cfg, err := imageSize(src)
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(t.languages...); err != nil {
		return nil, fmt.Errorf("failed to set languages: %w", err)
	}
	if err := setImage(client, src); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("tesseract OCR failed: %w", err)
	}

	return &ocr.Result{
		Kind:     ocr.KindLineOriented,
		Provider: t.Name(),
		Pages: []ocr.LinePage{{
			Number: 1,
			Width:  float64(cfg.Width),
			Height: float64(cfg.Height),
			Lines:  linesFromBoxes(boxes),
		}},
	}, nil
}

// imageLoader is the part of the gosseract client that takes the image.
type imageLoader interface {
	SetImage(path string) error
	SetImageFromBytes(data []byte) error
}

// setImage hands Tesseract the file at src.Path when there is one, and the
// in-memory bytes otherwise.
func setImage(client imageLoader, src ocr.Source) error {
	if src.Path != "" {
		return client.SetImage(src.Path)
	}
	return client.SetImageFromBytes(src.Data)
}

func imageSize(src ocr.Source) (image.Config, error) {
	var r io.Reader = bytes.NewReader(src.Data)
	if src.Path != "" {
		f, err := os.Open(src.Path)
		if err != nil {
			return image.Config{}, fmt.Errorf("failed to open image: %w", err)
		}
		defer f.Close()
		r = f
	}
	cfg, _, err := image.DecodeConfig(r)
	if err != nil {
		return image.Config{}, fmt.Errorf("failed to read image dimensions: %w", err)
	}
	return cfg, nil
}

// linesFromBoxes turns text-line boxes into numbered lines. Boxes without
// text are kept so line numbers match Tesseract's order.
func linesFromBoxes(boxes []gosseract.BoundingBox) []ocr.LineItem {
	lines := make([]ocr.LineItem, 0, len(boxes))
	for i, b := range boxes {
		lines = append(lines, ocr.LineItem{
			Text: strings.TrimSpace(b.Word),
			Type: "text",
			Region: geometry.FromRect(
				float64(b.Box.Min.X), float64(b.Box.Min.Y),
				float64(b.Box.Dx()), float64(b.Box.Dy()),
			),
			Line:   i + 1,
			Column: 1,
		})
	}
	return lines
}

package compose

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/nfnt/resize"

	"github.com/kioskworks/boothd/internal/debug"
	"github.com/kioskworks/boothd/internal/template"
)

// Composer renders slot photos into a template's canvas and writes
// the result as a JPEG next to the session photos.
type Composer struct {
	outputDir string
	quality   int
}

// New creates a composer writing outputs into outputDir.
func New(outputDir string) *Composer {
	return &Composer{outputDir: outputDir, quality: 92}
}

// Compose renders the ordered slot photos into t's layout and returns
// the output path. The photo count must match the template's slots.
func (c *Composer) Compose(t *template.Template, photoPaths []string) (string, error) {
	if t == nil {
		return "", fmt.Errorf("compose: nil template")
	}
	if len(photoPaths) != len(t.Slots) {
		return "", fmt.Errorf("compose: template %s needs %d photos, got %d", t.ID, len(t.Slots), len(photoPaths))
	}

	canvas := image.NewRGBA(image.Rect(0, 0, t.CanvasWidth, t.CanvasHeight))
	bg := parseHexColor(t.Background)
	draw.Draw(canvas, canvas.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	if t.BackgroundImage != "" {
		if err := c.drawScaled(canvas, t.BackgroundImage, canvas.Bounds()); err != nil {
			return "", fmt.Errorf("compose: background: %w", err)
		}
	}

	for i, slot := range t.Slots {
		rect := image.Rect(slot.X, slot.Y, slot.X+slot.Width, slot.Y+slot.Height)
		if err := c.drawScaled(canvas, photoPaths[i], rect); err != nil {
			return "", fmt.Errorf("compose: slot %d: %w", i, err)
		}
	}

	if t.OverlayImage != "" {
		if err := c.drawScaledOver(canvas, t.OverlayImage, canvas.Bounds()); err != nil {
			return "", fmt.Errorf("compose: overlay: %w", err)
		}
	}

	if err := os.MkdirAll(c.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("compose: create output dir: %w", err)
	}
	base := strings.TrimSuffix(filepath.Base(photoPaths[0]), filepath.Ext(photoPaths[0]))
	out := filepath.Join(c.outputDir, fmt.Sprintf("%s-%s.jpg", t.ID, base))

	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("compose: create output: %w", err)
	}
	defer f.Close()
	if err := jpeg.Encode(f, canvas, &jpeg.Options{Quality: c.quality}); err != nil {
		return "", fmt.Errorf("compose: encode output: %w", err)
	}

	debug.Info("Composed %d photos into %s", len(photoPaths), out)
	return out, nil
}

// drawScaled decodes path, scales it to fill rect and draws it with
// source-over-nothing semantics (replaces the destination).
func (c *Composer) drawScaled(canvas *image.RGBA, path string, rect image.Rectangle) error {
	img, err := decode(path)
	if err != nil {
		return err
	}
	scaled := resize.Resize(uint(rect.Dx()), uint(rect.Dy()), img, resize.Lanczos3)
	draw.Draw(canvas, rect, scaled, image.Point{}, draw.Src)
	return nil
}

// drawScaledOver is like drawScaled but preserves destination pixels
// under transparent source areas (overlays are usually PNG with alpha).
func (c *Composer) drawScaledOver(canvas *image.RGBA, path string, rect image.Rectangle) error {
	img, err := decode(path)
	if err != nil {
		return err
	}
	scaled := resize.Resize(uint(rect.Dx()), uint(rect.Dy()), img, resize.Lanczos3)
	draw.Draw(canvas, rect, scaled, image.Point{}, draw.Over)
	return nil
}

func decode(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

// parseHexColor parses "#rrggbb"; anything else falls back to white.
func parseHexColor(s string) color.Color {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.White
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.White
	}
	return color.RGBA{
		R: uint8(v >> 16),
		G: uint8(v >> 8),
		B: uint8(v),
		A: 255,
	}
}

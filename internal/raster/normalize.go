// Package raster holds the pixel-level steps that surround quantization:
// decoding provider responses, trimming the attribution band and keying the
// light tone to transparency.
package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // providers may answer with JPEG despite format=png
	_ "image/png"
	"math"

	"github.com/couchcryptid/stencil-tile-etl/internal/domain"
	xdraw "golang.org/x/image/draw"
)

// DefaultCropPercent is the share of the tile height covered by the
// provider's attribution band.
const DefaultCropPercent = 20

// Decode decodes a provider response body.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode tile: %w", err)
	}
	return img, nil
}

// Normalize removes round(cropPercent% of the height) from the bottom and
// returns the largest square aligned to the top and centered horizontally.
// No resampling happens here, only a copy of the selected pixels.
func Normalize(img image.Image, cropPercent float64) (*image.NRGBA, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	crop := int(math.Round(cropPercent / 100 * float64(h)))
	size := min(w, h-crop)
	if size <= 0 {
		return nil, fmt.Errorf("normalize %dx%d: %w", w, h, domain.ErrEmptyTile)
	}
	left := (w - size) / 2

	src := image.Rect(b.Min.X+left, b.Min.Y, b.Min.X+left+size, b.Min.Y+size)
	out := image.NewNRGBA(image.Rect(0, 0, size, size))
	xdraw.Draw(out, out.Bounds(), img, src.Min, xdraw.Src)
	return out, nil
}

// Package quantize turns a normalized aerial tile into a two-tone stencil
// raster. The pre- and post-processing around binarization is shared; the
// binarization itself is one of four interchangeable strategies.
package quantize

import (
	"fmt"
	"image"
	"image/color"

	"github.com/couchcryptid/stencil-tile-etl/internal/domain"
	xdraw "golang.org/x/image/draw"
)

// edgeCropPercent is trimmed from every edge after the final resize when an
// aspect ratio is configured, hiding resampling artefacts at the border.
const edgeCropPercent = 2

// Options configures an Engine. Zero values fall back to the variant's
// Profile and the default blue-noise seed and size.
type Options struct {
	Variant       Variant
	MinResolution int
	FinalSize     int
	AspectRatio   float64 // 0 disables the aspect pre-resize and edge crop
	Seed          uint64
	NoiseSize     int
}

// Engine runs the full quantization for one variant. It holds only
// read-only state and may be shared between goroutines.
type Engine struct {
	variant   Variant
	profile   Profile
	aspect    float64
	binarizer Binarizer
}

// New builds an Engine for opts.Variant.
func New(opts Options) (*Engine, error) {
	profile, ok := profiles[opts.Variant]
	if !ok {
		return nil, fmt.Errorf("unknown quantize variant %q", opts.Variant)
	}
	if opts.MinResolution > 0 {
		profile.MinResolution = opts.MinResolution
	}
	if opts.FinalSize > 0 {
		profile.FinalSize = opts.FinalSize
	}
	if opts.AspectRatio < 0 {
		return nil, fmt.Errorf("aspect ratio must be positive, got %v", opts.AspectRatio)
	}

	e := &Engine{variant: opts.Variant, profile: profile, aspect: opts.AspectRatio}
	switch opts.Variant {
	case Ordered:
		e.binarizer = OrderedDither{}
	case Halftone:
		e.binarizer = HalftoneThreshold{}
	case BlueNoiseMix:
		seed := opts.Seed
		if seed == 0 {
			seed = DefaultSeed
		}
		e.binarizer = BlueNoiseHybrid{Noise: NewBlueNoise(seed, opts.NoiseSize)}
	case ErrorDiffusion:
		e.binarizer = FloydSteinberg{}
	}
	return e, nil
}

// Variant reports the strategy this engine runs.
func (e *Engine) Variant() Variant { return e.variant }

// Name is the variant as a plain string, used in logs, metrics and records.
func (e *Engine) Name() string { return string(e.variant) }

// KeyThreshold is the per-channel minimum the keyer treats as white for
// this variant.
func (e *Engine) KeyThreshold() uint8 { return e.profile.KeyThreshold }

// Profile returns the effective settings after overrides.
func (e *Engine) Profile() Profile { return e.profile }

// Quantize binarizes img and resizes it to the final size. The result is
// opaque and every pixel is pure black or pure white. A tile smaller than
// the resolution floor in either dimension yields *domain.LowResolutionError.
func (e *Engine) Quantize(img image.Image) (*image.NRGBA, error) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < e.profile.MinResolution || h < e.profile.MinResolution {
		return nil, &domain.LowResolutionError{Width: w, Height: h, Min: e.profile.MinResolution}
	}

	src := img
	if e.aspect > 0 {
		short := min(w, h)
		aw := int(float64(short) * e.aspect)
		if aw <= 0 {
			return nil, fmt.Errorf("aspect ratio %v: %w", e.aspect, domain.ErrEmptyTile)
		}
		scaled := image.NewNRGBA(image.Rect(0, 0, aw, short))
		xdraw.BiLinear.Scale(scaled, scaled.Bounds(), img, b, xdraw.Src, nil)
		src = scaled
	}

	bw := e.binarizer.Binarize(Luminance(src))

	size := e.profile.FinalSize
	out := image.NewNRGBA(image.Rect(0, 0, size, size))
	xdraw.NearestNeighbor.Scale(out, out.Bounds(), grayToNRGBA(bw), bw.Bounds(), xdraw.Src, nil)

	if e.aspect > 0 {
		c := size * edgeCropPercent / 100
		inner := image.Rect(c, c, size-c, size-c)
		cropped := image.NewNRGBA(image.Rect(0, 0, inner.Dx(), inner.Dy()))
		xdraw.Draw(cropped, cropped.Bounds(), out, inner.Min, xdraw.Src)
		out = cropped
	}
	return out, nil
}

// Luminance converts img to 8-bit luma with the ITU-R 601 weights.
func Luminance(img image.Image) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			l := (19595*uint32(c.R) + 38470*uint32(c.G) + 7471*uint32(c.B) + 1<<15) >> 16
			out.SetGray(x-b.Min.X, y-b.Min.Y, color.Gray{Y: uint8(l)})
		}
	}
	return out
}

func grayToNRGBA(g *image.Gray) *image.NRGBA {
	out := image.NewNRGBA(g.Bounds())
	for i, y := range g.Pix {
		j := i * 4
		out.Pix[j], out.Pix[j+1], out.Pix[j+2], out.Pix[j+3] = y, y, y, 255
	}
	return out
}

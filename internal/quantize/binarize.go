package quantize

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// Binarizer maps a luminance image to one whose pixels are all 0 or 255.
// Implementations must be deterministic and must not modify src.
type Binarizer interface {
	Binarize(src *image.Gray) *image.Gray
}

// OrderedDither thresholds each pixel against the tiled Bayer matrix.
type OrderedDither struct{}

func (OrderedDither) Binarize(src *image.Gray) *image.Gray {
	return thresholdEach(src, func(x, y int, l uint8) bool {
		return float64(l) > BayerThreshold(x, y)
	})
}

// HalftoneThreshold doubles contrast around the image mean, then applies a
// single global threshold.
type HalftoneThreshold struct{}

const (
	halftoneContrast  = 2
	halftoneThreshold = 128
)

func (HalftoneThreshold) Binarize(src *image.Gray) *image.Gray {
	mean := meanLuminance(src)
	return thresholdEach(src, func(_, _ int, l uint8) bool {
		v := mean + halftoneContrast*(int(l)-mean)
		return clamp8(v) >= halftoneThreshold
	})
}

// BlueNoiseHybrid offsets the Bayer threshold by a scaled blue-noise value.
type BlueNoiseHybrid struct {
	Noise *BlueNoise
}

const blueNoiseScale = 24

func (b BlueNoiseHybrid) Binarize(src *image.Gray) *image.Gray {
	return thresholdEach(src, func(x, y int, l uint8) bool {
		t := BayerThreshold(x, y) + b.Noise.At(x, y)/255*blueNoiseScale
		return float64(l) > t
	})
}

// FloydSteinberg diffuses quantization error onto a black and white palette.
type FloydSteinberg struct{}

var bilevel = color.Palette{color.Gray{Y: 0}, color.Gray{Y: 255}}

func (FloydSteinberg) Binarize(src *image.Gray) *image.Gray {
	r := src.Bounds()
	pal := image.NewPaletted(image.Rect(0, 0, r.Dx(), r.Dy()), bilevel)
	xdraw.FloydSteinberg.Draw(pal, pal.Bounds(), src, r.Min)

	out := image.NewGray(pal.Bounds())
	for i, idx := range pal.Pix {
		if idx == 1 {
			out.Pix[i] = 255
		}
	}
	return out
}

func thresholdEach(src *image.Gray, white func(x, y int, l uint8) bool) *image.Gray {
	r := src.Bounds()
	out := image.NewGray(image.Rect(0, 0, r.Dx(), r.Dy()))
	for y := 0; y < r.Dy(); y++ {
		for x := 0; x < r.Dx(); x++ {
			if white(x, y, src.GrayAt(r.Min.X+x, r.Min.Y+y).Y) {
				out.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	return out
}

func meanLuminance(src *image.Gray) int {
	r := src.Bounds()
	n := r.Dx() * r.Dy()
	if n == 0 {
		return 0
	}
	var sum int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			sum += int(src.GrayAt(x, y).Y)
		}
	}
	return (sum + n/2) / n
}

func clamp8(v int) int {
	return max(0, min(255, v))
}

package raster

import (
	"image"
	"image/color"
)

const (
	// ExactWhite keys only pure (255, 255, 255) pixels.
	ExactWhite uint8 = 255
	// LooseWhite keys pixels whose channels are all above 200.
	LooseWhite uint8 = 201
)

var transparentWhite = color.NRGBA{R: 255, G: 255, B: 255, A: 0}

// Key returns a copy of img where every pixel with R, G and B at or above
// minChannel becomes transparent white. All other pixels keep their colour
// and become fully opaque.
func Key(img image.Image, minChannel uint8) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			if c.R >= minChannel && c.G >= minChannel && c.B >= minChannel {
				out.SetNRGBA(x-b.Min.X, y-b.Min.Y, transparentWhite)
				continue
			}
			c.A = 255
			out.SetNRGBA(x-b.Min.X, y-b.Min.Y, c)
		}
	}
	return out
}

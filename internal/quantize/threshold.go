package quantize

import "math/rand/v2"

// DefaultSeed and DefaultNoiseSize reproduce the stock blue-noise grid.
const (
	DefaultSeed      uint64 = 42
	DefaultNoiseSize        = 64
)

// bayer4 is the 4x4 ordered-dither index matrix, indexed [y%4][x%4].
var bayer4 = [4][4]uint8{
	{0, 8, 2, 10},
	{12, 4, 14, 6},
	{3, 11, 1, 9},
	{15, 7, 13, 5},
}

// BayerThreshold returns the ordered-dither threshold at (x, y) on the
// 0..255 luminance scale.
func BayerThreshold(x, y int) float64 {
	return float64(bayer4[y%4][x%4]) / 16 * 255
}

// BlueNoise is a square grid of pseudo-random offsets in [0, 255), tiled over
// the image. It is read-only after construction and safe to share.
type BlueNoise struct {
	size   int
	values []float64
}

// NewBlueNoise builds a size x size grid. The same seed always yields the
// same grid.
func NewBlueNoise(seed uint64, size int) *BlueNoise {
	if size <= 0 {
		size = DefaultNoiseSize
	}
	rng := rand.New(rand.NewPCG(seed, seed))
	values := make([]float64, size*size)
	for i := range values {
		values[i] = rng.Float64() * 255
	}
	return &BlueNoise{size: size, values: values}
}

// Size is the grid edge length.
func (n *BlueNoise) Size() int { return n.size }

// At returns the offset for pixel (x, y), wrapping at the grid edge.
func (n *BlueNoise) At(x, y int) float64 {
	return n.values[(y%n.size)*n.size+x%n.size]
}

package quantize

import (
	"fmt"
	"strings"

	"github.com/couchcryptid/stencil-tile-etl/internal/raster"
)

// Variant names a binarization strategy.
type Variant string

const (
	Ordered        Variant = "ordered"
	Halftone       Variant = "halftone"
	BlueNoiseMix   Variant = "bluenoise"
	ErrorDiffusion Variant = "errordiffusion"
)

// Profile carries the per-variant defaults.
type Profile struct {
	MinResolution int
	FinalSize     int
	KeyThreshold  uint8
}

var profiles = map[Variant]Profile{
	Ordered:        {MinResolution: 400, FinalSize: 720, KeyThreshold: raster.ExactWhite},
	Halftone:       {MinResolution: 250, FinalSize: 960, KeyThreshold: raster.ExactWhite},
	BlueNoiseMix:   {MinResolution: 400, FinalSize: 1920, KeyThreshold: raster.ExactWhite},
	ErrorDiffusion: {MinResolution: 400, FinalSize: 800, KeyThreshold: raster.LooseWhite},
}

// Variants lists the supported variants in a stable order.
func Variants() []Variant {
	return []Variant{Ordered, Halftone, BlueNoiseMix, ErrorDiffusion}
}

// ParseVariant maps a configuration value to a Variant.
func ParseVariant(s string) (Variant, error) {
	v := Variant(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := profiles[v]; !ok {
		return "", fmt.Errorf("unknown quantize variant %q", s)
	}
	return v, nil
}

// DefaultProfile returns the defaults for v. Unknown variants return the
// zero Profile.
func DefaultProfile(v Variant) Profile {
	return profiles[v]
}

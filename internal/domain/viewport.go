package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
)

// seedBound starts inverted so the first valid sample replaces both corners.
// orb points are [lon, lat].
var seedBound = orb.Bound{
	Min: orb.Point{180, 90},
	Max: orb.Point{-180, -90},
}

// Resolve derives the tile request for an entity. defaultZoom is used for
// point-mode entities that do not carry their own zoom level.
func Resolve(e Entity, defaultZoom int) (TileRequest, error) {
	id := NormalizeID(e.ID)
	if id == "" {
		return TileRequest{}, ErrMissingID
	}

	vp := Viewport{Mode: e.Mode, Angle: NormalizeAngle(e.Angle)}
	name := id

	switch e.Mode {
	case ModeArea:
		vp.Box, _ = ResolveArea(e.Points)
	case ModePoint, ModeSweep:
		zoom := e.Zoom
		if zoom == 0 {
			zoom = defaultZoom
		}
		lat, errLat := parseCoordinate(e.CenterLat)
		lon, errLon := parseCoordinate(e.CenterLon)
		if errLat != nil || errLon != nil {
			return TileRequest{}, fmt.Errorf("entity %s: %w", id, ErrMalformedCenter)
		}
		vp.Point = ResolvePoint(lat, lon, zoom)
		if e.Mode == ModeSweep {
			name = fmt.Sprintf("%s_%d", id, zoom)
		}
	default:
		return TileRequest{}, fmt.Errorf("entity %s: unknown mode %q", id, e.Mode)
	}

	return TileRequest{EntityID: id, Name: name, Viewport: vp}, nil
}

// ResolveArea folds the sample points into a bounding box and reports how
// many samples were used. Malformed samples are skipped. With no usable
// samples the inverted seed box (90, 180, -90, -180) is returned unchanged.
func ResolveArea(points []string) (BoundingBox, int) {
	bound := seedBound
	used := 0
	for _, raw := range points {
		lat, lon, ok := parseSample(raw)
		if !ok {
			continue
		}
		bound = bound.Extend(orb.Point{lon, lat})
		used++
	}
	return BoundingBox{
		MinLat: bound.Min.Lat(),
		MinLon: bound.Min.Lon(),
		MaxLat: bound.Max.Lat(),
		MaxLon: bound.Max.Lon(),
	}, used
}

// ResolvePoint builds a point-mode viewport. The angle is carried on the
// Viewport and does not affect the center.
func ResolvePoint(lat, lon float64, zoom int) PointView {
	return PointView{CenterLat: lat, CenterLon: lon, Zoom: zoom}
}

// NormalizeAngle coerces a raw angle to whole degrees in [0, 360).
// Empty, non-numeric and non-finite values become 0.
func NormalizeAngle(raw string) int {
	v, err := parseCoordinate(raw)
	if err != nil {
		return 0
	}
	m := math.Mod(v, 360)
	if m < 0 {
		m += 360
	}
	// Rounding can land on 360 (e.g. 359.7), hence the second reduction.
	return int(math.RoundToEven(m)) % 360
}

// NormalizeID coerces float-typed numeric ids to integer strings by
// truncation ("123.0" -> "123"). Ids beyond the int64 range keep every
// digit of their float value. Non-numeric ids are trimmed and kept.
func NormalizeID(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return s
	}
	t := math.Trunc(v)
	if t == 0 {
		return "0" // drops the sign of -0
	}
	return strconv.FormatFloat(t, 'f', 0, 64)
}

// SweepZooms lists the zoom levels visited by sweep mode, inclusive.
func SweepZooms(minZoom, maxZoom int) []int {
	if maxZoom < minZoom {
		return nil
	}
	zooms := make([]int, 0, maxZoom-minZoom+1)
	for z := minZoom; z <= maxZoom; z++ {
		zooms = append(zooms, z)
	}
	return zooms
}

// parseSample splits a "lat,lon" sample. Both halves must be finite floats.
func parseSample(raw string) (lat, lon float64, ok bool) {
	if !strings.Contains(raw, ",") {
		return 0, 0, false
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	lat, errLat := parseCoordinate(parts[0])
	lon, errLon := parseCoordinate(parts[1])
	if errLat != nil || errLon != nil {
		return 0, 0, false
	}
	return lat, lon, true
}

func parseCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, strconv.ErrSyntax
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, strconv.ErrRange
	}
	return v, nil
}

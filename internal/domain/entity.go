package domain

import "time"

// Mode selects how an entity's viewport is derived.
type Mode string

const (
	// ModeArea fits the viewport to the bounding box of the sample points.
	ModeArea Mode = "area"
	// ModePoint centers the viewport on one coordinate at a zoom level.
	ModePoint Mode = "point"
	// ModeSweep is point mode repeated over a range of zoom levels; output
	// names carry the zoom as a suffix.
	ModeSweep Mode = "sweep"
)

// Entity is one row of source data. Coordinates and angle are kept as the raw
// strings read upstream so that coercion rules live in this package.
type Entity struct {
	ID        string
	Mode      Mode
	Points    []string // "lat,lon" samples, area mode only
	CenterLat string   // point and sweep modes
	CenterLon string
	Zoom      int    // 0 means the configured default
	Angle     string // degrees, may be empty or non-numeric
}

// BoundingBox is an area-mode viewport. MinLat <= MaxLat and MinLon <= MaxLon
// hold whenever at least one sample point was used; zero-area boxes are valid.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// PointView is a point-mode viewport.
type PointView struct {
	CenterLat float64
	CenterLon float64
	Zoom      int
}

// Viewport is the derived request geometry for one entity.
type Viewport struct {
	Mode  Mode
	Box   BoundingBox // set in area mode
	Point PointView   // set in point and sweep modes
	Angle int         // [0, 360)
}

// TileRequest is a resolved entity: its normalized id, the stem of the
// output file and the viewport to fetch.
type TileRequest struct {
	EntityID string
	Name     string
	Viewport Viewport
}

// StencilRecord describes a persisted stencil. It is published to the
// completion topic when one is configured.
type StencilRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Mode        Mode      `json:"mode"`
	Variant     string    `json:"variant"`
	Path        string    `json:"path"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Angle       int       `json:"angle"`
	ProcessedAt time.Time `json:"processed_at"`
}

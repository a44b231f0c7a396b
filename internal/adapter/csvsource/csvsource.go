// Package csvsource reads entity rows from the contour CSV exports. It does
// no geometry work: cells are handed to the domain as raw strings, and
// missing columns read as empty cells.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/couchcryptid/stencil-tile-etl/internal/domain"
)

// Column names used by the exports.
const (
	colUniqueID        = "unique_id"
	colAngle           = "angle"
	colCenterLatitude  = "center_latitude"
	colCenterLongitude = "center_longitude"
	colCity            = "city"
	colLat             = "lat"
	colLon             = "lon"
)

// ReadArea reads area-mode rows: unique_id, angle and one column per sample
// point, headed by its integer index ("0".."359"). Samples are returned in
// index order.
func ReadArea(r io.Reader) ([]domain.Entity, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}

	pointCols := t.indexedColumns()
	entities := make([]domain.Entity, 0, len(t.rows))
	for _, row := range t.rows {
		points := make([]string, 0, len(pointCols))
		for _, col := range pointCols {
			points = append(points, cell(row, col))
		}
		entities = append(entities, domain.Entity{
			ID:     t.get(row, colUniqueID),
			Mode:   domain.ModeArea,
			Points: points,
			Angle:  t.get(row, colAngle),
		})
	}
	return entities, nil
}

// ReadPoint reads point-mode rows: unique_id, center_latitude,
// center_longitude and angle.
func ReadPoint(r io.Reader) ([]domain.Entity, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}

	entities := make([]domain.Entity, 0, len(t.rows))
	for _, row := range t.rows {
		entities = append(entities, domain.Entity{
			ID:        t.get(row, colUniqueID),
			Mode:      domain.ModePoint,
			CenterLat: t.get(row, colCenterLatitude),
			CenterLon: t.get(row, colCenterLongitude),
			Angle:     t.get(row, colAngle),
		})
	}
	return entities, nil
}

// ReadSweep reads city, lat, lon rows, drops duplicate locations and emits
// one sweep entity per location and zoom level.
func ReadSweep(r io.Reader, zooms []int) ([]domain.Entity, error) {
	t, err := readTable(r)
	if err != nil {
		return nil, err
	}

	type location struct{ city, lat, lon string }
	seen := make(map[location]bool, len(t.rows))
	var entities []domain.Entity
	for _, row := range t.rows {
		loc := location{
			city: t.get(row, colCity),
			lat:  t.get(row, colLat),
			lon:  t.get(row, colLon),
		}
		if seen[loc] {
			continue
		}
		seen[loc] = true
		for _, z := range zooms {
			entities = append(entities, domain.Entity{
				ID:        loc.city,
				Mode:      domain.ModeSweep,
				CenterLat: loc.lat,
				CenterLon: loc.lon,
				Zoom:      z,
			})
		}
	}
	return entities, nil
}

type table struct {
	header map[string]int
	rows   [][]string
}

func readTable(r io.Reader) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	head, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("read csv header: empty input")
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	t := &table{header: make(map[string]int, len(head))}
	for i, name := range head {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if _, dup := t.header[name]; !dup {
			t.header[name] = i
		}
	}

	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv row: %w", err)
		}
		t.rows = append(t.rows, rec)
	}
	return t, nil
}

func (t *table) get(row []string, name string) string {
	i, ok := t.header[name]
	if !ok {
		return ""
	}
	return cell(row, i)
}

// indexedColumns returns the positions of columns headed by a non-negative
// integer, ordered by that integer.
func (t *table) indexedColumns() []int {
	type col struct{ n, pos int }
	var cols []col
	for name, pos := range t.header {
		n, err := strconv.Atoi(name)
		if err != nil || n < 0 {
			continue
		}
		cols = append(cols, col{n: n, pos: pos})
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].n < cols[j].n })

	out := make([]int, len(cols))
	for i, c := range cols {
		out[i] = c.pos
	}
	return out
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

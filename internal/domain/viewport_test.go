package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEntityID = "123.0"

func TestNormalizeAngle(t *testing.T) {
	cases := []struct {
		raw  string
		want int
	}{
		{"", 0},
		{"0", 0},
		{"45", 45},
		{"45.4", 45},
		{"45.6", 46},
		{"-90", 270},
		{"725.4", 5},
		{"359.7", 0},
		{"360", 0},
		{"-0.2", 0},
		{"2.5", 2}, // half to even
		{"3.5", 4},
		{"north", 0},
		{"NaN", 0},
		{"Inf", 0},
		{" 90 ", 90},
	}
	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeAngle(tc.raw))
		})
	}
}

func TestNormalizeAngle_RangeAndPeriodicity(t *testing.T) {
	for i := -1000; i <= 1000; i += 7 {
		a := float64(i) + 0.25
		got := NormalizeAngle(fmt.Sprintf("%g", a))
		assert.GreaterOrEqual(t, got, 0, "angle %g", a)
		assert.Less(t, got, 360, "angle %g", a)

		for _, k := range []int{-3, -1, 1, 2} {
			shifted := NormalizeAngle(fmt.Sprintf("%g", a+360*float64(k)))
			assert.Equal(t, got, shifted, "angle %g shifted by %d turns", a, k)
		}
	}
}

func TestNormalizeID(t *testing.T) {
	assert.Equal(t, "123", NormalizeID(testEntityID))
	assert.Equal(t, "123", NormalizeID("123"))
	assert.Equal(t, "7", NormalizeID("7.9"))
	assert.Equal(t, "-4", NormalizeID("-4.2"))
	assert.Equal(t, "1000", NormalizeID("1e3"))
	assert.Equal(t, "0", NormalizeID("-0.5"))
	assert.Equal(t, "Boston", NormalizeID(" Boston "))
	assert.Empty(t, NormalizeID("   "))
}

func TestNormalizeID_BeyondInt64(t *testing.T) {
	assert.Equal(t, "100000000000000000000", NormalizeID("1e20"))
	assert.Equal(t, "12345678901234567168", NormalizeID("12345678901234567890.0"))
	assert.Equal(t, "9223372036854775808", NormalizeID("9223372036854775808"))
	assert.Equal(t, "-100000000000000000000", NormalizeID("-1e20"))

	assert.NotEqual(t, NormalizeID("1e20"), NormalizeID("12345678901234567890.0"))
}

func TestResolveArea(t *testing.T) {
	box, used := ResolveArea([]string{"40.0,-74.0", "40.1,-74.1", "39.9,-73.8"})

	assert.Equal(t, 3, used)
	assert.Equal(t, BoundingBox{MinLat: 39.9, MinLon: -74.1, MaxLat: 40.1, MaxLon: -73.8}, box)
}

func TestResolveArea_SkipsMalformedSamples(t *testing.T) {
	box, used := ResolveArea([]string{
		"",
		"40.5",
		"abc,def",
		"1,2,3",
		"NaN,5",
		"40.0,-74.0",
		" 41.0 , -75.0 ",
	})

	assert.Equal(t, 2, used)
	assert.Equal(t, BoundingBox{MinLat: 40.0, MinLon: -75.0, MaxLat: 41.0, MaxLon: -74.0}, box)
}

func TestResolveArea_SinglePointIsDegenerate(t *testing.T) {
	box, used := ResolveArea([]string{"40.0,-74.0"})

	assert.Equal(t, 1, used)
	assert.Equal(t, box.MinLat, box.MaxLat)
	assert.Equal(t, box.MinLon, box.MaxLon)
}

func TestResolveArea_NoValidSamplesKeepsSeed(t *testing.T) {
	box, used := ResolveArea([]string{"", "x"})

	assert.Zero(t, used)
	assert.Equal(t, BoundingBox{MinLat: 90, MinLon: 180, MaxLat: -90, MaxLon: -180}, box)
}

func TestResolveArea_BoundsOrdered(t *testing.T) {
	samples := [][]string{
		{"10,10", "-10,-10"},
		{"-89.9,179.9", "89.9,-179.9", "0,0"},
		{"5,5", "bad", "5,5"},
	}
	for _, pts := range samples {
		box, used := ResolveArea(pts)
		require.Positive(t, used)
		assert.LessOrEqual(t, box.MinLat, box.MaxLat)
		assert.LessOrEqual(t, box.MinLon, box.MaxLon)
	}
}

func TestResolve_AreaMode(t *testing.T) {
	req, err := Resolve(Entity{
		ID:     testEntityID,
		Mode:   ModeArea,
		Points: []string{"40.0,-74.0", "40.1,-74.1"},
		Angle:  "-45",
	}, 15)
	require.NoError(t, err)

	assert.Equal(t, "123", req.EntityID)
	assert.Equal(t, "123", req.Name)
	assert.Equal(t, ModeArea, req.Viewport.Mode)
	assert.Equal(t, 315, req.Viewport.Angle)
	assert.InDelta(t, 40.1, req.Viewport.Box.MaxLat, 1e-9)
}

func TestResolve_PointModeUsesDefaultZoom(t *testing.T) {
	req, err := Resolve(Entity{ID: "9", Mode: ModePoint, CenterLat: "42.36", CenterLon: "-71.06"}, 15)
	require.NoError(t, err)

	assert.Equal(t, PointView{CenterLat: 42.36, CenterLon: -71.06, Zoom: 15}, req.Viewport.Point)
	assert.Zero(t, req.Viewport.Angle)
}

func TestResolve_SweepNamesCarryZoom(t *testing.T) {
	req, err := Resolve(Entity{ID: "Boston", Mode: ModeSweep, CenterLat: "42.36", CenterLon: "-71.06", Zoom: 7}, 15)
	require.NoError(t, err)

	assert.Equal(t, "Boston_7", req.Name)
	assert.Equal(t, 7, req.Viewport.Point.Zoom)
}

func TestResolve_Errors(t *testing.T) {
	_, err := Resolve(Entity{ID: " ", Mode: ModeArea}, 15)
	assert.ErrorIs(t, err, ErrMissingID)

	_, err = Resolve(Entity{ID: "1", Mode: ModePoint, CenterLat: "north", CenterLon: "1"}, 15)
	assert.ErrorIs(t, err, ErrMalformedCenter)

	_, err = Resolve(Entity{ID: "1", Mode: "polygon"}, 15)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMissingID))
}

func TestSweepZooms(t *testing.T) {
	assert.Equal(t, []int{3, 4, 5}, SweepZooms(3, 5))
	assert.Len(t, SweepZooms(3, 19), 17)
	assert.Nil(t, SweepZooms(5, 3))
}

func TestDatedDir(t *testing.T) {
	SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.October, 3, 12, 0, 0, 0, time.UTC)))
	t.Cleanup(func() { SetClock(nil) })

	assert.Equal(t, "output/processed/area_20241003", DatedDir("output/processed/area"))
	assert.Empty(t, DatedDir(""))
}

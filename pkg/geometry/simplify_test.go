package geometry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficlens/trafficlens/pkg/geometry"
)

func TestSimplify_CollinearPointsRemoved(t *testing.T) {
	line := []geometry.Point{
		{Lat: 0, Lng: 0},
		{Lat: 0, Lng: 1},
		{Lat: 0, Lng: 2},
		{Lat: 0, Lng: 3},
		{Lat: 0, Lng: 4},
	}

	got := geometry.Simplify(line, 0.5)
	assert.Equal(t, []geometry.Point{{Lat: 0, Lng: 0}, {Lat: 0, Lng: 4}}, got)
}

func TestSimplify_KeepsSignificantDeviation(t *testing.T) {
	line := []geometry.Point{
		{Lat: 0, Lng: 0},
		{Lat: 10, Lng: 5},
		{Lat: 0, Lng: 10},
	}

	got := geometry.Simplify(line, 1)
	require.Len(t, got, 3)
	assert.Equal(t, line, got)
}

func TestSimplify_ShortInputUnchanged(t *testing.T) {
	line := []geometry.Point{{Lat: 0, Lng: 0}, {Lat: 1, Lng: 1}}
	assert.Equal(t, line, geometry.Simplify(line, 5))
}

func TestDownsample(t *testing.T) {
	pts := make([]geometry.Point, 100)
	for i := range pts {
		pts[i] = geometry.Point{Lat: float64(i), Lng: float64(i)}
	}

	got := geometry.Downsample(pts, 20)
	require.LessOrEqual(t, len(got), 21)
	assert.Equal(t, pts[0], got[0])
	// The last point always survives downsampling.
	assert.Equal(t, pts[99], got[len(got)-1])
}

func TestDownsample_UnderLimitUnchanged(t *testing.T) {
	pts := []geometry.Point{{Lat: 1}, {Lat: 2}, {Lat: 3}}
	assert.Equal(t, pts, geometry.Downsample(pts, 20))
}

func TestFromXY_SwapsOnce(t *testing.T) {
	p := geometry.FromXY(3.5, 7.25)
	assert.Equal(t, geometry.Point{Lat: 7.25, Lng: 3.5}, p)
}

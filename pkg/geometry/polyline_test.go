package geometry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trafficlens/trafficlens/pkg/geometry"
)

func TestDecodePolyline(t *testing.T) {
	// Reference example from the Google polyline documentation.
	encoded := "_p~iF~ps|U_ulLnnqC_mqNvxq`@"

	points := geometry.DecodePolyline(encoded)
	require.Len(t, points, 3)

	assert.InDelta(t, 38.5, points[0].Lat, 0.00001)
	assert.InDelta(t, -120.2, points[0].Lng, 0.00001)
	assert.InDelta(t, 40.7, points[1].Lat, 0.00001)
	assert.InDelta(t, -120.95, points[1].Lng, 0.00001)
	assert.InDelta(t, 43.252, points[2].Lat, 0.00001)
	assert.InDelta(t, -126.453, points[2].Lng, 0.00001)
}

func TestEncodeDecodePolyline_RoundTrip(t *testing.T) {
	points := []geometry.Point{
		{Lat: 52.37403, Lng: 4.88969},
		{Lat: 52.37512, Lng: 4.89123},
		{Lat: 52.37689, Lng: 4.89001},
	}

	decoded := geometry.DecodePolyline(geometry.EncodePolyline(points))
	require.Len(t, decoded, len(points))
	for i := range points {
		assert.InDelta(t, points[i].Lat, decoded[i].Lat, 0.00001)
		assert.InDelta(t, points[i].Lng, decoded[i].Lng, 0.00001)
	}
}

func TestDecodePolyline_Empty(t *testing.T) {
	assert.Nil(t, geometry.DecodePolyline(""))
}

func TestLength(t *testing.T) {
	// Two points roughly 111km apart (1 degree of latitude).
	points := []geometry.Point{
		{Lat: 52.0, Lng: 4.0},
		{Lat: 53.0, Lng: 4.0},
	}
	assert.InDelta(t, 111195, geometry.Length(points), 200)
	assert.Zero(t, geometry.Length(points[:1]))
}

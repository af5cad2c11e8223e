// Package geometry provides the shared geometric primitives for the ingest
// pipeline: render-order points, bounding boxes, polyline simplification,
// spatial batching and polyline encoding.
package geometry

import "math"

// Point is a single coordinate in render axis order: the latitude-like
// component first, the longitude-like component second. Every point that
// crosses a package boundary in this codebase is in this order.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FromXY converts a point from the simulation's native XY frame
// (x horizontal, y vertical) into render axis order. This is the only
// place the axis swap happens; callers must convert at the boundary where
// data enters the pipeline and never again.
func FromXY(x, y float64) Point {
	return Point{Lat: y, Lng: x}
}

// Valid reports whether both components are finite.
func (p Point) Valid() bool {
	return !math.IsNaN(p.Lat) && !math.IsInf(p.Lat, 0) &&
		!math.IsNaN(p.Lng) && !math.IsInf(p.Lng, 0)
}

// Bounds is an axis-aligned bounding box in the same coordinate space as
// the points it was built from.
type Bounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Contains reports whether the point falls inside the bounds, borders
// inclusive. The X axis pairs with Lng and the Y axis with Lat.
func (b Bounds) Contains(p Point) bool {
	return p.Lng >= b.MinX && p.Lng <= b.MaxX &&
		p.Lat >= b.MinY && p.Lat <= b.MaxY
}

// BoundsFromPoints derives a bounding box by reducing over all points of
// all geometries. Returns false when there are no valid points to reduce.
func BoundsFromPoints(geoms [][]Point) (Bounds, bool) {
	b := Bounds{
		MinX: math.Inf(1), MinY: math.Inf(1),
		MaxX: math.Inf(-1), MaxY: math.Inf(-1),
	}
	found := false
	for _, geom := range geoms {
		for _, p := range geom {
			if !p.Valid() {
				continue
			}
			found = true
			b.MinX = math.Min(b.MinX, p.Lng)
			b.MaxX = math.Max(b.MaxX, p.Lng)
			b.MinY = math.Min(b.MinY, p.Lat)
			b.MaxY = math.Max(b.MaxY, p.Lat)
		}
	}
	if !found {
		return Bounds{}, false
	}
	return b, true
}

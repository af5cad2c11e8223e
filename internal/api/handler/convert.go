package handler

import (
	"github.com/trafficlens/trafficlens/internal/api/models"
	"github.com/trafficlens/trafficlens/pkg/geometry"
)

func toPoint(p geometry.Point) models.Point {
	return models.Point{Lat: p.Lat, Lng: p.Lng}
}

func toPoints(points []geometry.Point) []models.Point {
	out := make([]models.Point, len(points))
	for i, p := range points {
		out[i] = toPoint(p)
	}
	return out
}

func toBatches(batches [][][]geometry.Point) [][][]models.Point {
	out := make([][][]models.Point, len(batches))
	for i, batch := range batches {
		converted := make([][]models.Point, len(batch))
		for j, geom := range batch {
			converted[j] = toPoints(geom)
		}
		out[i] = converted
	}
	return out
}

func toGeoBox(b geometry.Bounds) models.GeoBox {
	return models.GeoBox{
		MinLat: b.MinY,
		MinLng: b.MinX,
		MaxLat: b.MaxY,
		MaxLng: b.MaxX,
	}
}

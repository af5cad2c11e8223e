package network

import (
	"context"
	"encoding/xml"
	"math"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// Geometry reduction applied at parse time so very dense lanes stay cheap
// to paint. Epsilon is in network units (meters for SUMO documents).
const (
	simplifyEpsilon  = 5.0
	maxPointsPerLane = 20
)

// InterpretedParser is the pure-Go structural parser for SUMO .net.xml
// documents. It is the fallback strategy and the reference semantics the
// accelerated parser must match.
type InterpretedParser struct {
	logger zerolog.Logger
}

// NewInterpretedParser creates the tree-based document parser.
func NewInterpretedParser(logger zerolog.Logger) *InterpretedParser {
	return &InterpretedParser{logger: logger}
}

type netDoc struct {
	XMLName   xml.Name      `xml:"net"`
	Location  locationNode  `xml:"location"`
	Edges     []edgeNode    `xml:"edge"`
	Junctions []junctionNode `xml:"junction"`
}

type locationNode struct {
	ConvBoundary string `xml:"convBoundary,attr"`
}

type edgeNode struct {
	ID       string     `xml:"id,attr"`
	Function string     `xml:"function,attr"`
	Lanes    []laneNode `xml:"lane"`
}

type laneNode struct {
	ID    string `xml:"id,attr"`
	Shape string `xml:"shape,attr"`
	Speed string `xml:"speed,attr"`
}

type junctionNode struct {
	ID    string `xml:"id,attr"`
	Type  string `xml:"type,attr"`
	TL    string `xml:"tl,attr"`
	X     string `xml:"x,attr"`
	Y     string `xml:"y,attr"`
	Shape string `xml:"shape,attr"`
}

// Parse extracts lanes, bounds, junctions and signal positions from the
// document. Fails with a ParseError when the document is empty, malformed,
// or contains zero usable geometry after filtering.
func (p *InterpretedParser) Parse(_ context.Context, source string) (*Model, error) {
	if strings.TrimSpace(source) == "" {
		return nil, &ParseError{Reason: "empty document", Err: ErrEmptyDocument}
	}

	var doc netDoc
	if err := xml.Unmarshal([]byte(source), &doc); err != nil {
		return nil, &ParseError{Reason: "malformed document", Err: err}
	}

	model := &Model{
		Bounds: parseBoundary(doc.Location.ConvBoundary),
	}

	for _, edge := range doc.Edges {
		isInternal := edge.Function == "internal"
		for _, lane := range edge.Lanes {
			points := parseShape(lane.Shape)
			if len(points) < 2 {
				continue
			}
			if len(points) > 4 {
				points = geometry.Simplify(points, simplifyEpsilon)
			}
			points = geometry.Downsample(points, maxPointsPerLane)
			if len(points) < 2 {
				continue
			}

			speed, _ := strconv.ParseFloat(lane.Speed, 64)
			if math.IsNaN(speed) || math.IsInf(speed, 0) || speed < 0 {
				speed = 0
			}

			model.Lanes = append(model.Lanes, Lane{
				ID:         lane.ID,
				EdgeID:     edge.ID,
				Points:     points,
				SpeedLimit: speed,
				IsInternal: isInternal,
			})
		}
	}

	for _, j := range doc.Junctions {
		pos, hasPos := parsePosition(j.X, j.Y)
		if hasPos {
			model.JunctionPoints = append(model.JunctionPoints, JunctionPoint{
				ID:       j.ID,
				Position: pos,
			})
		}

		if j.Shape != "" {
			if polygon := parseShape(j.Shape); len(polygon) >= 3 {
				model.Junctions = append(model.Junctions, Junction{
					ID:      j.ID,
					Type:    j.Type,
					Polygon: polygon,
				})
			}
		}

		if j.Type == "traffic_light" && hasPos {
			clusterID := j.TL
			if clusterID == "" {
				clusterID = j.ID
			}
			model.Signals = append(model.Signals, Signal{
				ID:        j.ID,
				ClusterID: clusterID,
				Position:  pos,
			})
		}
	}

	if len(model.Lanes) == 0 {
		return nil, &ParseError{Reason: "no usable geometry", Err: ErrNoGeometry}
	}

	p.logger.Debug().
		Int("lanes", len(model.Lanes)).
		Int("junctions", len(model.Junctions)).
		Int("signals", len(model.Signals)).
		Bool("has_bounds", model.Bounds != nil).
		Msg("interpreted parse complete")

	return model, nil
}

// parseBoundary parses a comma-separated minX,minY,maxX,maxY boundary
// attribute. Returns nil when the attribute is absent or malformed.
func parseBoundary(raw string) *geometry.Bounds {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return nil
	}
	vals := make([]float64, 0, 4)
	for _, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil
		}
		vals = append(vals, v)
	}
	return &geometry.Bounds{MinX: vals[0], MinY: vals[1], MaxX: vals[2], MaxY: vals[3]}
}

// parseShape parses a whitespace-separated list of comma-separated x,y
// pairs into render-order points. Malformed or non-finite pairs are
// dropped per-record, never aborting the shape.
func parseShape(shape string) []geometry.Point {
	fields := strings.Fields(shape)
	points := make([]geometry.Point, 0, len(fields))
	for _, field := range fields {
		xy := strings.Split(field, ",")
		if len(xy) != 2 {
			continue
		}
		x, errX := strconv.ParseFloat(xy[0], 64)
		y, errY := strconv.ParseFloat(xy[1], 64)
		if errX != nil || errY != nil {
			continue
		}
		p := geometry.FromXY(x, y)
		if !p.Valid() {
			continue
		}
		points = append(points, p)
	}
	return points
}

func parsePosition(xAttr, yAttr string) (geometry.Point, bool) {
	if xAttr == "" || yAttr == "" {
		return geometry.Point{}, false
	}
	x, errX := strconv.ParseFloat(xAttr, 64)
	y, errY := strconv.ParseFloat(yAttr, 64)
	if errX != nil || errY != nil {
		return geometry.Point{}, false
	}
	p := geometry.FromXY(x, y)
	if !p.Valid() {
		return geometry.Point{}, false
	}
	return p, true
}

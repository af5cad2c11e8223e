package geometry

// Simplify reduces a polyline with the Ramer-Douglas-Peucker algorithm.
// Epsilon is the maximum perpendicular deviation, in the units of the
// input coordinates. Endpoints are always kept; polylines with two or
// fewer points are returned unchanged.
func Simplify(points []Point, epsilon float64) []Point {
	if len(points) <= 2 || epsilon <= 0 {
		return points
	}

	epsilonSq := epsilon * epsilon
	keep := make([]bool, len(points))
	keep[0] = true
	keep[len(points)-1] = true

	type span struct{ start, end int }
	stack := []span{{0, len(points) - 1}}

	for len(stack) > 0 {
		s := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		maxDistSq := 0.0
		maxIdx := 0
		for i := s.start + 1; i < s.end; i++ {
			d := segmentDistanceSq(points[i], points[s.start], points[s.end])
			if d > maxDistSq {
				maxDistSq = d
				maxIdx = i
			}
		}

		if maxDistSq > epsilonSq {
			keep[maxIdx] = true
			stack = append(stack, span{s.start, maxIdx}, span{maxIdx, s.end})
		}
	}

	out := make([]Point, 0, len(points))
	for i, p := range points {
		if keep[i] {
			out = append(out, p)
		}
	}
	return out
}

// segmentDistanceSq returns the squared distance from p to the segment vw.
func segmentDistanceSq(p, v, w Point) float64 {
	l2 := (v.Lng-w.Lng)*(v.Lng-w.Lng) + (v.Lat-w.Lat)*(v.Lat-w.Lat)
	if l2 == 0 {
		return (p.Lng-v.Lng)*(p.Lng-v.Lng) + (p.Lat-v.Lat)*(p.Lat-v.Lat)
	}

	t := ((p.Lng-v.Lng)*(w.Lng-v.Lng) + (p.Lat-v.Lat)*(w.Lat-v.Lat)) / l2
	if t < 0 {
		t = 0
	} else if t > 1 {
		t = 1
	}

	projX := v.Lng + t*(w.Lng-v.Lng)
	projY := v.Lat + t*(w.Lat-v.Lat)
	return (p.Lng-projX)*(p.Lng-projX) + (p.Lat-projY)*(p.Lat-projY)
}

// Downsample returns at most maxPoints points by striding through the
// input. The last point is always included so the polyline keeps its
// full extent.
func Downsample(points []Point, maxPoints int) []Point {
	if maxPoints <= 0 || len(points) <= maxPoints {
		return points
	}

	step := (len(points) + maxPoints - 1) / maxPoints
	out := make([]Point, 0, maxPoints+1)
	for i := 0; i < len(points); i += step {
		out = append(out, points[i])
	}

	last := points[len(points)-1]
	if out[len(out)-1] != last {
		out = append(out, last)
	}
	return out
}

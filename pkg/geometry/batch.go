package geometry

// Batch partitions geometries into chunks of at most batchSize, preserving
// order. Concatenating the returned batches reproduces the input exactly.
// A non-positive batchSize returns the whole input as a single batch.
func Batch(geoms [][]Point, batchSize int) [][][]Point {
	if len(geoms) == 0 {
		return nil
	}
	if batchSize <= 0 {
		return [][][]Point{geoms}
	}

	batches := make([][][]Point, 0, (len(geoms)+batchSize-1)/batchSize)
	for start := 0; start < len(geoms); start += batchSize {
		end := start + batchSize
		if end > len(geoms) {
			end = len(geoms)
		}
		batches = append(batches, geoms[start:end])
	}
	return batches
}

// FilterToBounds keeps every geometry with at least one point inside the
// bounds (inclusive). Over-inclusion is deliberate: a polyline that merely
// clips the window edge is kept whole, which favors visual continuity over
// strict clipping.
func FilterToBounds(geoms [][]Point, bounds Bounds) [][]Point {
	out := make([][]Point, 0, len(geoms))
	for _, geom := range geoms {
		for _, p := range geom {
			if bounds.Contains(p) {
				out = append(out, geom)
				break
			}
		}
	}
	return out
}

package models

// NetworkResponse describes the loaded road network.
type NetworkResponse struct {
	LaneCount     int        `json:"laneCount"`
	EdgeCount     int        `json:"edgeCount"`
	JunctionCount int        `json:"junctionCount"`
	SignalCount   int        `json:"signalCount"`
	Bounds        *GeoBox    `json:"bounds,omitempty"`
	LoadedAt      *Timestamp `json:"loadedAt,omitempty"`
}

// EdgeResponse is one aggregated through edge.
type EdgeResponse struct {
	ID         string  `json:"id"`
	SpeedLimit float64 `json:"speedLimit"`
	Points     []Point `json:"points"`
}

// EdgeListResponse wraps the aggregated edge set.
type EdgeListResponse struct {
	Items []EdgeResponse `json:"items"`
}

// GeometryResponse carries batched polylines for the renderer. Each
// batch list concatenates to the full geometry set in order.
type GeometryResponse struct {
	ThroughBatches  [][][]Point `json:"throughBatches"`
	InternalBatches [][][]Point `json:"internalBatches"`
}

// JunctionResponse is one junction footprint.
type JunctionResponse struct {
	ID      string  `json:"id"`
	Type    string  `json:"type"`
	Polygon []Point `json:"polygon,omitempty"`
}

// SignalMarkerResponse is a signal-controlled junction's static marker.
type SignalMarkerResponse struct {
	ID        string `json:"id"`
	ClusterID string `json:"clusterId"`
	Position  Point  `json:"position"`
}

// JunctionListResponse wraps junction footprints and signal markers.
type JunctionListResponse struct {
	Junctions []JunctionResponse     `json:"junctions"`
	Signals   []SignalMarkerResponse `json:"signals"`
}

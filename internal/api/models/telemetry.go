package models

// VehicleResponse is one live vehicle marker.
type VehicleResponse struct {
	ID        string    `json:"id"`
	Position  Point     `json:"position"`
	Heading   float64   `json:"heading"`
	Speed     float64   `json:"speed"`
	Type      string    `json:"type,omitempty"`
	EdgeID    string    `json:"edgeId,omitempty"`
	LaneID    string    `json:"laneId,omitempty"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// VehicleListResponse wraps the live vehicle snapshot.
type VehicleListResponse struct {
	Items []VehicleResponse `json:"items"`
	State string            `json:"state"`
}

// SignalStateResponse is one live signal phase.
type SignalStateResponse struct {
	ID        string    `json:"id"`
	State     string    `json:"state"`
	Program   string    `json:"program,omitempty"`
	Phase     *int      `json:"phase,omitempty"`
	Position  *Point    `json:"position,omitempty"`
	UpdatedAt Timestamp `json:"updatedAt"`
}

// SignalStateListResponse wraps the live signal snapshot.
type SignalStateListResponse struct {
	Items []SignalStateResponse `json:"items"`
	State string                `json:"state"`
}

// CongestionResponse is one classification run's output. Levels maps
// edge id to the policy's level vocabulary; edges without samples are
// omitted under the ratio policy.
type CongestionResponse struct {
	Policy    string            `json:"policy"`
	Levels    map[string]string `json:"levels"`
	Throttled bool              `json:"throttled"`
}

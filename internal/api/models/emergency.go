package models

// EmergencyVehicleResponse is one tracked emergency vehicle.
type EmergencyVehicleResponse struct {
	VehicleID   string    `json:"vehicleId"`
	Position    Point     `json:"position"`
	Heading     float64   `json:"heading"`
	Speed       float64   `json:"speed"`
	VehicleType string    `json:"vehicleType,omitempty"`
	State       string    `json:"state,omitempty"`
	RouteID     string    `json:"routeId,omitempty"`
	LastUpdate  Timestamp `json:"lastUpdate"`
}

// EmergencyVehicleListResponse wraps the tracked emergency vehicles.
type EmergencyVehicleListResponse struct {
	Items []EmergencyVehicleResponse `json:"items"`
}

// EmergencyRouteResponse is one dispatched route. Polyline carries the
// coords as an encoded polyline (precision 5) for clients that prefer
// the compact form; LengthMeters is the haversine length of the coords.
type EmergencyRouteResponse struct {
	RouteID      string    `json:"routeId"`
	Coords       []Point   `json:"coords"`
	Polyline     string    `json:"polyline,omitempty"`
	LengthMeters float64   `json:"lengthMeters,omitempty"`
	Origin       string    `json:"origin,omitempty"`
	Destination  string    `json:"destination,omitempty"`
	ETA          float64   `json:"eta,omitempty"`
	VehicleID    string    `json:"vehicleId,omitempty"`
	LastUpdate   Timestamp `json:"lastUpdate"`
}

// EmergencyRouteListResponse wraps the dispatched routes.
type EmergencyRouteListResponse struct {
	Items []EmergencyRouteResponse `json:"items"`
}

// RouteRequestBody asks the feed for a vehicle's route geometry.
type RouteRequestBody struct {
	VehicleID string `json:"vehicleId"`
	RouteID   string `json:"routeId,omitempty"`
}

// RouteRequestResponse reports whether a feed request went out or the
// route was already cached.
type RouteRequestResponse struct {
	Requested bool `json:"requested"`
	Cached    bool `json:"cached"`
}

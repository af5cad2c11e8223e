package models

// MapSettingsResponse is an operator's saved map view.
type MapSettingsResponse struct {
	OperatorID        string     `json:"operatorId"`
	Center            *Point     `json:"center,omitempty"`
	Zoom              float64    `json:"zoom"`
	ShowInternalLanes bool       `json:"showInternalLanes"`
	ShowSignals       bool       `json:"showSignals"`
	ShowEmergency     bool       `json:"showEmergency"`
	CongestionPolicy  string     `json:"congestionPolicy,omitempty"`
	UpdatedAt         *Timestamp `json:"updatedAt,omitempty"`
}

// UpdateMapSettingsRequest carries an operator's map view update.
type UpdateMapSettingsRequest struct {
	Center            *Point  `json:"center,omitempty"`
	Zoom              float64 `json:"zoom"`
	ShowInternalLanes bool    `json:"showInternalLanes"`
	ShowSignals       bool    `json:"showSignals"`
	ShowEmergency     bool    `json:"showEmergency"`
	CongestionPolicy  string  `json:"congestionPolicy,omitempty"`
}

// AuditEntryResponse is one recorded operator action.
type AuditEntryResponse struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt Timestamp `json:"createdAt"`
}

// AuditListResponse wraps the audit trail, newest first.
type AuditListResponse struct {
	Items []AuditEntryResponse `json:"items"`
}

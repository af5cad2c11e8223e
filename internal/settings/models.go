// Package settings stores per-operator map view settings and the audit
// log of changes to them.
package settings

import (
	"time"

	"github.com/trafficlens/trafficlens/pkg/geometry"
)

// MapSettings is one operator's saved map view configuration.
type MapSettings struct {
	OperatorID        string          `json:"operatorId"`
	Center            *geometry.Point `json:"center,omitempty"`
	Zoom              float64         `json:"zoom,omitempty"`
	ShowInternalLanes bool            `json:"showInternalLanes"`
	ShowSignals       bool            `json:"showSignals"`
	ShowEmergency     bool            `json:"showEmergency"`
	CongestionPolicy  string          `json:"congestionPolicy,omitempty"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// AuditEntry is one recorded operator action.
type AuditEntry struct {
	ID        string    `json:"id"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Audit actions written by this service.
const (
	ActionSettingsUpdated     = "settings.updated"
	ActionIntersectionOverride = "intersection.override"
)

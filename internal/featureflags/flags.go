// Package featureflags provides feature flag management for runtime
// configuration of the ingest pipeline.
package featureflags

import (
	"encoding/json"
	"time"
)

// Well-known feature flag keys.
const (
	// FlagEmergencySnapshotBootstrap seeds the emergency feed from a
	// one-shot snapshot before streaming begins.
	FlagEmergencySnapshotBootstrap = "emergency_snapshot_bootstrap"

	// FlagDisableAcceleratedParser skips the accelerated parse strategy
	// and goes straight to the interpreted one.
	FlagDisableAcceleratedParser = "disable_accelerated_parser"

	// FlagCongestionPolicy selects the classification policy: "count" or
	// "ratio". Callers must never mix outputs from both in one pass.
	FlagCongestionPolicy = "congestion_policy"

	// FlagDisableLiveGeometry ignores live lane frames, pinning rendering
	// and classification to the static network document.
	FlagDisableLiveGeometry = "disable_live_geometry"
)

// Congestion policy values for FlagCongestionPolicy.
const (
	CongestionPolicyCount = "count"
	CongestionPolicyRatio = "ratio"
)

// Flag represents a feature flag with its current value.
type Flag struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// FlagList represents a list of feature flags.
type FlagList struct {
	Items []Flag `json:"items"`
}

// FlagUpdate represents a single flag update request.
type FlagUpdate struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

// FlagUpdateRequest represents a request to update feature flags.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// BoolValue returns the flag value as a boolean.
// Returns the default value if the flag is nil, not found, or not a boolean.
func (f *Flag) BoolValue(defaultValue bool) bool {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		// JSON unmarshals numbers as float64
		return v != 0
	default:
		return defaultValue
	}
}

// StringValue returns the flag value as a string.
// Returns the default value if the flag is nil, not found, or not a string.
func (f *Flag) StringValue(defaultValue string) string {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case string:
		return v
	default:
		return defaultValue
	}
}

// IntValue returns the flag value as an integer.
// Returns the default value if the flag is nil, not found, or not a number.
func (f *Flag) IntValue(defaultValue int) int {
	if f == nil {
		return defaultValue
	}
	switch v := f.Value.(type) {
	case float64:
		// JSON unmarshals numbers as float64
		return int(v)
	case int:
		return v
	default:
		return defaultValue
	}
}

// JSONValue unmarshals the flag value into the target struct.
func (f *Flag) JSONValue(target interface{}) error {
	if f == nil {
		return nil
	}
	data, err := json.Marshal(f.Value)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// DefaultFlags returns the default feature flags for the application.
func DefaultFlags() map[string]*Flag {
	now := time.Now()
	return map[string]*Flag{
		FlagEmergencySnapshotBootstrap: {
			Key:       FlagEmergencySnapshotBootstrap,
			Value:     false,
			UpdatedAt: now,
		},
		FlagDisableAcceleratedParser: {
			Key:       FlagDisableAcceleratedParser,
			Value:     false,
			UpdatedAt: now,
		},
		FlagCongestionPolicy: {
			Key:       FlagCongestionPolicy,
			Value:     CongestionPolicyCount,
			UpdatedAt: now,
		},
		FlagDisableLiveGeometry: {
			Key:       FlagDisableLiveGeometry,
			Value:     false,
			UpdatedAt: now,
		},
	}
}

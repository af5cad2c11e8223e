package models

// FlagResponse is one feature flag's current value.
type FlagResponse struct {
	Key       string      `json:"key"`
	Value     interface{} `json:"value"`
	UpdatedAt *Timestamp  `json:"updatedAt,omitempty"`
}

// FlagListResponse wraps the full flag set.
type FlagListResponse struct {
	Items []FlagResponse `json:"items"`
}

// UpdateFlagRequest sets one flag's value.
type UpdateFlagRequest struct {
	Value interface{} `json:"value"`
}

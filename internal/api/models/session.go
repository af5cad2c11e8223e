package models

// SessionRequest exchanges the control-room shared secret for an
// operator access token.
type SessionRequest struct {
	OperatorID string `json:"operatorId"`
	Role       string `json:"role"`
	SharedKey  string `json:"sharedKey"`
}

// SessionResponse carries an issued access token.
type SessionResponse struct {
	AccessToken string    `json:"accessToken"`
	TokenType   string    `json:"tokenType"`
	ExpiresAt   Timestamp `json:"expiresAt"`
}

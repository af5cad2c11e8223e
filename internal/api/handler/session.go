package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/trafficlens/trafficlens/internal/api/models"
	"github.com/trafficlens/trafficlens/internal/api/response"
	"github.com/trafficlens/trafficlens/internal/auth"
)

// SessionHandler issues operator access tokens against the control-room
// shared key.
type SessionHandler struct {
	jwtService *auth.JWTService
	sharedKey  string
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(jwtService *auth.JWTService, sharedKey string) *SessionHandler {
	return &SessionHandler{jwtService: jwtService, sharedKey: sharedKey}
}

// CreateSession handles POST /v1/session - exchange the shared key for
// an access token.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var body models.SessionRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, r, "invalid request body", nil)
		return
	}
	if body.OperatorID == "" {
		response.BadRequest(w, r, "operatorId is required", []models.FieldError{
			{Field: "operatorId", Message: "required"},
		})
		return
	}

	role := body.Role
	switch role {
	case "":
		role = auth.RoleViewer
	case auth.RoleViewer, auth.RoleOperator, auth.RoleAdmin:
	default:
		response.BadRequest(w, r, "unknown role", []models.FieldError{
			{Field: "role", Message: "must be viewer, operator or admin"},
		})
		return
	}

	if h.sharedKey == "" ||
		subtle.ConstantTimeCompare([]byte(body.SharedKey), []byte(h.sharedKey)) != 1 {
		response.Unauthorized(w, r, "invalid shared key")
		return
	}

	token, expiresAt, err := h.jwtService.GenerateAccessToken(body.OperatorID, role)
	if err != nil {
		response.InternalError(w, r, "issuing access token")
		return
	}

	response.JSON(w, r, http.StatusOK, models.SessionResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   models.Timestamp(expiresAt),
	})
}

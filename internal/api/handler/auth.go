package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/advicehub/counsel/internal/api/response"
	"github.com/advicehub/counsel/internal/security"
	"github.com/go-playground/validator/v10"
)

// AuthHandler exchanges the configured admin key for a short-lived admin
// token used on the enrolment endpoints.
type AuthHandler struct {
	jwtManager *security.JWTManager
	adminKey   string
	validate   *validator.Validate
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(jwtManager *security.JWTManager, adminKey string) *AuthHandler {
	return &AuthHandler{
		jwtManager: jwtManager,
		adminKey:   adminKey,
		validate:   validator.New(),
	}
}

type tokenRequest struct {
	AdminKey string `json:"admin_key" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
}

// Token issues an admin access token.
func (h *AuthHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if h.adminKey == "" || subtle.ConstantTimeCompare([]byte(req.AdminKey), []byte(h.adminKey)) != 1 {
		response.Unauthorized(w, "invalid admin key")
		return
	}

	token, err := h.jwtManager.GenerateAccessToken(req.Email, "admin")
	if err != nil {
		response.InternalError(w, "failed to issue token")
		return
	}

	response.OK(w, map[string]any{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(h.jwtManager.AccessTokenTTL().Seconds()),
	})
}

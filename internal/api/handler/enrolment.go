package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/advicehub/counsel/internal/api/response"
	"github.com/advicehub/counsel/internal/domain"
	"github.com/advicehub/counsel/internal/policy"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// EnrolmentHandler manages adviser registrations and office coverage.
type EnrolmentHandler struct {
	enrolment policy.Enrolment
	offices   domain.OfficeRepository
	validate  *validator.Validate
}

// NewEnrolmentHandler creates a new enrolment handler
func NewEnrolmentHandler(enrolment policy.Enrolment, offices domain.OfficeRepository) *EnrolmentHandler {
	return &EnrolmentHandler{
		enrolment: enrolment,
		offices:   offices,
		validate:  validator.New(),
	}
}

type registerUserRequest struct {
	Email             string `json:"email" validate:"required,email"`
	Role              string `json:"role" validate:"required,oneof=adviser supervisor"`
	SupervisorSpaceID string `json:"supervisor_space_id" validate:"required"`
}

// RegisterUser enrols an adviser or supervisor against a supervisor space.
func (h *EnrolmentHandler) RegisterUser(w http.ResponseWriter, r *http.Request) {
	var req registerUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.enrolment.Register(r.Context(), req.Email, req.Role, req.SupervisorSpaceID); err != nil {
		response.InternalError(w, "failed to register user")
		return
	}

	response.Created(w, map[string]string{"email": req.Email})
}

// RemoveUser withdraws a registration.
func (h *EnrolmentHandler) RemoveUser(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if email == "" {
		response.BadRequest(w, "missing email")
		return
	}

	if err := h.enrolment.Remove(r.Context(), email); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			response.NotFound(w, "user not registered")
			return
		}
		response.InternalError(w, "failed to remove user")
		return
	}

	response.NoContent(w)
}

// ListSpaceUsers lists everyone enrolled against a supervisor space.
func (h *EnrolmentHandler) ListSpaceUsers(w http.ResponseWriter, r *http.Request) {
	spaceID := chi.URLParam(r, "spaceID")
	if spaceID == "" {
		response.BadRequest(w, "missing space ID")
		return
	}

	users, err := h.enrolment.ListSpaceUsers(r.Context(), spaceID)
	if err != nil {
		response.InternalError(w, "failed to list users")
		return
	}

	response.OK(w, map[string]any{"users": users})
}

type setOfficeRequest struct {
	EmailDomain string   `json:"email_domain" validate:"required,fqdn"`
	Regions     []string `json:"regions" validate:"required,min=1"`
}

// SetOfficeRegions records which advice regions an office's email domain
// covers. The regions feed the prompt's coverage context.
func (h *EnrolmentHandler) SetOfficeRegions(w http.ResponseWriter, r *http.Request) {
	var req setOfficeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	if err := h.offices.SetRegions(r.Context(), req.EmailDomain, req.Regions); err != nil {
		response.InternalError(w, "failed to set office regions")
		return
	}

	response.OK(w, map[string]any{"email_domain": req.EmailDomain, "regions": req.Regions})
}

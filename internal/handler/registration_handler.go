package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

type registrationService interface {
	Register(ctx context.Context, actor *models.JWTClaims, eventID string) (*models.Attendee, error)
	Unregister(ctx context.Context, actor *models.JWTClaims, eventID string) error
	Registration(ctx context.Context, actor *models.JWTClaims, eventID string) (*models.Attendee, error)
}

// RegistrationHandler wires HTTP endpoints to the registration service.
type RegistrationHandler struct {
	service registrationService
}

// NewRegistrationHandler creates a new handler.
func NewRegistrationHandler(svc registrationService) *RegistrationHandler {
	return &RegistrationHandler{service: svc}
}

// Register godoc
// @Summary Register for an event
// @Description Join an event's attendee list and receive a QR code token
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/register [post]
func (h *RegistrationHandler) Register(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	attendee, err := h.service.Register(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, attendee)
}

// Unregister godoc
// @Summary Cancel a registration
// @Description Leave an event unless attendance was already confirmed
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 204 "No Content"
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{id}/register [delete]
func (h *RegistrationHandler) Unregister(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.Unregister(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Registration godoc
// @Summary Show own registration
// @Description Return the caller's registration and QR code for an event
// @Tags Registrations
// @Produce json
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /events/{id}/registration [get]
func (h *RegistrationHandler) Registration(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	attendee, err := h.service.Registration(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, attendee, nil)
}

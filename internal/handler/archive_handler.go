package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

type archiveService interface {
	ListArchived(ctx context.Context) ([]models.ArchivedEvent, error)
	GetArchived(ctx context.Context, id string) (*models.ArchivedEvent, error)
	DeleteArchived(ctx context.Context, actor *models.JWTClaims, id string) error
	Sweep(ctx context.Context) (*models.SweepResult, error)
}

// ArchiveHandler wires HTTP endpoints to the sweeper service.
type ArchiveHandler struct {
	service archiveService
}

// NewArchiveHandler creates a new handler.
func NewArchiveHandler(svc archiveService) *ArchiveHandler {
	return &ArchiveHandler{service: svc}
}

// List godoc
// @Summary List archived events
// @Description Return archived events, newest first
// @Tags Archive
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /archive [get]
func (h *ArchiveHandler) List(c *gin.Context) {
	archived, err := h.service.ListArchived(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, archived, nil)
}

// Get godoc
// @Summary Get an archived event
// @Description Return one archived event with its attendee snapshot
// @Tags Archive
// @Produce json
// @Security BearerAuth
// @Param id path string true "Archive ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /archive/{id} [get]
func (h *ArchiveHandler) Get(c *gin.Context) {
	archived, err := h.service.GetArchived(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, archived, nil)
}

// Delete godoc
// @Summary Delete an archived event
// @Description Permanently remove an archived event record
// @Tags Archive
// @Produce json
// @Security BearerAuth
// @Param id path string true "Archive ID"
// @Success 204 "No Content"
// @Failure 404 {object} response.Envelope
// @Router /archive/{id} [delete]
func (h *ArchiveHandler) Delete(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.service.DeleteArchived(c.Request.Context(), claims, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}

	response.NoContent(c)
}

// Sweep godoc
// @Summary Run an archive sweep
// @Description Archive all expired events immediately
// @Tags Archive
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /archive/sweep [post]
func (h *ArchiveHandler) Sweep(c *gin.Context) {
	result, err := h.service.Sweep(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

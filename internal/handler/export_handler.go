package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/service"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/response"
)

// ExportHandler wires HTTP endpoints to the export service.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler creates a new handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

func exportFormat(c *gin.Context, fallback models.ExportFormat) (models.ExportFormat, error) {
	raw := c.DefaultQuery("format", string(fallback))
	switch format := models.ExportFormat(raw); format {
	case models.ExportFormatCSV, models.ExportFormatJSON, models.ExportFormatPDF:
		return format, nil
	default:
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", raw))
	}
}

// EventRoster godoc
// @Summary Download an event roster
// @Description Render the attendee roster for one event as CSV or JSON
// @Tags Exports
// @Produce octet-stream
// @Security BearerAuth
// @Param id path string true "Event ID"
// @Param format query string false "Export format" Enums(csv, json)
// @Success 200 {file} file
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /events/{id}/roster [get]
func (h *ExportHandler) EventRoster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format, err := exportFormat(c, models.ExportFormatCSV)
	if err != nil {
		response.Error(c, err)
		return
	}

	file, err := h.service.EventRoster(c.Request.Context(), claims, c.Param("id"), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

// RequestArchiveReport godoc
// @Summary Request an archive report
// @Description Queue an asynchronous export of the full event archive
// @Tags Exports
// @Produce json
// @Security BearerAuth
// @Param format query string false "Export format" Enums(csv, json, pdf)
// @Success 202 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /exports/archive [post]
func (h *ExportHandler) RequestArchiveReport(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format, err := exportFormat(c, models.ExportFormatPDF)
	if err != nil {
		response.Error(c, err)
		return
	}

	job, err := h.service.RequestArchiveReport(c.Request.Context(), claims, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, job, nil)
}

// JobStatus godoc
// @Summary Get export job status
// @Description Return one export job, with a signed download token once finished
// @Tags Exports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/{id} [get]
func (h *ExportHandler) JobStatus(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	view, err := h.service.JobStatus(c.Request.Context(), claims, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, view, nil)
}

// ListJobs godoc
// @Summary List export jobs
// @Description Return the caller's export jobs, newest first
// @Tags Exports
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /exports [get]
func (h *ExportHandler) ListJobs(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	jobs, err := h.service.ListJobs(c.Request.Context(), claims)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, jobs, nil)
}

// Download godoc
// @Summary Download an export file
// @Description Stream a finished export using a signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed download token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /exports/download [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token query parameter is required"))
		return
	}

	file, relPath, err := h.service.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close()

	filename := filepath.Base(relPath)
	modTime := time.Time{}
	if info, statErr := file.Stat(); statErr == nil {
		modTime = info.ModTime()
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Header("Content-Type", contentTypeForExport(filename))
	http.ServeContent(c.Writer, c.Request, filename, modTime, file)
}

func contentTypeForExport(filename string) string {
	switch filepath.Ext(filename) {
	case ".csv":
		return "text/csv"
	case ".json":
		return "application/json"
	case ".pdf":
		return "application/pdf"
	default:
		return "application/octet-stream"
	}
}

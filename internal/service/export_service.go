package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/export"
	"github.com/noah-isme/campus-events-api/pkg/jobs"
	"github.com/noah-isme/campus-events-api/pkg/storage"
)

type exportEventRepository interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
}

type exportArchiveRepository interface {
	List(ctx context.Context) ([]models.ArchivedEvent, error)
}

type exportJobRepository interface {
	Create(ctx context.Context, job *models.ExportJob) error
	GetByID(ctx context.Context, id string) (*models.ExportJob, error)
	UpdateStatus(ctx context.Context, id string, status models.ExportJobStatus, resultPath, errMessage *string) error
	ListByRequester(ctx context.Context, userID string) ([]models.ExportJob, error)
}

// ExportConfig tunes the export pipeline.
type ExportConfig struct {
	WorkerConcurrency int
	WorkerRetries     int
}

// RosterFile is a rendered synchronous export.
type RosterFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportJobView is the job status plus a signed download URL when finished.
type ExportJobView struct {
	models.ExportJob
	DownloadToken string     `json:"downloadToken,omitempty"`
	ExpiresAt     *time.Time `json:"downloadExpiresAt,omitempty"`
}

// ExportService renders attendee rosters for download. Active-event rosters
// render synchronously; the archive history report runs through a worker
// queue and lands in local storage behind signed URLs.
type ExportService struct {
	events   exportEventRepository
	archive  exportArchiveRepository
	jobsRepo exportJobRepository
	store    *storage.LocalStorage
	signer   *storage.SignedURLSigner
	csv      *export.CSVExporter
	pdf      *export.PDFExporter
	queue    *jobs.Queue
	logger   *zap.Logger
	now      func() time.Time
}

// NewExportService constructs an ExportService and its worker queue.
func NewExportService(events exportEventRepository, archive exportArchiveRepository, jobsRepo exportJobRepository, store *storage.LocalStorage, signer *storage.SignedURLSigner, logger *zap.Logger, cfg ExportConfig) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &ExportService{
		events:   events,
		archive:  archive,
		jobsRepo: jobsRepo,
		store:    store,
		signer:   signer,
		csv:      export.NewCSVExporter(),
		pdf:      export.NewPDFExporter(),
		logger:   logger,
		now:      time.Now,
	}
	svc.queue = jobs.NewQueue("exports", svc.handleJob, jobs.QueueConfig{
		Workers:    cfg.WorkerConcurrency,
		MaxRetries: cfg.WorkerRetries,
		Logger:     logger,
	})
	return svc
}

// Start launches the export workers.
func (s *ExportService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the export workers.
func (s *ExportService) Stop() {
	s.queue.Stop()
}

// EventRoster renders the attendee roster for an active event.
func (s *ExportService) EventRoster(ctx context.Context, actor *models.JWTClaims, eventID string, format models.ExportFormat) (*RosterFile, error) {
	if !CanExportRosters(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only organizers can export rosters")
	}

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrEventNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}

	confirmed := make([]models.Attendee, 0, len(event.Attendees))
	for _, a := range event.Attendees {
		if a.Attended {
			confirmed = append(confirmed, a)
		}
	}
	if len(confirmed) == 0 {
		return nil, appErrors.Clone(appErrors.ErrNoConfirmed, "")
	}

	basename := fmt.Sprintf("%s_attendees_%s", sanitizeFilename(event.Title), s.now().UTC().Format(models.DateLayout))

	switch format {
	case models.ExportFormatCSV:
		data, err := s.csv.Render(eventRosterDataset(event, confirmed))
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return &RosterFile{Filename: basename + ".csv", ContentType: "text/csv", Data: data}, nil
	case models.ExportFormatJSON:
		data, err := eventRosterJSON(event, confirmed)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render json")
		}
		return &RosterFile{Filename: basename + ".json", ContentType: "application/json", Data: data}, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}

// RequestArchiveReport queues an asynchronous report over the archive history.
func (s *ExportService) RequestArchiveReport(ctx context.Context, actor *models.JWTClaims, format models.ExportFormat) (*models.ExportJob, error) {
	if !CanExportRosters(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only organizers can export rosters")
	}
	switch format {
	case models.ExportFormatCSV, models.ExportFormatJSON, models.ExportFormatPDF:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}

	job := &models.ExportJob{
		ID:          uuid.NewString(),
		RequestedBy: actor.UserID,
		Format:      format,
		Status:      models.ExportStatusQueued,
	}
	if err := s.jobsRepo.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create export job")
	}

	if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: "archive_report", Payload: job.ID}); err != nil {
		msg := "export queue is full"
		if updateErr := s.jobsRepo.UpdateStatus(ctx, job.ID, models.ExportStatusFailed, nil, &msg); updateErr != nil {
			s.logger.Error("failed to mark export job failed", zap.Error(updateErr))
		}
		return nil, appErrors.Clone(appErrors.ErrUnavailable, "export queue is full")
	}

	return job, nil
}

// JobStatus returns the job with a signed download token once finished.
func (s *ExportService) JobStatus(ctx context.Context, actor *models.JWTClaims, jobID string) (*ExportJobView, error) {
	job, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load export job")
	}
	if job.RequestedBy != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "export job belongs to another user")
	}

	view := &ExportJobView{ExportJob: *job}
	if job.Status == models.ExportStatusFinished && job.ResultPath != nil {
		token, expiresAt, err := s.signer.Generate(job.ID, *job.ResultPath)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
		}
		view.DownloadToken = token
		view.ExpiresAt = &expiresAt
	}
	return view, nil
}

// ListJobs returns the acting user's export jobs.
func (s *ExportService) ListJobs(ctx context.Context, actor *models.JWTClaims) ([]models.ExportJob, error) {
	jobs, err := s.jobsRepo.ListByRequester(ctx, actor.UserID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list export jobs")
	}
	return jobs, nil
}

// Download validates a signed token and opens the exported file.
func (s *ExportService) Download(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrUnauthorized, "download link is invalid or expired")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "export file no longer exists")
	}
	return file, relPath, nil
}

func (s *ExportService) handleJob(ctx context.Context, job jobs.Job) error {
	jobID, ok := job.Payload.(string)
	if !ok {
		return fmt.Errorf("unexpected payload type %T", job.Payload)
	}

	if err := s.jobsRepo.UpdateStatus(ctx, jobID, models.ExportStatusRunning, nil, nil); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}

	record, err := s.jobsRepo.GetByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load export job: %w", err)
	}

	path, err := s.renderArchiveReport(ctx, record)
	if err != nil {
		msg := err.Error()
		if updateErr := s.jobsRepo.UpdateStatus(ctx, jobID, models.ExportStatusFailed, nil, &msg); updateErr != nil {
			s.logger.Error("failed to mark export job failed", zap.Error(updateErr))
		}
		return err
	}

	if err := s.jobsRepo.UpdateStatus(ctx, jobID, models.ExportStatusFinished, &path, nil); err != nil {
		return fmt.Errorf("mark job finished: %w", err)
	}
	s.logger.Info("archive report exported",
		zap.String("job_id", jobID),
		zap.String("path", path))
	return nil
}

func (s *ExportService) renderArchiveReport(ctx context.Context, job *models.ExportJob) (string, error) {
	archived, err := s.archive.List(ctx)
	if err != nil {
		return "", fmt.Errorf("load archive history: %w", err)
	}

	filename := fmt.Sprintf("archive_report_%s_%s.%s", s.now().UTC().Format("20060102_150405"), job.ID[:8], job.Format)

	var data []byte
	switch job.Format {
	case models.ExportFormatCSV:
		data, err = s.csv.Render(archiveReportDataset(archived))
	case models.ExportFormatPDF:
		data, err = s.pdf.Render(archiveReportDataset(archived), "Archived Events Report")
	case models.ExportFormatJSON:
		data, err = json.MarshalIndent(archived, "", "  ")
	default:
		return "", fmt.Errorf("unsupported format %q", job.Format)
	}
	if err != nil {
		return "", fmt.Errorf("render archive report: %w", err)
	}

	if _, err := s.store.Save(filename, data); err != nil {
		return "", fmt.Errorf("store archive report: %w", err)
	}
	return filename, nil
}

// eventRosterDataset renders confirmed attendees only. Missing values
// become "N/A" so the table stays rectangular.
func eventRosterDataset(event *models.Event, confirmed []models.Attendee) export.Dataset {
	rows := make([]map[string]string, 0, len(confirmed))
	for _, a := range confirmed {
		identifier := a.StudentID
		if a.UserRole == models.RoleOrganizer {
			identifier = a.OrganizationName
		}
		attendedAt := "N/A"
		if a.AttendedAt != nil {
			attendedAt = a.AttendedAt.UTC().Format(time.RFC3339)
		}
		rows = append(rows, map[string]string{
			"Name":              orNA(a.UserName),
			"Email":             orNA(a.UserEmail),
			"Student ID":        orNA(identifier),
			"Registration Date": a.RegisteredAt.UTC().Format(time.RFC3339),
			"Attendance Date":   attendedAt,
			"QR Code":           orNA(a.QRCode),
		})
	}
	return export.Dataset{
		Preamble: []string{
			"Event: " + event.Title,
			"Date: " + event.Date,
			"Location: " + event.Location,
			"Organizer: " + event.OrganizerName,
			fmt.Sprintf("Confirmed Attendees: %d of %d registered", len(confirmed), len(event.Attendees)),
			"",
		},
		Headers: []string{"Name", "Email", "Student ID", "Registration Date", "Attendance Date", "QR Code"},
		Rows:    rows,
	}
}

func orNA(v string) string {
	if v == "" {
		return "N/A"
	}
	return v
}

type rosterDocument struct {
	Event              rosterEventInfo   `json:"event"`
	Summary            rosterSummary     `json:"summary"`
	ConfirmedAttendees []models.Attendee `json:"confirmedAttendees"`
}

type rosterEventInfo struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Date         string `json:"date"`
	Location     string `json:"location"`
	Organizer    string `json:"organizer"`
	MaxAttendees int    `json:"maxAttendees"`
}

type rosterSummary struct {
	TotalConfirmedAttendees int    `json:"totalConfirmedAttendees"`
	TotalRegistered         int    `json:"totalRegistered"`
	AttendanceRate          string `json:"attendanceRate"`
}

func eventRosterJSON(event *models.Event, confirmed []models.Attendee) ([]byte, error) {
	rate := "0%"
	if len(event.Attendees) > 0 {
		rate = fmt.Sprintf("%.2f%%", float64(len(confirmed))/float64(len(event.Attendees))*100)
	}
	doc := rosterDocument{
		Event: rosterEventInfo{
			ID:           event.ID,
			Title:        event.Title,
			Date:         event.Date,
			Location:     event.Location,
			Organizer:    event.OrganizerName,
			MaxAttendees: event.MaxAttendees,
		},
		Summary: rosterSummary{
			TotalConfirmedAttendees: len(confirmed),
			TotalRegistered:         len(event.Attendees),
			AttendanceRate:          rate,
		},
		ConfirmedAttendees: confirmed,
	}
	return json.MarshalIndent(doc, "", "  ")
}

func archiveReportDataset(archived []models.ArchivedEvent) export.Dataset {
	rows := make([]map[string]string, 0, len(archived))
	for _, a := range archived {
		rows = append(rows, map[string]string{
			"Title":           a.Title,
			"Date":            a.Date,
			"Location":        a.Location,
			"Organizer":       a.OrganizerName,
			"Category":        a.Category,
			"Registered":      fmt.Sprintf("%d", a.TotalRegistered),
			"Attendance Rate": a.AttendanceRate,
			"Archived At":     a.ArchivedAt.UTC().Format(time.RFC3339),
		})
	}
	return export.Dataset{
		Headers: []string{"Title", "Date", "Location", "Organizer", "Category", "Registered", "Attendance Rate", "Archived At"},
		Rows:    rows,
	}
}

// sanitizeFilename lowercases the event title and collapses anything outside
// [a-z0-9] to underscores so the result is safe for any filesystem.
func sanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	cleaned := b.String()
	if strings.Trim(cleaned, "_") == "" {
		return "event"
	}
	return cleaned
}

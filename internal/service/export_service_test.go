package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/storage"
)

type mockExportJobStore struct {
	jobs map[string]*models.ExportJob
}

func newMockExportJobStore() *mockExportJobStore {
	return &mockExportJobStore{jobs: make(map[string]*models.ExportJob)}
}

func (m *mockExportJobStore) Create(ctx context.Context, job *models.ExportJob) error {
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *mockExportJobStore) GetByID(ctx context.Context, id string) (*models.ExportJob, error) {
	job, ok := m.jobs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *job
	return &copied, nil
}

func (m *mockExportJobStore) UpdateStatus(ctx context.Context, id string, status models.ExportJobStatus, resultPath, errMessage *string) error {
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	job.Status = status
	job.ResultPath = resultPath
	job.ErrorMessage = errMessage
	return nil
}

func (m *mockExportJobStore) ListByRequester(ctx context.Context, userID string) ([]models.ExportJob, error) {
	var jobs []models.ExportJob
	for _, job := range m.jobs {
		if job.RequestedBy == userID {
			jobs = append(jobs, *job)
		}
	}
	return jobs, nil
}

func newExportFixture(t *testing.T, events ...*models.Event) (*ExportService, *mockEventStore, *mockArchiveStore, *mockExportJobStore) {
	t.Helper()
	store := newMockEventStore(events...)
	archive := newMockArchiveStore()
	jobsStore := newMockExportJobStore()
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	svc := NewExportService(store, archive, jobsStore, local, signer, zap.NewNop(), ExportConfig{WorkerConcurrency: 1})
	return svc, store, archive, jobsStore
}

func rosterEvent() *models.Event {
	now := time.Now().UTC()
	event := upcomingEvent("e1", 10)
	event.Attendees = []models.Attendee{
		{UserID: "u1", UserName: "Alice Chen", UserEmail: "alice@campus.edu", UserRole: models.RoleStudent, StudentID: "S-1001", RegisteredAt: now, Attended: true, AttendedAt: &now},
		{UserID: "u2", UserName: "Bob Singh", UserEmail: "bob@campus.edu", UserRole: models.RoleStudent, StudentID: "S-1002", RegisteredAt: now},
	}
	return event
}

func TestEventRosterCSV(t *testing.T) {
	svc, _, _, _ := newExportFixture(t, rosterEvent())

	file, err := svc.EventRoster(context.Background(), organizerClaims("org-1"), "e1", models.ExportFormatCSV)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))
	assert.Equal(t, "text/csv", file.ContentType)

	content := string(file.Data)
	assert.Contains(t, content, "Event: Robotics Workshop")
	assert.Contains(t, content, "Confirmed Attendees: 1 of 2 registered")
	assert.Contains(t, content, "Name,Email,Student ID,Registration Date,Attendance Date,QR Code")
	assert.Contains(t, content, "Alice Chen")
	assert.NotContains(t, content, "Bob Singh")
}

func TestEventRosterFilenameSanitized(t *testing.T) {
	event := rosterEvent()
	event.Title = "Robotics & AI: Demo Day!"
	svc, _, _, _ := newExportFixture(t, event)
	svc.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }

	file, err := svc.EventRoster(context.Background(), organizerClaims("org-1"), "e1", models.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, "robotics___ai__demo_day__attendees_2026-03-14.csv", file.Filename)
}

func TestEventRosterJSON(t *testing.T) {
	svc, _, _, _ := newExportFixture(t, rosterEvent())

	file, err := svc.EventRoster(context.Background(), organizerClaims("org-1"), "e1", models.ExportFormatJSON)
	require.NoError(t, err)

	var doc struct {
		Event struct {
			Title string `json:"title"`
		} `json:"event"`
		Summary struct {
			TotalConfirmedAttendees int    `json:"totalConfirmedAttendees"`
			TotalRegistered         int    `json:"totalRegistered"`
			AttendanceRate          string `json:"attendanceRate"`
		} `json:"summary"`
		ConfirmedAttendees []models.Attendee `json:"confirmedAttendees"`
	}
	require.NoError(t, json.Unmarshal(file.Data, &doc))
	assert.Equal(t, "Robotics Workshop", doc.Event.Title)
	assert.Equal(t, 1, doc.Summary.TotalConfirmedAttendees)
	assert.Equal(t, 2, doc.Summary.TotalRegistered)
	assert.Equal(t, "50.00%", doc.Summary.AttendanceRate)
	require.Len(t, doc.ConfirmedAttendees, 1)
	assert.Equal(t, "u1", doc.ConfirmedAttendees[0].UserID)
}

func TestEventRosterNoConfirmed(t *testing.T) {
	now := time.Now().UTC()
	event := upcomingEvent("e1", 10)
	event.Attendees = []models.Attendee{
		{UserID: "u2", UserName: "Bob Singh", UserEmail: "bob@campus.edu", UserRole: models.RoleStudent, RegisteredAt: now},
	}
	svc, _, _, _ := newExportFixture(t, event)

	_, err := svc.EventRoster(context.Background(), organizerClaims("org-1"), "e1", models.ExportFormatCSV)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrNoConfirmed.Code, appErr.Code)
}

func TestEventRosterStudentForbidden(t *testing.T) {
	svc, _, _, _ := newExportFixture(t, rosterEvent())

	_, err := svc.EventRoster(context.Background(), studentClaims("u1"), "e1", models.ExportFormatCSV)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestArchiveReportJobLifecycle(t *testing.T) {
	svc, _, archive, jobsStore := newExportFixture(t)
	require.NoError(t, archive.Create(context.Background(), &models.ArchivedEvent{
		OriginalEventID: "e1",
		Title:           "Winter Gala",
		Date:            "2026-01-10",
		TotalRegistered: 40,
		AttendanceRate:  "87.50",
		ArchivedAt:      time.Now().UTC(),
	}))

	svc.Start(context.Background())
	defer svc.Stop()

	job, err := svc.RequestArchiveReport(context.Background(), organizerClaims("org-1"), models.ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, models.ExportStatusQueued, job.Status)

	require.Eventually(t, func() bool {
		stored, err := jobsStore.GetByID(context.Background(), job.ID)
		return err == nil && stored.Status == models.ExportStatusFinished
	}, 5*time.Second, 10*time.Millisecond)

	finished, err := jobsStore.GetByID(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, finished.ResultPath)

	view, err := svc.JobStatus(context.Background(), organizerClaims("org-1"), job.ID)
	require.NoError(t, err)
	require.NotEmpty(t, view.DownloadToken)

	file, _, err := svc.Download(view.DownloadToken)
	require.NoError(t, err)
	defer file.Close()
}

func TestJobStatusOtherUserForbidden(t *testing.T) {
	svc, _, _, _ := newExportFixture(t)
	svc.Start(context.Background())
	defer svc.Stop()

	job, err := svc.RequestArchiveReport(context.Background(), organizerClaims("org-1"), models.ExportFormatPDF)
	require.NoError(t, err)

	_, err = svc.JobStatus(context.Background(), organizerClaims("org-2"), job.ID)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

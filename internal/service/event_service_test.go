package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type mockJournal struct {
	writes []repository.PendingWrite
}

func (m *mockJournal) JournalWrite(ctx context.Context, write repository.PendingWrite) error {
	m.writes = append(m.writes, write)
	return nil
}

func (m *mockJournal) DrainPendingWrites(ctx context.Context) ([]repository.PendingWrite, error) {
	writes := m.writes
	m.writes = nil
	return writes, nil
}

func (m *mockJournal) PendingWriteCount(ctx context.Context) (int64, error) {
	return int64(len(m.writes)), nil
}

type mockAuditor struct {
	logs []models.AuditLog
}

func (m *mockAuditor) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func newEventFixture(fallback bool, events ...*models.Event) (*EventService, *mockEventStore, *mockJournal, *mockAuditor) {
	store := newMockEventStore(events...)
	journal := &mockJournal{}
	auditor := &mockAuditor{}
	svc := NewEventService(store, auditor, disabledCache(), journal, NewMetricsService(), nil, zap.NewNop(), fallback)
	return svc, store, journal, auditor
}

func validCreateRequest() models.CreateEventRequest {
	return models.CreateEventRequest{
		Title:        "Spring Concert",
		Description:  "Open air concert",
		Date:         "2026-10-01",
		StartTime:    "19:00",
		EndTime:      "22:00",
		Location:     "Main Quad",
		Category:     "music",
		Tags:         []string{"music", "outdoor"},
		MaxAttendees: 200,
	}
}

func TestCreateEvent(t *testing.T) {
	svc, store, _, auditor := newEventFixture(false)

	event, err := svc.Create(context.Background(), organizerClaims("org-1"), validCreateRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "org-1", event.OrganizerID)
	assert.Equal(t, "Organizer org-1", event.OrganizerName)
	assert.True(t, event.IsPublic)
	assert.Contains(t, store.events, event.ID)
	require.Len(t, auditor.logs, 1)
	assert.Equal(t, models.AuditActionEventCreate, auditor.logs[0].Action)
}

func TestCreateEventStudentForbidden(t *testing.T) {
	svc, _, _, _ := newEventFixture(false)

	_, err := svc.Create(context.Background(), studentClaims("u1"), validCreateRequest())
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestCreateEventRejectsNonPositiveCapacity(t *testing.T) {
	svc, _, _, _ := newEventFixture(false)

	req := validCreateRequest()
	req.MaxAttendees = 0
	_, err := svc.Create(context.Background(), organizerClaims("org-1"), req)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestUpdateEventPatch(t *testing.T) {
	existing := upcomingEvent("e1", 10)
	svc, store, _, _ := newEventFixture(false, existing)

	title := "Renamed Workshop"
	capacity := 25
	updated, err := svc.Update(context.Background(), organizerClaims("org-2"), "e1", models.UpdateEventRequest{Title: &title, MaxAttendees: &capacity})
	require.NoError(t, err)
	assert.Equal(t, "Renamed Workshop", updated.Title)
	assert.Equal(t, 25, updated.MaxAttendees)
	assert.Equal(t, existing.Location, updated.Location)
	assert.Equal(t, "Renamed Workshop", store.events["e1"].Title)
}

func TestUpdateEventNotFound(t *testing.T) {
	svc, _, _, _ := newEventFixture(false)

	title := "x"
	_, err := svc.Update(context.Background(), organizerClaims("org-1"), "missing", models.UpdateEventRequest{Title: &title})
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrEventNotFound.Code, appErr.Code)
}

func TestDeleteEvent(t *testing.T) {
	svc, store, _, _ := newEventFixture(false, upcomingEvent("e1", 10))

	require.NoError(t, svc.Delete(context.Background(), organizerClaims("org-1"), "e1"))
	assert.NotContains(t, store.events, "e1")
}

func TestCreateFallsBackToJournalWhenStoreDown(t *testing.T) {
	svc, store, journal, _ := newEventFixture(true)
	store.failAll = true

	event, err := svc.Create(context.Background(), organizerClaims("org-1"), validCreateRequest())
	require.NoError(t, err)
	require.Len(t, journal.writes, 1)
	assert.Equal(t, "event_create", journal.writes[0].Kind)
	assert.Equal(t, event.ID, journal.writes[0].EventID)
}

func TestCreateFailsWithoutFallback(t *testing.T) {
	svc, store, journal, _ := newEventFixture(false)
	store.failAll = true

	_, err := svc.Create(context.Background(), organizerClaims("org-1"), validCreateRequest())
	require.Error(t, err)
	assert.Empty(t, journal.writes)
}

func TestReplayPendingWrites(t *testing.T) {
	svc, store, journal, _ := newEventFixture(true)

	store.failAll = true
	event, err := svc.Create(context.Background(), organizerClaims("org-1"), validCreateRequest())
	require.NoError(t, err)
	require.Len(t, journal.writes, 1)

	store.failAll = false
	require.NoError(t, svc.ReplayPendingWrites(context.Background()))
	assert.Empty(t, journal.writes)
	assert.Contains(t, store.events, event.ID)
}

package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/qrtoken"
)

type mockEventStore struct {
	events       map[string]*models.Event
	deleted      []string
	failAll      bool
	failRegister bool
	failRemove   bool
	failMark     bool
}

func newMockEventStore(events ...*models.Event) *mockEventStore {
	store := &mockEventStore{events: make(map[string]*models.Event)}
	for _, e := range events {
		store.events[e.ID] = e
	}
	return store
}

func (m *mockEventStore) GetByID(ctx context.Context, id string) (*models.Event, error) {
	if m.failAll {
		return nil, assertErr
	}
	event, ok := m.events[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *event
	return &copied, nil
}

func (m *mockEventStore) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	if m.failAll {
		return nil, 0, assertErr
	}
	var events []models.Event
	for _, e := range m.events {
		events = append(events, *e)
	}
	return events, len(events), nil
}

func (m *mockEventStore) ListAll(ctx context.Context) ([]models.Event, error) {
	events, _, err := m.List(ctx, models.EventFilter{})
	return events, err
}

func (m *mockEventStore) Create(ctx context.Context, event *models.Event) error {
	if m.failAll {
		return assertErr
	}
	m.events[event.ID] = event
	return nil
}

func (m *mockEventStore) Update(ctx context.Context, event *models.Event) error {
	if m.failAll {
		return assertErr
	}
	if _, ok := m.events[event.ID]; !ok {
		return sql.ErrNoRows
	}
	m.events[event.ID] = event
	return nil
}

func (m *mockEventStore) Delete(ctx context.Context, id string) error {
	if m.failAll {
		return assertErr
	}
	if _, ok := m.events[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.events, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockEventStore) GetAttendee(ctx context.Context, eventID, userID string) (*models.Attendee, error) {
	event, ok := m.events[eventID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	for i := range event.Attendees {
		if event.Attendees[i].UserID == userID {
			copied := event.Attendees[i]
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *mockEventStore) RegisterAttendee(ctx context.Context, eventID string, attendee *models.Attendee) error {
	if m.failAll || m.failRegister {
		return assertErr
	}
	event, ok := m.events[eventID]
	if !ok {
		return sql.ErrNoRows
	}
	for _, a := range event.Attendees {
		if a.UserID == attendee.UserID {
			return repository.ErrDuplicateAttendee
		}
	}
	if len(event.Attendees) >= event.MaxAttendees {
		return repository.ErrCapacityReached
	}
	event.Attendees = append(event.Attendees, *attendee)
	return nil
}

func (m *mockEventStore) RemoveAttendee(ctx context.Context, eventID, userID string) error {
	if m.failAll || m.failRemove {
		return assertErr
	}
	event, ok := m.events[eventID]
	if !ok {
		return sql.ErrNoRows
	}
	for i, a := range event.Attendees {
		if a.UserID != userID {
			continue
		}
		if a.Attended {
			return repository.ErrAttendeeAttended
		}
		event.Attendees = append(event.Attendees[:i], event.Attendees[i+1:]...)
		return nil
	}
	return sql.ErrNoRows
}

func (m *mockEventStore) MarkAttended(ctx context.Context, eventID, userID, token string, at time.Time) (*models.Attendee, error) {
	if m.failAll || m.failMark {
		return nil, assertErr
	}
	event, ok := m.events[eventID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	for i := range event.Attendees {
		a := &event.Attendees[i]
		if a.UserID != userID {
			continue
		}
		if a.QRCode != token {
			return nil, repository.ErrQRCodeMismatch
		}
		if a.Attended {
			copied := *a
			return &copied, repository.ErrAttendeeAttended
		}
		a.Attended = true
		a.AttendedAt = &at
		copied := *a
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

type mockUserStore struct {
	users map[string]*models.User
}

func (m *mockUserStore) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := m.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *user
	return &copied, nil
}

var assertErr = sql.ErrConnDone

func disabledCache() *CacheService {
	return NewCacheService(nil, nil, 0, zap.NewNop(), false)
}

func upcomingEvent(id string, maxAttendees int) *models.Event {
	return &models.Event{
		ID:           id,
		Title:        "Robotics Workshop",
		Date:         time.Now().UTC().AddDate(0, 0, 7).Format(models.DateLayout),
		Location:     "Lab 3",
		OrganizerID:  "org-1",
		Category:     "tech",
		MaxAttendees: maxAttendees,
	}
}

func studentClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleStudent, FullName: "Student " + id}
}

func organizerClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleOrganizer, FullName: "Organizer " + id}
}

func newRegistrationFixture(events ...*models.Event) (*RegistrationService, *mockEventStore, *mockUserStore) {
	store := newMockEventStore(events...)
	users := &mockUserStore{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "u1@campus.edu", FullName: "Student u1", Role: models.RoleStudent, StudentID: "S-1001", Active: true},
		"u2": {ID: "u2", Email: "u2@campus.edu", FullName: "Student u2", Role: models.RoleStudent, StudentID: "S-1002", Active: true},
	}}
	svc := NewRegistrationService(store, users, disabledCache(), nil, NewMetricsService(), zap.NewNop(), false)
	return svc, store, users
}

func TestRegisterMintsParseableToken(t *testing.T) {
	svc, store, _ := newRegistrationFixture(upcomingEvent("e1", 10))

	attendee, err := svc.Register(context.Background(), studentClaims("u1"), "e1")
	require.NoError(t, err)
	require.NotEmpty(t, attendee.QRCode)

	token, err := qrtoken.Parse(attendee.QRCode)
	require.NoError(t, err)
	assert.Equal(t, "e1", token.EventID)
	assert.Equal(t, "u1", token.UserID)
	assert.Len(t, store.events["e1"].Attendees, 1)
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _, _ := newRegistrationFixture(upcomingEvent("e1", 10))

	_, err := svc.Register(context.Background(), studentClaims("u1"), "e1")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), studentClaims("u1"), "e1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrAlreadyRegistered.Code, appErr.Code)
}

func TestRegisterLastSpot(t *testing.T) {
	svc, store, _ := newRegistrationFixture(upcomingEvent("e1", 1))

	_, err := svc.Register(context.Background(), studentClaims("u1"), "e1")
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), studentClaims("u2"), "e1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrEventFull.Code, appErr.Code)
	assert.Len(t, store.events["e1"].Attendees, 1)
}

func TestRegisterRequiresStudentRole(t *testing.T) {
	svc, _, _ := newRegistrationFixture(upcomingEvent("e1", 10))

	_, err := svc.Register(context.Background(), organizerClaims("org-1"), "e1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErr.Code)
}

func TestRegisterUnknownEvent(t *testing.T) {
	svc, _, _ := newRegistrationFixture()

	_, err := svc.Register(context.Background(), studentClaims("u1"), "missing")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrEventNotFound.Code, appErr.Code)
}

func TestRegisterEndedEvent(t *testing.T) {
	ended := upcomingEvent("e1", 10)
	ended.Date = time.Now().UTC().AddDate(0, 0, -2).Format(models.DateLayout)
	svc, _, _ := newRegistrationFixture(ended)

	_, err := svc.Register(context.Background(), studentClaims("u1"), "e1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrValidation.Code, appErr.Code)
}

func TestUnregister(t *testing.T) {
	svc, store, _ := newRegistrationFixture(upcomingEvent("e1", 10))

	_, err := svc.Register(context.Background(), studentClaims("u1"), "e1")
	require.NoError(t, err)

	require.NoError(t, svc.Unregister(context.Background(), studentClaims("u1"), "e1"))
	assert.Empty(t, store.events["e1"].Attendees)
}

func TestUnregisterAfterAttendanceRejected(t *testing.T) {
	svc, store, _ := newRegistrationFixture(upcomingEvent("e1", 10))

	attendee, err := svc.Register(context.Background(), studentClaims("u1"), "e1")
	require.NoError(t, err)

	_, err = store.MarkAttended(context.Background(), "e1", "u1", attendee.QRCode, time.Now().UTC())
	require.NoError(t, err)

	err = svc.Unregister(context.Background(), studentClaims("u1"), "e1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrCannotUnregister.Code, appErr.Code)
	assert.Len(t, store.events["e1"].Attendees, 1)
}

func newJournaledRegistrationFixture(events ...*models.Event) (*RegistrationService, *mockEventStore, *mockJournal) {
	store := newMockEventStore(events...)
	users := &mockUserStore{users: map[string]*models.User{
		"u1": {ID: "u1", Email: "u1@campus.edu", FullName: "Student u1", Role: models.RoleStudent, StudentID: "S-1001", Active: true},
	}}
	journal := &mockJournal{}
	svc := NewRegistrationService(store, users, disabledCache(), journal, NewMetricsService(), zap.NewNop(), true)
	return svc, store, journal
}

func TestRegisterJournaledDuringStoreOutage(t *testing.T) {
	svc, store, journal := newJournaledRegistrationFixture(upcomingEvent("e1", 10))
	store.failRegister = true

	attendee, err := svc.Register(context.Background(), studentClaims("u1"), "e1")
	require.NoError(t, err)
	require.NotEmpty(t, attendee.QRCode)
	assert.Empty(t, store.events["e1"].Attendees)

	require.Len(t, journal.writes, 1)
	assert.Equal(t, "attendee_register", journal.writes[0].Kind)
	assert.Equal(t, "e1", journal.writes[0].EventID)

	store.failRegister = false
	replayer := NewEventService(store, &mockAuditor{}, disabledCache(), journal, NewMetricsService(), nil, zap.NewNop(), true)
	require.NoError(t, replayer.ReplayPendingWrites(context.Background()))

	require.Len(t, store.events["e1"].Attendees, 1)
	assert.Equal(t, "u1", store.events["e1"].Attendees[0].UserID)
	assert.Equal(t, attendee.QRCode, store.events["e1"].Attendees[0].QRCode)
	assert.Empty(t, journal.writes)
}

func TestRegisterStoreOutageWithoutFallback(t *testing.T) {
	svc, store, _ := newRegistrationFixture(upcomingEvent("e1", 10))
	store.failRegister = true

	_, err := svc.Register(context.Background(), studentClaims("u1"), "e1")
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, appErrors.ErrUnavailable.Code, appErr.Code)
}

func TestUnregisterJournaledDuringStoreOutage(t *testing.T) {
	svc, store, journal := newJournaledRegistrationFixture(upcomingEvent("e1", 10))

	_, err := svc.Register(context.Background(), studentClaims("u1"), "e1")
	require.NoError(t, err)

	store.failRemove = true
	require.NoError(t, svc.Unregister(context.Background(), studentClaims("u1"), "e1"))
	assert.Len(t, store.events["e1"].Attendees, 1)

	require.Len(t, journal.writes, 1)
	assert.Equal(t, "attendee_unregister", journal.writes[0].Kind)

	store.failRemove = false
	replayer := NewEventService(store, &mockAuditor{}, disabledCache(), journal, NewMetricsService(), nil, zap.NewNop(), true)
	require.NoError(t, replayer.ReplayPendingWrites(context.Background()))
	assert.Empty(t, store.events["e1"].Attendees)
}

func TestRegistrationLookup(t *testing.T) {
	svc, _, _ := newRegistrationFixture(upcomingEvent("e1", 10))

	minted, err := svc.Register(context.Background(), studentClaims("u1"), "e1")
	require.NoError(t, err)

	found, err := svc.Registration(context.Background(), studentClaims("u1"), "e1")
	require.NoError(t, err)
	assert.Equal(t, minted.QRCode, found.QRCode)
}

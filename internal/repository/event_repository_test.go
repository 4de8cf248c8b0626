package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/models"
)

func eventRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "title", "description", "event_date", "start_time", "end_time", "location", "organizer_name", "organizer_id", "category", "tags", "max_attendees", "is_public", "created_at", "updated_at"}).
		AddRow("e1", "Tech Talk", "An evening talk", "2026-09-15", "18:00", "20:00", "Auditorium", "CS Club", "org-1", "tech", "{go,backend}", 50, true, now, now)
}

func attendeeRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "event_id", "user_id", "user_name", "user_email", "user_role", "student_id", "organization_name", "registered_at", "attended", "attended_at", "qr_code"}).
		AddRow("a1", "e1", "u1", "Student One", "student@campus.edu", string(models.RoleStudent), "S-1001", "", now, false, nil, "ATTEND-e1-u1-1757700000000")
}

func TestGetEventByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+eventColumns+" FROM events WHERE id = $1 LIMIT 1")).
		WithArgs("e1").
		WillReturnRows(eventRows(now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+attendeeColumns+" FROM attendees WHERE event_id = $1 ORDER BY registered_at ASC")).
		WithArgs("e1").
		WillReturnRows(attendeeRows(now))

	event, err := repo.GetByID(context.Background(), "e1")
	require.NoError(t, err)
	assert.Equal(t, "Tech Talk", event.Title)
	require.Len(t, event.Attendees, 1)
	assert.Equal(t, "u1", event.Attendees[0].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEventByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+eventColumns+" FROM events WHERE id = $1 LIMIT 1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterAttendee(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_attendees FROM events WHERE id = $1 FOR UPDATE")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"max_attendees"}).AddRow(50))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendees WHERE event_id = $1")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectExec("INSERT INTO attendees").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	attendee := &models.Attendee{UserID: "u1", UserName: "Student One", QRCode: "ATTEND-e1-u1-1757700000000"}
	err := repo.RegisterAttendee(context.Background(), "e1", attendee)
	require.NoError(t, err)
	assert.Equal(t, "e1", attendee.EventID)
	assert.NotEmpty(t, attendee.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterAttendeeCapacityReached(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_attendees FROM events WHERE id = $1 FOR UPDATE")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"max_attendees"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendees WHERE event_id = $1")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectRollback()

	err := repo.RegisterAttendee(context.Background(), "e1", &models.Attendee{UserID: "u2"})
	assert.ErrorIs(t, err, ErrCapacityReached)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterAttendeeDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT max_attendees FROM events WHERE id = $1 FOR UPDATE")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"max_attendees"}).AddRow(50))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM attendees WHERE event_id = $1")).
		WithArgs("e1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectExec("INSERT INTO attendees").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	err := repo.RegisterAttendee(context.Background(), "e1", &models.Attendee{UserID: "u1"})
	assert.ErrorIs(t, err, ErrDuplicateAttendee)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRemoveAttendeeAfterAttendance(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT attended FROM attendees WHERE event_id = $1 AND user_id = $2 FOR UPDATE")).
		WithArgs("e1", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"attended"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.RemoveAttendee(context.Background(), "e1", "u1")
	assert.ErrorIs(t, err, ErrAttendeeAttended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAttended(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+attendeeColumns+" FROM attendees WHERE event_id = $1 AND user_id = $2 FOR UPDATE")).
		WithArgs("e1", "u1").
		WillReturnRows(attendeeRows(now))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE attendees SET attended = TRUE, attended_at = $3 WHERE event_id = $1 AND user_id = $2")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	attendee, err := repo.MarkAttended(context.Background(), "e1", "u1", "ATTEND-e1-u1-1757700000000", now)
	require.NoError(t, err)
	assert.True(t, attendee.Attended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAttendedQRCodeMismatch(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+attendeeColumns+" FROM attendees WHERE event_id = $1 AND user_id = $2 FOR UPDATE")).
		WithArgs("e1", "u1").
		WillReturnRows(attendeeRows(now))
	mock.ExpectRollback()

	_, err := repo.MarkAttended(context.Background(), "e1", "u1", "ATTEND-e1-u1-999", now)
	assert.ErrorIs(t, err, ErrQRCodeMismatch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAttendedAlreadyAttended(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewEventRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "event_id", "user_id", "user_name", "user_email", "user_role", "student_id", "organization_name", "registered_at", "attended", "attended_at", "qr_code"}).
		AddRow("a1", "e1", "u1", "Student One", "student@campus.edu", string(models.RoleStudent), "S-1001", "", now, true, now, "ATTEND-e1-u1-1757700000000")
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+attendeeColumns+" FROM attendees WHERE event_id = $1 AND user_id = $2 FOR UPDATE")).
		WithArgs("e1", "u1").
		WillReturnRows(rows)
	mock.ExpectRollback()

	attendee, err := repo.MarkAttended(context.Background(), "e1", "u1", "ATTEND-e1-u1-1757700000000", now)
	assert.ErrorIs(t, err, ErrAttendeeAttended)
	require.NotNil(t, attendee)
	assert.True(t, attendee.Attended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

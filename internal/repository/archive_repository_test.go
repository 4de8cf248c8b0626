package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/models"
)

func TestCreateArchivedEventDuplicate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewArchiveRepository(db)

	mock.ExpectExec("INSERT INTO archived_events").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Create(context.Background(), &models.ArchivedEvent{OriginalEventID: "e1", Title: "Tech Talk"})
	assert.ErrorIs(t, err, ErrAlreadyArchived)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListArchivedEvents(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewArchiveRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "original_event_id", "title", "description", "event_date", "start_time", "end_time", "location", "organizer_name", "organizer_id", "category", "total_registered", "attendance_rate", "confirmed_attendees", "archived_at"}).
		AddRow("ar1", "e1", "Tech Talk", "", "2026-01-10", "18:00", "20:00", "Auditorium", "CS Club", "org-1", "tech", 2, "50.00", []byte(`[{"userId":"u1","userName":"Student One","userEmail":"student@campus.edu","userRole":"student","registeredAt":"2026-01-01T10:00:00Z","attended":true,"qrCode":"ATTEND-e1-u1-1"}]`), now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT "+archiveColumns+" FROM archived_events ORDER BY archived_at DESC")).
		WillReturnRows(rows)

	archived, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "50.00", archived[0].AttendanceRate)
	require.Len(t, archived[0].ConfirmedAttendees, 1)
	assert.Equal(t, "u1", archived[0].ConfirmedAttendees[0].UserID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

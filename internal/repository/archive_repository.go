package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-events-api/internal/models"
)

const archiveColumns = `id, original_event_id, title, description, event_date, start_time, end_time, location, organizer_name, organizer_id, category, total_registered, attendance_rate, confirmed_attendees, archived_at`

// ArchiveRepository stores immutable snapshots of expired events.
type ArchiveRepository struct {
	db *sqlx.DB
}

// NewArchiveRepository creates a new instance of ArchiveRepository.
func NewArchiveRepository(db *sqlx.DB) *ArchiveRepository {
	return &ArchiveRepository{db: db}
}

// Create inserts an archived event. A snapshot already present for the same
// original event reports ErrAlreadyArchived so re-entrant sweeps can treat it
// as a no-op.
func (r *ArchiveRepository) Create(ctx context.Context, archived *models.ArchivedEvent) error {
	if archived.ID == "" {
		archived.ID = uuid.NewString()
	}
	if archived.ArchivedAt.IsZero() {
		archived.ArchivedAt = time.Now().UTC()
	}
	if err := archived.EncodeAttendees(); err != nil {
		return fmt.Errorf("encode archived attendees: %w", err)
	}

	const query = `INSERT INTO archived_events (id, original_event_id, title, description, event_date, start_time, end_time, location, organizer_name, organizer_id, category, total_registered, attendance_rate, confirmed_attendees, archived_at)
		VALUES (:id, :original_event_id, :title, :description, :event_date, :start_time, :end_time, :location, :organizer_name, :organizer_id, :category, :total_registered, :attendance_rate, :confirmed_attendees, :archived_at)`
	if _, err := r.db.NamedExecContext(ctx, query, archived); err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyArchived
		}
		return fmt.Errorf("create archived event: %w", err)
	}
	return nil
}

// List returns archived events, most recently archived first.
func (r *ArchiveRepository) List(ctx context.Context) ([]models.ArchivedEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM archived_events ORDER BY archived_at DESC`, archiveColumns)
	var archived []models.ArchivedEvent
	if err := r.db.SelectContext(ctx, &archived, query); err != nil {
		return nil, fmt.Errorf("list archived events: %w", err)
	}
	for i := range archived {
		if err := archived[i].DecodeAttendees(); err != nil {
			return nil, fmt.Errorf("decode archived attendees: %w", err)
		}
	}
	return archived, nil
}

// GetByID returns a single archived event.
func (r *ArchiveRepository) GetByID(ctx context.Context, id string) (*models.ArchivedEvent, error) {
	query := fmt.Sprintf(`SELECT %s FROM archived_events WHERE id = $1 LIMIT 1`, archiveColumns)
	var archived models.ArchivedEvent
	if err := r.db.GetContext(ctx, &archived, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get archived event: %w", err)
	}
	if err := archived.DecodeAttendees(); err != nil {
		return nil, fmt.Errorf("decode archived attendees: %w", err)
	}
	return &archived, nil
}

// Delete permanently removes an archived event.
func (r *ArchiveRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM archived_events WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete archived event: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// DeleteArchivedBefore removes archived events older than the cutoff and
// returns how many were deleted. Used by the retention job.
func (r *ArchiveRepository) DeleteArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM archived_events WHERE archived_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention delete: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return affected, nil
}

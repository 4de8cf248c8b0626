package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-events-api/internal/models"
)

const eventColumns = `id, title, description, event_date, start_time, end_time, location, organizer_name, organizer_id, category, tags, max_attendees, is_public, created_at, updated_at`

const attendeeColumns = `id, event_id, user_id, user_name, user_email, user_role, student_id, organization_name, registered_at, attended, attended_at, qr_code`

// EventRepository provides database access for events and their attendees.
type EventRepository struct {
	db *sqlx.DB
}

// NewEventRepository creates a new instance of EventRepository.
func NewEventRepository(db *sqlx.DB) *EventRepository {
	return &EventRepository{db: db}
}

// GetByID returns an event with its attendees loaded.
func (r *EventRepository) GetByID(ctx context.Context, id string) (*models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events WHERE id = $1 LIMIT 1`, eventColumns)
	var event models.Event
	if err := r.db.GetContext(ctx, &event, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get event: %w", err)
	}
	attendees, err := r.ListAttendees(ctx, id)
	if err != nil {
		return nil, err
	}
	event.Attendees = attendees
	return &event, nil
}

// List returns events matching the filter with attendees attached and a total count.
func (r *EventRepository) List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error) {
	baseQuery := `FROM events WHERE 1=1`
	var conditions []string
	var args []interface{}

	if filter.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, filter.Category)
	}
	if filter.OrganizerID != "" {
		conditions = append(conditions, fmt.Sprintf("organizer_id = $%d", len(args)+1))
		args = append(args, filter.OrganizerID)
	}
	if filter.Public != nil {
		conditions = append(conditions, fmt.Sprintf("is_public = $%d", len(args)+1))
		args = append(args, *filter.Public)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("(LOWER(title) LIKE $%d OR LOWER(location) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+strings.ToLower(filter.Search)+"%")
	}

	if len(conditions) > 0 {
		baseQuery += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"event_date": true,
		"title":      true,
		"created_at": true,
		"updated_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "event_date"
	}

	sortOrder := strings.ToUpper(filter.SortOrder)
	if sortOrder != "ASC" && sortOrder != "DESC" {
		sortOrder = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	listQuery := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", eventColumns, baseQuery, sortBy, sortOrder, pageSize, offset)

	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, listQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", baseQuery)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	if err := r.attachAttendees(ctx, events); err != nil {
		return nil, 0, err
	}

	return events, total, nil
}

// ListAll returns every active event with attendees, for the expiration sweep.
func (r *EventRepository) ListAll(ctx context.Context) ([]models.Event, error) {
	query := fmt.Sprintf(`SELECT %s FROM events ORDER BY event_date ASC`, eventColumns)
	var events []models.Event
	if err := r.db.SelectContext(ctx, &events, query); err != nil {
		return nil, fmt.Errorf("list all events: %w", err)
	}
	if err := r.attachAttendees(ctx, events); err != nil {
		return nil, err
	}
	return events, nil
}

// Create inserts a new event.
func (r *EventRepository) Create(ctx context.Context, event *models.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	event.UpdatedAt = now
	if event.Tags == nil {
		event.Tags = pq.StringArray{}
	}

	const query = `INSERT INTO events (id, title, description, event_date, start_time, end_time, location, organizer_name, organizer_id, category, tags, max_attendees, is_public, created_at, updated_at)
		VALUES (:id, :title, :description, :event_date, :start_time, :end_time, :location, :organizer_name, :organizer_id, :category, :tags, :max_attendees, :is_public, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// Update updates mutable fields of an event.
func (r *EventRepository) Update(ctx context.Context, event *models.Event) error {
	event.UpdatedAt = time.Now().UTC()
	if event.Tags == nil {
		event.Tags = pq.StringArray{}
	}
	const query = `UPDATE events SET title = :title, description = :description, event_date = :event_date, start_time = :start_time, end_time = :end_time, location = :location, category = :category, tags = :tags, max_attendees = :max_attendees, is_public = :is_public, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, event)
	if err != nil {
		return fmt.Errorf("update event: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes an event; attendees cascade.
func (r *EventRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM events WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete event: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListAttendees returns the attendee list for an event ordered by registration time.
func (r *EventRepository) ListAttendees(ctx context.Context, eventID string) ([]models.Attendee, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendees WHERE event_id = $1 ORDER BY registered_at ASC`, attendeeColumns)
	attendees := []models.Attendee{}
	if err := r.db.SelectContext(ctx, &attendees, query, eventID); err != nil {
		return nil, fmt.Errorf("list attendees: %w", err)
	}
	return attendees, nil
}

// GetAttendee returns the registration record for a user on an event.
func (r *EventRepository) GetAttendee(ctx context.Context, eventID, userID string) (*models.Attendee, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendees WHERE event_id = $1 AND user_id = $2 LIMIT 1`, attendeeColumns)
	var attendee models.Attendee
	if err := r.db.GetContext(ctx, &attendee, query, eventID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("get attendee: %w", err)
	}
	return &attendee, nil
}

// RegisterAttendee appends a registration iff the user is not already present
// and the event is under capacity. The capacity check and insert run in one
// transaction against a locked event row, so concurrent registrations cannot
// both observe a free spot and overshoot maxAttendees.
func (r *EventRepository) RegisterAttendee(ctx context.Context, eventID string, attendee *models.Attendee) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var maxAttendees int
	if err := tx.GetContext(ctx, &maxAttendees, `SELECT max_attendees FROM events WHERE id = $1 FOR UPDATE`, eventID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock event: %w", err)
	}

	var registered int
	if err := tx.GetContext(ctx, &registered, `SELECT COUNT(*) FROM attendees WHERE event_id = $1`, eventID); err != nil {
		return fmt.Errorf("count attendees: %w", err)
	}
	if registered >= maxAttendees {
		return ErrCapacityReached
	}

	if attendee.ID == "" {
		attendee.ID = uuid.NewString()
	}
	attendee.EventID = eventID
	if attendee.RegisteredAt.IsZero() {
		attendee.RegisteredAt = time.Now().UTC()
	}

	const insert = `INSERT INTO attendees (id, event_id, user_id, user_name, user_email, user_role, student_id, organization_name, registered_at, attended, attended_at, qr_code)
		VALUES (:id, :event_id, :user_id, :user_name, :user_email, :user_role, :student_id, :organization_name, :registered_at, :attended, :attended_at, :qr_code)`
	if _, err := tx.NamedExecContext(ctx, insert, attendee); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAttendee
		}
		return fmt.Errorf("insert attendee: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit registration: %w", err)
	}
	return nil
}

// RemoveAttendee deletes a registration unless attendance was already confirmed.
func (r *EventRepository) RemoveAttendee(ctx context.Context, eventID, userID string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin unregistration: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var attended bool
	if err := tx.GetContext(ctx, &attended, `SELECT attended FROM attendees WHERE event_id = $1 AND user_id = $2 FOR UPDATE`, eventID, userID); err != nil {
		if err == sql.ErrNoRows {
			return err
		}
		return fmt.Errorf("lock attendee: %w", err)
	}
	if attended {
		return ErrAttendeeAttended
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendees WHERE event_id = $1 AND user_id = $2`, eventID, userID); err != nil {
		return fmt.Errorf("delete attendee: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit unregistration: %w", err)
	}
	return nil
}

// MarkAttended flips the attended flag exactly once for the attendee whose
// stored QR code equals the scanned token verbatim.
func (r *EventRepository) MarkAttended(ctx context.Context, eventID, userID, token string, at time.Time) (*models.Attendee, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin attendance: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query := fmt.Sprintf(`SELECT %s FROM attendees WHERE event_id = $1 AND user_id = $2 FOR UPDATE`, attendeeColumns)
	var attendee models.Attendee
	if err := tx.GetContext(ctx, &attendee, query, eventID, userID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock attendee: %w", err)
	}

	if attendee.QRCode != token {
		return nil, ErrQRCodeMismatch
	}
	if attendee.Attended {
		return &attendee, ErrAttendeeAttended
	}

	attendee.Attended = true
	attendee.AttendedAt = &at
	if _, err := tx.ExecContext(ctx, `UPDATE attendees SET attended = TRUE, attended_at = $3 WHERE event_id = $1 AND user_id = $2`, eventID, userID, at); err != nil {
		return nil, fmt.Errorf("mark attended: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit attendance: %w", err)
	}
	return &attendee, nil
}

func (r *EventRepository) attachAttendees(ctx context.Context, events []models.Event) error {
	if len(events) == 0 {
		return nil
	}
	ids := make([]string, len(events))
	index := make(map[string]int, len(events))
	for i := range events {
		ids[i] = events[i].ID
		index[events[i].ID] = i
		events[i].Attendees = []models.Attendee{}
	}

	query := fmt.Sprintf(`SELECT %s FROM attendees WHERE event_id = ANY($1) ORDER BY registered_at ASC`, attendeeColumns)
	var attendees []models.Attendee
	if err := r.db.SelectContext(ctx, &attendees, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("attach attendees: %w", err)
	}
	for _, attendee := range attendees {
		if i, ok := index[attendee.EventID]; ok {
			events[i].Attendees = append(events[i].Attendees, attendee)
		}
	}
	return nil
}

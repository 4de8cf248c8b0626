package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

const (
	eventCachePrefix     = "events:"
	eventListCachePrefix = "events:list:"
	maxReplayAttempts    = 5
)

type eventRepository interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
	List(ctx context.Context, filter models.EventFilter) ([]models.Event, int, error)
	Create(ctx context.Context, event *models.Event) error
	Update(ctx context.Context, event *models.Event) error
	Delete(ctx context.Context, id string) error
	RegisterAttendee(ctx context.Context, eventID string, attendee *models.Attendee) error
	RemoveAttendee(ctx context.Context, eventID, userID string) error
	MarkAttended(ctx context.Context, eventID, userID, token string, at time.Time) (*models.Attendee, error)
}

type eventAuditor interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type writeJournal interface {
	JournalWrite(ctx context.Context, write repository.PendingWrite) error
	DrainPendingWrites(ctx context.Context) ([]repository.PendingWrite, error)
	PendingWriteCount(ctx context.Context) (int64, error)
}

// EventService provides event CRUD use cases with caching and the
// journaled-write fallback for store outages.
type EventService struct {
	repo            eventRepository
	auditor         eventAuditor
	cache           *CacheService
	journal         writeJournal
	metrics         *MetricsService
	validator       *validator.Validate
	logger          *zap.Logger
	fallbackEnabled bool
}

// NewEventService constructs an EventService instance.
func NewEventService(repo eventRepository, auditor eventAuditor, cache *CacheService, journal writeJournal, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, fallbackEnabled bool) *EventService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &EventService{
		repo:            repo,
		auditor:         auditor,
		cache:           cache,
		journal:         journal,
		metrics:         metrics,
		validator:       validate,
		logger:          logger,
		fallbackEnabled: fallbackEnabled,
	}
}

type cachedEventList struct {
	Events []models.Event `json:"events"`
	Total  int            `json:"total"`
}

// List returns events matching the filter plus pagination metadata.
func (s *EventService) List(ctx context.Context, filter models.EventFilter) ([]models.Event, *models.Pagination, error) {
	cacheKey := makeEventListCacheKey(filter)
	var cached cachedEventList
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return cached.Events, paginationFor(filter, cached.Total), nil
	}

	events, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list events")
	}

	if err := s.cache.Set(ctx, cacheKey, cachedEventList{Events: events, Total: total}, 0); err != nil {
		s.logger.Debug("event list cache population failed", zap.Error(err))
	}

	return events, paginationFor(filter, total), nil
}

// Get returns a single event with its attendees.
func (s *EventService) Get(ctx context.Context, id string) (*models.Event, error) {
	cacheKey := eventCachePrefix + id
	var cached models.Event
	if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
		return &cached, nil
	}

	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrEventNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}

	if err := s.cache.Set(ctx, cacheKey, event, 0); err != nil {
		s.logger.Debug("event cache population failed", zap.Error(err))
	}

	return event, nil
}

// Create adds a new event owned by the acting organizer.
func (s *EventService) Create(ctx context.Context, actor *models.JWTClaims, req models.CreateEventRequest) (*models.Event, error) {
	if !CanManageEvents(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only organizers can create events")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	event := &models.Event{
		ID:            uuid.NewString(),
		Title:         req.Title,
		Description:   req.Description,
		Date:          req.Date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Location:      req.Location,
		OrganizerName: actor.FullName,
		OrganizerID:   actor.UserID,
		Category:      req.Category,
		Tags:          pq.StringArray(req.Tags),
		MaxAttendees:  req.MaxAttendees,
		IsPublic:      isPublic,
		Attendees:     []models.Attendee{},
	}

	if err := s.repo.Create(ctx, event); err != nil {
		if journalErr := s.journalFallback(ctx, "event_create", event.ID, event); journalErr == nil {
			s.invalidate(ctx)
			return event, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create event")
	}

	s.audit(ctx, actor.UserID, models.AuditActionEventCreate, event.ID, event)
	s.invalidate(ctx)
	return event, nil
}

// Update modifies an existing event. Any organizer may update any event.
func (s *EventService) Update(ctx context.Context, actor *models.JWTClaims, id string, req models.UpdateEventRequest) (*models.Event, error) {
	if !CanManageEvents(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only organizers can update events")
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid event payload")
	}

	event, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrEventNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}

	applyEventPatch(event, req)

	if err := s.repo.Update(ctx, event); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrEventNotFound, "")
		}
		if journalErr := s.journalFallback(ctx, "event_update", event.ID, event); journalErr == nil {
			s.invalidate(ctx)
			return event, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update event")
	}

	s.audit(ctx, actor.UserID, models.AuditActionEventUpdate, event.ID, event)
	s.invalidate(ctx)
	return event, nil
}

// Delete removes an event and its registrations.
func (s *EventService) Delete(ctx context.Context, actor *models.JWTClaims, id string) error {
	if !CanManageEvents(actor.Role) {
		return appErrors.Clone(appErrors.ErrForbidden, "only organizers can delete events")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrEventNotFound, "")
		}
		if journalErr := s.journalFallback(ctx, "event_delete", id, nil); journalErr == nil {
			s.invalidate(ctx)
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete event")
	}

	s.audit(ctx, actor.UserID, models.AuditActionEventDelete, id, nil)
	s.invalidate(ctx)
	return nil
}

// ReplayPendingWrites applies journaled mutations once the store is
// reachable again. Writes that keep failing are re-journaled up to a
// bounded number of attempts.
func (s *EventService) ReplayPendingWrites(ctx context.Context) error {
	if s.journal == nil {
		return nil
	}
	writes, err := s.journal.DrainPendingWrites(ctx)
	if err != nil {
		return err
	}
	var replayed int
	for _, write := range writes {
		if err := s.applyPendingWrite(ctx, write); err != nil {
			write.Attempts++
			if write.Attempts >= maxReplayAttempts {
				s.logger.Error("dropping pending write after repeated failures",
					zap.String("kind", write.Kind),
					zap.String("event_id", write.EventID),
					zap.Error(err))
				continue
			}
			if err := s.journal.JournalWrite(ctx, write); err != nil {
				s.logger.Error("failed to re-journal pending write", zap.Error(err))
			}
			continue
		}
		replayed++
	}
	if replayed > 0 {
		s.logger.Info("replayed pending writes", zap.Int("count", replayed))
		s.invalidate(ctx)
	}
	if depth, err := s.journal.PendingWriteCount(ctx); err == nil {
		s.metrics.SetPendingWrites(depth)
	}
	return nil
}

func (s *EventService) applyPendingWrite(ctx context.Context, write repository.PendingWrite) error {
	switch write.Kind {
	case "event_create":
		var event models.Event
		if err := json.Unmarshal(write.Payload, &event); err != nil {
			return fmt.Errorf("decode journaled event: %w", err)
		}
		return s.repo.Create(ctx, &event)
	case "event_update":
		var event models.Event
		if err := json.Unmarshal(write.Payload, &event); err != nil {
			return fmt.Errorf("decode journaled event: %w", err)
		}
		if err := s.repo.Update(ctx, &event); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return nil
	case "event_delete":
		if err := s.repo.Delete(ctx, write.EventID); err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return nil
	case "attendee_register":
		var attendee models.Attendee
		if err := json.Unmarshal(write.Payload, &attendee); err != nil {
			return fmt.Errorf("decode journaled attendee: %w", err)
		}
		err := s.repo.RegisterAttendee(ctx, write.EventID, &attendee)
		if isTerminalReplayError(err) {
			s.logger.Warn("journaled registration no longer applies",
				zap.String("event_id", write.EventID),
				zap.String("user_id", attendee.UserID),
				zap.Error(err))
			return nil
		}
		return err
	case "attendee_unregister":
		var removal attendeeRemovalWrite
		if err := json.Unmarshal(write.Payload, &removal); err != nil {
			return fmt.Errorf("decode journaled removal: %w", err)
		}
		err := s.repo.RemoveAttendee(ctx, write.EventID, removal.UserID)
		if isTerminalReplayError(err) {
			return nil
		}
		return err
	case "attendance_mark":
		var mark attendanceMarkWrite
		if err := json.Unmarshal(write.Payload, &mark); err != nil {
			return fmt.Errorf("decode journaled attendance: %w", err)
		}
		_, err := s.repo.MarkAttended(ctx, write.EventID, mark.UserID, mark.Token, mark.At)
		if isTerminalReplayError(err) {
			return nil
		}
		return err
	default:
		s.logger.Warn("unknown pending write kind", zap.String("kind", write.Kind))
		return nil
	}
}

func (s *EventService) journalFallback(ctx context.Context, kind, eventID string, payload interface{}) error {
	return journalPendingWrite(ctx, s.journal, s.fallbackEnabled, s.metrics, kind, eventID, payload)
}

// journalPendingWrite parks a failed mutation in the write journal. With the
// fallback disabled it refuses with UNAVAILABLE so the outage surfaces.
func journalPendingWrite(ctx context.Context, journal writeJournal, enabled bool, metrics *MetricsService, kind, eventID string, payload interface{}) error {
	if !enabled || journal == nil {
		return appErrors.Clone(appErrors.ErrUnavailable, "")
	}
	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		raw = encoded
	}
	if err := journal.JournalWrite(ctx, repository.PendingWrite{Kind: kind, EventID: eventID, Payload: raw}); err != nil {
		return err
	}
	if depth, err := journal.PendingWriteCount(ctx); err == nil {
		metrics.SetPendingWrites(depth)
	}
	return nil
}

// isTerminalReplayError reports whether a replayed write hit a state that
// retrying can never resolve, such as a seat filled while the store was down.
func isTerminalReplayError(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, sql.ErrNoRows),
		errors.Is(err, repository.ErrDuplicateAttendee),
		errors.Is(err, repository.ErrCapacityReached),
		errors.Is(err, repository.ErrAttendeeAttended),
		errors.Is(err, repository.ErrQRCodeMismatch):
		return true
	}
	return false
}

func (s *EventService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, eventCachePrefix+"*"); err != nil {
		s.logger.Debug("event cache invalidation failed", zap.Error(err))
	}
}

func (s *EventService) audit(ctx context.Context, actorID, action, eventID string, payload interface{}) {
	if s.auditor == nil {
		return
	}
	var newValues []byte
	if payload != nil {
		newValues, _ = json.Marshal(payload)
	}
	if err := s.auditor.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   "events",
		ResourceID: &eventID,
		NewValues:  newValues,
	}); err != nil {
		s.logger.Warn("failed to record event audit log", zap.Error(err))
	}
}

func applyEventPatch(event *models.Event, req models.UpdateEventRequest) {
	if req.Title != nil {
		event.Title = *req.Title
	}
	if req.Description != nil {
		event.Description = *req.Description
	}
	if req.Date != nil {
		event.Date = *req.Date
	}
	if req.StartTime != nil {
		event.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		event.EndTime = *req.EndTime
	}
	if req.Location != nil {
		event.Location = *req.Location
	}
	if req.Category != nil {
		event.Category = *req.Category
	}
	if req.Tags != nil {
		event.Tags = pq.StringArray(req.Tags)
	}
	if req.MaxAttendees != nil {
		event.MaxAttendees = *req.MaxAttendees
	}
	if req.IsPublic != nil {
		event.IsPublic = *req.IsPublic
	}
}

func makeEventListCacheKey(filter models.EventFilter) string {
	public := "any"
	if filter.Public != nil {
		public = fmt.Sprintf("%t", *filter.Public)
	}
	return fmt.Sprintf("%s%s:%s:%s:%s:%d:%d:%s:%s",
		eventListCachePrefix, filter.Category, filter.OrganizerID, filter.Search, public,
		filter.Page, filter.PageSize, filter.SortBy, filter.SortOrder)
}

func paginationFor(filter models.EventFilter, total int) *models.Pagination {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	return &models.Pagination{Page: page, PageSize: pageSize, TotalCount: total}
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type sweeperEventRepository interface {
	ListAll(ctx context.Context) ([]models.Event, error)
	Delete(ctx context.Context, id string) error
}

type sweeperArchiveRepository interface {
	Create(ctx context.Context, archived *models.ArchivedEvent) error
	List(ctx context.Context) ([]models.ArchivedEvent, error)
	GetByID(ctx context.Context, id string) (*models.ArchivedEvent, error)
	Delete(ctx context.Context, id string) error
	DeleteArchivedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SweeperConfig tunes the background expiration sweep.
type SweeperConfig struct {
	Interval      time.Duration
	RunOnStart    bool
	RetentionDays int
}

// SweeperService moves expired events into the archive. An event expires
// once the current time passes its date combined with its end time; events
// without an end time run to the end of their day.
type SweeperService struct {
	events  sweeperEventRepository
	archive sweeperArchiveRepository
	cache   *CacheService
	metrics *MetricsService
	logger  *zap.Logger
	config  SweeperConfig
	now     func() time.Time
	running int32
}

// NewSweeperService constructs a SweeperService instance.
func NewSweeperService(events sweeperEventRepository, archive sweeperArchiveRepository, cache *CacheService, metrics *MetricsService, logger *zap.Logger, config SweeperConfig) *SweeperService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Interval <= 0 {
		config.Interval = time.Hour
	}
	return &SweeperService{
		events:  events,
		archive: archive,
		cache:   cache,
		metrics: metrics,
		logger:  logger,
		config:  config,
		now:     time.Now,
	}
}

// IsExpired reports whether the event's cutoff lies strictly in the past.
func (s *SweeperService) IsExpired(event *models.Event) bool {
	cutoff, err := event.Cutoff()
	if err != nil {
		s.logger.Warn("event has unparseable date, skipping expiry check",
			zap.String("event_id", event.ID),
			zap.String("date", event.Date))
		return false
	}
	return s.now().UTC().After(cutoff)
}

// Sweep archives every expired event and removes it from the active set.
// Failures on individual events are collected and do not stop the sweep.
// Overlapping invocations are coalesced: a sweep already in progress makes
// the new call a no-op.
func (s *SweeperService) Sweep(ctx context.Context) (*models.SweepResult, error) {
	if !atomic.CompareAndSwapInt32(&s.running, 0, 1) {
		s.logger.Debug("sweep already in progress")
		return &models.SweepResult{}, nil
	}
	defer atomic.StoreInt32(&s.running, 0)

	events, err := s.events.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events for sweep: %w", err)
	}

	result := &models.SweepResult{}
	for i := range events {
		event := &events[i]
		if !s.IsExpired(event) {
			continue
		}
		result.Processed++

		if err := s.archiveEvent(ctx, event); err != nil {
			result.Errors = append(result.Errors, models.SweepError{EventID: event.ID, Message: err.Error()})
			s.logger.Error("failed to archive expired event",
				zap.String("event_id", event.ID),
				zap.Error(err))
			continue
		}
		result.ArchivedCount++
	}

	if result.ArchivedCount > 0 {
		s.metrics.RecordArchivedEvents(result.ArchivedCount)
		if err := s.cache.Invalidate(ctx, eventCachePrefix+"*"); err != nil {
			s.logger.Debug("event cache invalidation failed", zap.Error(err))
		}
		s.logger.Info("expired events archived",
			zap.Int("processed", result.Processed),
			zap.Int("archived", result.ArchivedCount),
			zap.Int("errors", len(result.Errors)))
	}

	if s.config.RetentionDays > 0 {
		cutoff := s.now().UTC().AddDate(0, 0, -s.config.RetentionDays)
		if removed, err := s.archive.DeleteArchivedBefore(ctx, cutoff); err != nil {
			s.logger.Warn("archive retention cleanup failed", zap.Error(err))
		} else if removed > 0 {
			s.logger.Info("archive retention cleanup", zap.Int64("removed", removed))
		}
	}

	return result, nil
}

// Start runs the sweep loop until the context is cancelled.
func (s *SweeperService) Start(ctx context.Context) {
	go func() {
		if s.config.RunOnStart {
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error("initial sweep failed", zap.Error(err))
			}
		}
		ticker := time.NewTicker(s.config.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.logger.Error("scheduled sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// ListArchived returns the archived event history, newest first.
func (s *SweeperService) ListArchived(ctx context.Context) ([]models.ArchivedEvent, error) {
	archived, err := s.archive.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list archived events")
	}
	return archived, nil
}

// GetArchived returns a single archived event.
func (s *SweeperService) GetArchived(ctx context.Context, id string) (*models.ArchivedEvent, error) {
	archived, err := s.archive.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "archived event not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load archived event")
	}
	return archived, nil
}

// DeleteArchived permanently removes an archived event.
func (s *SweeperService) DeleteArchived(ctx context.Context, actor *models.JWTClaims, id string) error {
	if !CanManageEvents(actor.Role) {
		return appErrors.Clone(appErrors.ErrForbidden, "only organizers can delete archived events")
	}
	if err := s.archive.Delete(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "archived event not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete archived event")
	}
	return nil
}

func (s *SweeperService) archiveEvent(ctx context.Context, event *models.Event) error {
	snapshot := BuildArchiveSnapshot(event, s.now().UTC())

	if err := s.archive.Create(ctx, snapshot); err != nil && !errors.Is(err, repository.ErrAlreadyArchived) {
		return fmt.Errorf("archive event: %w", err)
	}

	if err := s.events.Delete(ctx, event.ID); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("remove archived event from active set: %w", err)
	}
	return nil
}

// BuildArchiveSnapshot derives the immutable archive record for an event.
// The attendance rate is confirmed over registered as a two-decimal
// percentage string, "0" when nobody registered.
func BuildArchiveSnapshot(event *models.Event, archivedAt time.Time) *models.ArchivedEvent {
	confirmed := event.ConfirmedAttendees()
	total := len(event.Attendees)

	rate := "0"
	if total > 0 {
		rate = fmt.Sprintf("%.2f", float64(len(confirmed))/float64(total)*100)
	}

	return &models.ArchivedEvent{
		OriginalEventID:    event.ID,
		Title:              event.Title,
		Description:        event.Description,
		Date:               event.Date,
		StartTime:          event.StartTime,
		EndTime:            event.EndTime,
		Location:           event.Location,
		OrganizerName:      event.OrganizerName,
		OrganizerID:        event.OrganizerID,
		Category:           event.Category,
		TotalRegistered:    total,
		AttendanceRate:     rate,
		ConfirmedAttendees: confirmed,
		ArchivedAt:         archivedAt,
	}
}

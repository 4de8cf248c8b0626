package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/repository"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
	"github.com/noah-isme/campus-events-api/pkg/qrtoken"
)

type registrationEventRepository interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
	GetAttendee(ctx context.Context, eventID, userID string) (*models.Attendee, error)
	RegisterAttendee(ctx context.Context, eventID string, attendee *models.Attendee) error
	RemoveAttendee(ctx context.Context, eventID, userID string) error
}

type registrationUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

// attendeeRemovalWrite is the journaled payload for an unregistration that
// could not reach the primary store.
type attendeeRemovalWrite struct {
	UserID string `json:"userId"`
}

// RegistrationService handles joining and leaving events. Each successful
// registration mints the QR token the attendee later presents at the door.
// When the primary store is unreachable and the fallback is enabled, the
// mutation is journaled and reported as successful.
type RegistrationService struct {
	events          registrationEventRepository
	users           registrationUserRepository
	cache           *CacheService
	journal         writeJournal
	metrics         *MetricsService
	logger          *zap.Logger
	fallbackEnabled bool
	now             func() time.Time
}

// NewRegistrationService constructs a RegistrationService instance.
func NewRegistrationService(events registrationEventRepository, users registrationUserRepository, cache *CacheService, journal writeJournal, metrics *MetricsService, logger *zap.Logger, fallbackEnabled bool) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RegistrationService{
		events:          events,
		users:           users,
		cache:           cache,
		journal:         journal,
		metrics:         metrics,
		logger:          logger,
		fallbackEnabled: fallbackEnabled,
		now:             time.Now,
	}
}

// Register adds the acting student to an event's attendee list. Capacity and
// duplicate checks happen atomically in the store, so concurrent requests for
// the last spot cannot both succeed.
func (s *RegistrationService) Register(ctx context.Context, actor *models.JWTClaims, eventID string) (*models.Attendee, error) {
	if !CanRegister(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only students can register for events")
	}

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordRegistration("not_found")
			return nil, appErrors.Clone(appErrors.ErrEventNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}

	if cutoff, err := event.Cutoff(); err == nil && s.now().UTC().After(cutoff) {
		s.metrics.RecordRegistration("expired")
		return nil, appErrors.Clone(appErrors.ErrValidation, "event has already ended")
	}

	user, err := s.users.FindByID(ctx, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}

	registeredAt := s.now().UTC()
	attendee := &models.Attendee{
		EventID:          eventID,
		UserID:           user.ID,
		UserName:         user.FullName,
		UserEmail:        user.Email,
		UserRole:         user.Role,
		StudentID:        user.StudentID,
		OrganizationName: user.OrganizationName,
		RegisteredAt:     registeredAt,
		QRCode:           qrtoken.Mint(eventID, user.ID, registeredAt),
	}

	if err := s.events.RegisterAttendee(ctx, eventID, attendee); err != nil {
		switch {
		case errors.Is(err, repository.ErrDuplicateAttendee):
			s.metrics.RecordRegistration("duplicate")
			return nil, appErrors.Clone(appErrors.ErrAlreadyRegistered, "")
		case errors.Is(err, repository.ErrCapacityReached):
			s.metrics.RecordRegistration("full")
			return nil, appErrors.Clone(appErrors.ErrEventFull, "")
		case errors.Is(err, sql.ErrNoRows):
			s.metrics.RecordRegistration("not_found")
			return nil, appErrors.Clone(appErrors.ErrEventNotFound, "")
		default:
			if jerr := s.journalFallback(ctx, "attendee_register", eventID, attendee, err); jerr != nil {
				s.metrics.RecordRegistration("error")
				return nil, jerr
			}
			s.metrics.RecordRegistration("journaled")
			return attendee, nil
		}
	}

	s.metrics.RecordRegistration("registered")
	s.invalidate(ctx)
	s.logger.Info("attendee registered",
		zap.String("event_id", eventID),
		zap.String("user_id", user.ID))
	return attendee, nil
}

// Unregister removes the acting student's registration. Confirmed attendance
// pins the record: the registration can no longer be withdrawn.
func (s *RegistrationService) Unregister(ctx context.Context, actor *models.JWTClaims, eventID string) error {
	if !CanRegister(actor.Role) {
		return appErrors.Clone(appErrors.ErrForbidden, "only students can unregister from events")
	}

	if err := s.events.RemoveAttendee(ctx, eventID, actor.UserID); err != nil {
		switch {
		case errors.Is(err, repository.ErrAttendeeAttended):
			return appErrors.Clone(appErrors.ErrCannotUnregister, "")
		case errors.Is(err, sql.ErrNoRows):
			return appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		default:
			if jerr := s.journalFallback(ctx, "attendee_unregister", eventID, attendeeRemovalWrite{UserID: actor.UserID}, err); jerr != nil {
				return jerr
			}
			s.metrics.RecordRegistration("journaled")
			return nil
		}
	}

	s.metrics.RecordRegistration("unregistered")
	s.invalidate(ctx)
	return nil
}

// Registration returns the acting user's registration for an event, useful
// for re-displaying the QR code.
func (s *RegistrationService) Registration(ctx context.Context, actor *models.JWTClaims, eventID string) (*models.Attendee, error) {
	attendee, err := s.events.GetAttendee(ctx, eventID, actor.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration")
	}
	return attendee, nil
}

func (s *RegistrationService) journalFallback(ctx context.Context, kind, eventID string, payload interface{}, cause error) error {
	if err := journalPendingWrite(ctx, s.journal, s.fallbackEnabled, s.metrics, kind, eventID, payload); err != nil {
		return err
	}
	s.invalidate(ctx)
	s.logger.Warn("store write journaled for replay",
		zap.String("kind", kind),
		zap.String("event_id", eventID),
		zap.Error(cause))
	return nil
}

func (s *RegistrationService) invalidate(ctx context.Context) {
	if err := s.cache.Invalidate(ctx, eventCachePrefix+"*"); err != nil {
		s.logger.Debug("event cache invalidation failed", zap.Error(err))
	}
}

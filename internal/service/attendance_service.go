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

type attendanceEventRepository interface {
	GetByID(ctx context.Context, id string) (*models.Event, error)
	MarkAttended(ctx context.Context, eventID, userID, token string, at time.Time) (*models.Attendee, error)
}

// AttendanceResult describes the outcome of a verified scan.
type AttendanceResult struct {
	Event    *models.Event    `json:"event"`
	Attendee *models.Attendee `json:"attendee"`
}

// attendanceMarkWrite is the journaled payload for an attendance
// confirmation that could not reach the primary store.
type attendanceMarkWrite struct {
	UserID string    `json:"userId"`
	Token  string    `json:"token"`
	At     time.Time `json:"at"`
}

// AttendanceService verifies scanned QR tokens and confirms attendance.
// Store outages journal the confirmation for replay when the fallback is
// enabled.
type AttendanceService struct {
	events          attendanceEventRepository
	cache           *CacheService
	journal         writeJournal
	metrics         *MetricsService
	logger          *zap.Logger
	fallbackEnabled bool
	now             func() time.Time
}

// NewAttendanceService constructs an AttendanceService instance.
func NewAttendanceService(events attendanceEventRepository, cache *CacheService, journal writeJournal, metrics *MetricsService, logger *zap.Logger, fallbackEnabled bool) *AttendanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		events:          events,
		cache:           cache,
		journal:         journal,
		metrics:         metrics,
		logger:          logger,
		fallbackEnabled: fallbackEnabled,
		now:             time.Now,
	}
}

// Verify confirms attendance for the attendee identified by the scanned
// token. The stored QR code must match the scanned string verbatim, and a
// second scan of the same token reports the already-confirmed state rather
// than flipping anything.
func (s *AttendanceService) Verify(ctx context.Context, actor *models.JWTClaims, scanned string) (*AttendanceResult, error) {
	if !CanVerifyAttendance(actor.Role) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only organizers can verify attendance")
	}

	token, err := qrtoken.Parse(scanned)
	if err != nil {
		s.metrics.RecordAttendanceScan("invalid")
		return nil, appErrors.Clone(appErrors.ErrInvalidToken, "")
	}

	event, err := s.events.GetByID(ctx, token.EventID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.RecordAttendanceScan("not_found")
			return nil, appErrors.Clone(appErrors.ErrEventNotFound, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load event")
	}

	markedAt := s.now().UTC()
	attendee, err := s.events.MarkAttended(ctx, token.EventID, token.UserID, scanned, markedAt)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAttendeeAttended):
			s.metrics.RecordAttendanceScan("duplicate")
			return nil, appErrors.Clone(appErrors.ErrAlreadyAttended, "")
		case errors.Is(err, repository.ErrQRCodeMismatch), errors.Is(err, sql.ErrNoRows):
			s.metrics.RecordAttendanceScan("not_found")
			return nil, appErrors.Clone(appErrors.ErrAttendeeNotFound, "")
		default:
			write := attendanceMarkWrite{UserID: token.UserID, Token: scanned, At: markedAt}
			if jerr := journalPendingWrite(ctx, s.journal, s.fallbackEnabled, s.metrics, "attendance_mark", token.EventID, write); jerr != nil {
				s.metrics.RecordAttendanceScan("error")
				return nil, jerr
			}
			s.metrics.RecordAttendanceScan("journaled")
			s.logger.Warn("attendance confirmation journaled for replay",
				zap.String("event_id", token.EventID),
				zap.String("user_id", token.UserID),
				zap.Error(err))
			attendee = &models.Attendee{
				EventID:    token.EventID,
				UserID:     token.UserID,
				QRCode:     scanned,
				Attended:   true,
				AttendedAt: &markedAt,
			}
			return &AttendanceResult{Event: event, Attendee: attendee}, nil
		}
	}

	s.metrics.RecordAttendanceScan("confirmed")
	if err := s.cache.Invalidate(ctx, eventCachePrefix+"*"); err != nil {
		s.logger.Debug("event cache invalidation failed", zap.Error(err))
	}
	s.logger.Info("attendance confirmed",
		zap.String("event_id", token.EventID),
		zap.String("user_id", token.UserID),
		zap.String("verified_by", actor.UserID))

	return &AttendanceResult{Event: event, Attendee: attendee}, nil
}

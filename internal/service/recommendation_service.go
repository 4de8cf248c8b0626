package service

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

const (
	defaultRecommendationLimit = 3
	fallbackCategory           = "academic"
)

type recommendationEventRepository interface {
	ListAll(ctx context.Context) ([]models.Event, error)
}

// Recommendation pairs a candidate event with its computed relevance score.
type Recommendation struct {
	Event models.Event `json:"event"`
	Score float64      `json:"score"`
}

// RecommendationService suggests upcoming events a user has not registered
// for, ranked by the categories of their past registrations, event
// popularity, and how soon the event takes place.
type RecommendationService struct {
	events recommendationEventRepository
	logger *zap.Logger
	now    func() time.Time
}

// NewRecommendationService constructs a RecommendationService instance.
func NewRecommendationService(events recommendationEventRepository, logger *zap.Logger) *RecommendationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecommendationService{
		events: events,
		logger: logger,
		now:    time.Now,
	}
}

// Recommend returns up to limit upcoming events the acting user is not
// registered for, highest score first. A non-positive limit falls back to
// the default of three.
func (s *RecommendationService) Recommend(ctx context.Context, actor *models.JWTClaims, limit int) ([]Recommendation, error) {
	if limit <= 0 {
		limit = defaultRecommendationLimit
	}

	events, err := s.events.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load events")
	}

	now := s.now().UTC()
	favorite := favoriteCategory(events, actor.UserID)

	recommendations := make([]Recommendation, 0, limit)
	for _, event := range events {
		if isRegistered(&event, actor.UserID) {
			continue
		}
		cutoff, err := event.Cutoff()
		if err != nil || !cutoff.After(now) {
			continue
		}
		recommendations = append(recommendations, Recommendation{
			Event: event,
			Score: scoreEvent(&event, favorite, now),
		})
	}

	sort.SliceStable(recommendations, func(i, j int) bool {
		return recommendations[i].Score > recommendations[j].Score
	})
	if len(recommendations) > limit {
		recommendations = recommendations[:limit]
	}
	return recommendations, nil
}

// favoriteCategory is the category the user registered for most often,
// falling back to a neutral default for users with no history.
func favoriteCategory(events []models.Event, userID string) string {
	counts := make(map[string]int)
	best, bestCount := fallbackCategory, 0
	for _, event := range events {
		if !isRegistered(&event, userID) {
			continue
		}
		counts[event.Category]++
		if counts[event.Category] > bestCount {
			best, bestCount = event.Category, counts[event.Category]
		}
	}
	return best
}

func isRegistered(event *models.Event, userID string) bool {
	for _, a := range event.Attendees {
		if a.UserID == userID {
			return true
		}
	}
	return false
}

// scoreEvent weighs category affinity heaviest, then popularity, how soon
// the event happens, and whether more than half the seats are still open.
func scoreEvent(event *models.Event, favorite string, now time.Time) float64 {
	var score float64
	if event.Category == favorite {
		score += 3
	}
	if event.MaxAttendees > 0 {
		score += float64(len(event.Attendees)) / float64(event.MaxAttendees) * 2
	}
	if start, err := time.ParseInLocation(models.DateLayout, event.Date, time.UTC); err == nil {
		days := start.Sub(now).Hours() / 24
		switch {
		case days <= 7:
			score += 2
		case days <= 14:
			score++
		}
	}
	if event.SpotsRemaining()*2 > event.MaxAttendees {
		score++
	}
	return score
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-events-api/internal/models"
)

func recommendationEvent(id, category, date string, maxAttendees int, userIDs ...string) *models.Event {
	event := &models.Event{
		ID:           id,
		Title:        "Event " + id,
		Date:         date,
		Location:     "Hall A",
		OrganizerID:  "org-1",
		Category:     category,
		MaxAttendees: maxAttendees,
	}
	for _, userID := range userIDs {
		event.Attendees = append(event.Attendees, models.Attendee{EventID: id, UserID: userID})
	}
	return event
}

func newRecommendationFixture(events ...*models.Event) *RecommendationService {
	svc := NewRecommendationService(newMockEventStore(events...), zap.NewNop())
	svc.now = func() time.Time { return time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestRecommendRanksByCategoryAffinity(t *testing.T) {
	svc := newRecommendationFixture(
		recommendationEvent("history", "tech", "2026-08-25", 10, "u1"),
		recommendationEvent("e-tech", "tech", "2026-09-04", 10, "x1", "x2", "x3", "x4", "x5"),
		recommendationEvent("e-music", "music", "2026-09-04", 10),
	)

	recommendations, err := svc.Recommend(context.Background(), studentClaims("u1"), 0)
	require.NoError(t, err)
	require.Len(t, recommendations, 2)
	assert.Equal(t, "e-tech", recommendations[0].Event.ID)
	assert.Equal(t, "e-music", recommendations[1].Event.ID)
	assert.Greater(t, recommendations[0].Score, recommendations[1].Score)
}

func TestRecommendSkipsRegisteredAndPastEvents(t *testing.T) {
	svc := newRecommendationFixture(
		recommendationEvent("e-joined", "tech", "2026-09-10", 10, "u1"),
		recommendationEvent("e-over", "tech", "2026-08-20", 10),
		recommendationEvent("e-open", "tech", "2026-09-10", 10),
	)

	recommendations, err := svc.Recommend(context.Background(), studentClaims("u1"), 0)
	require.NoError(t, err)
	require.Len(t, recommendations, 1)
	assert.Equal(t, "e-open", recommendations[0].Event.ID)
}

func TestRecommendHonorsLimit(t *testing.T) {
	svc := newRecommendationFixture(
		recommendationEvent("e1", "tech", "2026-09-04", 10),
		recommendationEvent("e2", "music", "2026-09-04", 10),
		recommendationEvent("e3", "sports", "2026-09-04", 10),
		recommendationEvent("e4", "arts", "2026-09-04", 10),
	)

	recommendations, err := svc.Recommend(context.Background(), studentClaims("u1"), 2)
	require.NoError(t, err)
	assert.Len(t, recommendations, 2)
}

func TestRecommendNoHistoryStillSuggests(t *testing.T) {
	svc := newRecommendationFixture(
		recommendationEvent("e1", "music", "2026-09-04", 10),
	)

	recommendations, err := svc.Recommend(context.Background(), studentClaims("u1"), 0)
	require.NoError(t, err)
	require.Len(t, recommendations, 1)
	assert.Equal(t, "e1", recommendations[0].Event.ID)
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/service"
)

type recommendationServiceMock struct {
	resp      []service.Recommendation
	err       error
	lastLimit int
}

func (m *recommendationServiceMock) Recommend(ctx context.Context, actor *models.JWTClaims, limit int) ([]service.Recommendation, error) {
	m.lastLimit = limit
	return m.resp, m.err
}

func TestRecommendationHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &recommendationServiceMock{
		resp: []service.Recommendation{
			{Event: models.Event{ID: "e1", Title: "Career Fair"}, Score: 5},
		},
	}
	h := NewRecommendationHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := studentContext(w, http.MethodGet, "/events/recommendations?limit=5")
	h.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, mockSvc.lastLimit)

	var body struct {
		Data []service.Recommendation `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, "e1", body.Data[0].Event.ID)
}

func TestRecommendationHandlerListInvalidLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRecommendationHandler(&recommendationServiceMock{})

	w := httptest.NewRecorder()
	c, _ := studentContext(w, http.MethodGet, "/events/recommendations?limit=zero")
	h.List(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRecommendationHandlerListUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewRecommendationHandler(&recommendationServiceMock{})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/events/recommendations", nil)
	c.Request = req
	h.List(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

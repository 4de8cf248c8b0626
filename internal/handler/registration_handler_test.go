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

	"github.com/noah-isme/campus-events-api/internal/middleware"
	"github.com/noah-isme/campus-events-api/internal/models"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type registrationServiceMock struct {
	registerResp   *models.Attendee
	registerErr    error
	unregisterErr  error
	lookupResp     *models.Attendee
	lookupErr      error
	lastEventID    string
	registerCalled bool
}

func (m *registrationServiceMock) Register(ctx context.Context, actor *models.JWTClaims, eventID string) (*models.Attendee, error) {
	m.registerCalled = true
	m.lastEventID = eventID
	return m.registerResp, m.registerErr
}

func (m *registrationServiceMock) Unregister(ctx context.Context, actor *models.JWTClaims, eventID string) error {
	m.lastEventID = eventID
	return m.unregisterErr
}

func (m *registrationServiceMock) Registration(ctx context.Context, actor *models.JWTClaims, eventID string) (*models.Attendee, error) {
	m.lastEventID = eventID
	return m.lookupResp, m.lookupErr
}

func studentContext(w *httptest.ResponseRecorder, method, target string) (*gin.Context, *gin.Engine) {
	c, r := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, nil)
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent})
	return c, r
}

func TestRegistrationHandlerRegister(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &registrationServiceMock{
		registerResp: &models.Attendee{UserID: "user-1", QRCode: "ATTEND-event-1-user-1-1700000000000"},
	}
	h := NewRegistrationHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := studentContext(w, http.MethodPost, "/events/event-1/register")
	c.Params = gin.Params{{Key: "id", Value: "event-1"}}

	h.Register(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, mockSvc.registerCalled)
	assert.Equal(t, "event-1", mockSvc.lastEventID)

	var body struct {
		Data models.Attendee `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ATTEND-event-1-user-1-1700000000000", body.Data.QRCode)
}

func TestRegistrationHandlerRegisterConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &registrationServiceMock{registerErr: appErrors.ErrAlreadyRegistered}
	h := NewRegistrationHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := studentContext(w, http.MethodPost, "/events/event-1/register")
	c.Params = gin.Params{{Key: "id", Value: "event-1"}}

	h.Register(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegistrationHandlerRegisterUnauthenticated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &registrationServiceMock{}
	h := NewRegistrationHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/events/event-1/register", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "event-1"}}

	h.Register(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, mockSvc.registerCalled)
}

func TestRegistrationHandlerUnregister(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &registrationServiceMock{}
	h := NewRegistrationHandler(mockSvc)

	w := httptest.NewRecorder()
	c, _ := studentContext(w, http.MethodDelete, "/events/event-1/register")
	c.Params = gin.Params{{Key: "id", Value: "event-1"}}

	h.Unregister(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "event-1", mockSvc.lastEventID)
}

package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-events-api/internal/middleware"
	"github.com/noah-isme/campus-events-api/internal/models"
	"github.com/noah-isme/campus-events-api/internal/service"
	appErrors "github.com/noah-isme/campus-events-api/pkg/errors"
)

type attendanceServiceMock struct {
	resp        *service.AttendanceResult
	err         error
	lastScanned string
}

func (m *attendanceServiceMock) Verify(ctx context.Context, actor *models.JWTClaims, scanned string) (*service.AttendanceResult, error) {
	m.lastScanned = scanned
	return m.resp, m.err
}

func organizerVerifyContext(w *httptest.ResponseRecorder, body string) *gin.Context {
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/attendance/verify", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "org-1", Role: models.RoleOrganizer})
	return c
}

func TestAttendanceHandlerVerify(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceServiceMock{
		resp: &service.AttendanceResult{
			Event:    &models.Event{ID: "event-1", Title: "Robotics Workshop"},
			Attendee: &models.Attendee{UserID: "user-1", Attended: true},
		},
	}
	h := NewAttendanceHandler(mockSvc)

	w := httptest.NewRecorder()
	c := organizerVerifyContext(w, `{"qrCode":"ATTEND-event-1-user-1-1700000000000"}`)

	h.Verify(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ATTEND-event-1-user-1-1700000000000", mockSvc.lastScanned)
}

func TestAttendanceHandlerVerifyInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceServiceMock{}
	h := NewAttendanceHandler(mockSvc)

	w := httptest.NewRecorder()
	c := organizerVerifyContext(w, `{`)

	h.Verify(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, mockSvc.lastScanned)
}

func TestAttendanceHandlerVerifyDuplicate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &attendanceServiceMock{err: appErrors.ErrAlreadyAttended}
	h := NewAttendanceHandler(mockSvc)

	w := httptest.NewRecorder()
	c := organizerVerifyContext(w, `{"qrCode":"ATTEND-event-1-user-1-1700000000000"}`)

	h.Verify(c)
	assert.Equal(t, http.StatusConflict, w.Code)
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symbi-app/symbi-api/internal/middleware"
	"github.com/symbi-app/symbi-api/internal/models"
	"github.com/symbi-app/symbi-api/internal/service"
)

type healthDataServiceMock struct {
	observation *models.DailyObservation
	syncErr     error
	historyReq  service.ObservationListRequest
	summary     *models.MoodSummary
	cached      bool
}

func (m *healthDataServiceMock) Sync(ctx context.Context, userID, petID string, req service.SyncHealthDataRequest) (*models.DailyObservation, error) {
	if m.syncErr != nil {
		return nil, m.syncErr
	}
	return m.observation, nil
}

func (m *healthDataServiceMock) History(ctx context.Context, userID, petID string, req service.ObservationListRequest) ([]models.DailyObservation, *models.Pagination, error) {
	m.historyReq = req
	return nil, &models.Pagination{Page: req.Page, PageSize: req.PageSize}, nil
}

func (m *healthDataServiceMock) Summary(ctx context.Context, userID, petID string, from, to *time.Time) (*models.MoodSummary, bool, error) {
	return m.summary, m.cached, nil
}

func healthContext(t *testing.T, w *httptest.ResponseRecorder, method, target string, body []byte) *gin.Context {
	t.Helper()
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(w)
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "pet-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1"})
	return c
}

func TestHealthHandlerSync(t *testing.T) {
	mock := &healthDataServiceMock{observation: &models.DailyObservation{
		ID:    "obs-1",
		PetID: "pet-1",
		State: models.StateActive,
		Steps: 9500,
	}}
	handler := NewHealthHandler(mock)

	body, _ := json.Marshal(service.SyncHealthDataRequest{Date: "2026-08-01", Steps: 9500})
	w := httptest.NewRecorder()
	c := healthContext(t, w, http.MethodPost, "/pets/pet-1/health", body)

	handler.Sync(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ACTIVE")
}

func TestHealthHandlerSyncMalformedBody(t *testing.T) {
	handler := NewHealthHandler(&healthDataServiceMock{})

	w := httptest.NewRecorder()
	c := healthContext(t, w, http.MethodPost, "/pets/pet-1/health", []byte("{not json"))

	handler.Sync(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandlerHistoryQueryParsing(t *testing.T) {
	mock := &healthDataServiceMock{}
	handler := NewHealthHandler(mock)

	w := httptest.NewRecorder()
	c := healthContext(t, w, http.MethodGet, "/pets/pet-1/history?state=ACTIVE&from=2026-08-01&page=2&page_size=10", nil)

	handler.History(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mock.historyReq.State)
	assert.Equal(t, "ACTIVE", *mock.historyReq.State)
	require.NotNil(t, mock.historyReq.DateFrom)
	assert.Equal(t, "2026-08-01", mock.historyReq.DateFrom.Format("2006-01-02"))
	assert.Equal(t, 2, mock.historyReq.Page)
	assert.Equal(t, 10, mock.historyReq.PageSize)
}

func TestHealthHandlerHistoryBadDate(t *testing.T) {
	handler := NewHealthHandler(&healthDataServiceMock{})

	w := httptest.NewRecorder()
	c := healthContext(t, w, http.MethodGet, "/pets/pet-1/history?from=yesterday", nil)

	handler.History(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthHandlerHistoryDefaultsPaging(t *testing.T) {
	mock := &healthDataServiceMock{}
	handler := NewHealthHandler(mock)

	w := httptest.NewRecorder()
	c := healthContext(t, w, http.MethodGet, "/pets/pet-1/history?page=-3&page_size=abc", nil)

	handler.History(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, mock.historyReq.Page)
	assert.Equal(t, 30, mock.historyReq.PageSize)
}

func TestHealthHandlerSummaryCacheMeta(t *testing.T) {
	handler := NewHealthHandler(&healthDataServiceMock{
		summary: &models.MoodSummary{TotalDays: 7, QualifyingDays: 4},
		cached:  true,
	})

	w := httptest.NewRecorder()
	c := healthContext(t, w, http.MethodGet, "/pets/pet-1/summary", nil)

	handler.Summary(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "\"total_days\":7")
	assert.Contains(t, w.Body.String(), "\"cache_hit\":true")
}

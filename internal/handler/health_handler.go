package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/symbi-app/symbi-api/internal/middleware"
	"github.com/symbi-app/symbi-api/internal/models"
	"github.com/symbi-app/symbi-api/internal/service"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
	"github.com/symbi-app/symbi-api/pkg/response"
)

type healthDataService interface {
	Sync(ctx context.Context, userID, petID string, req service.SyncHealthDataRequest) (*models.DailyObservation, error)
	History(ctx context.Context, userID, petID string, req service.ObservationListRequest) ([]models.DailyObservation, *models.Pagination, error)
	Summary(ctx context.Context, userID, petID string, from, to *time.Time) (*models.MoodSummary, bool, error)
}

// HealthHandler exposes health data ingestion and history endpoints.
type HealthHandler struct {
	service healthDataService
}

// NewHealthHandler builds a new handler.
func NewHealthHandler(svc healthDataService) *HealthHandler {
	return &HealthHandler{service: svc}
}

// Sync godoc
// @Summary Sync a day of health data
// @Description Classifies the day and stores the observation, overwriting any earlier sync for the same date
// @Tags Health
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pet ID"
// @Param payload body service.SyncHealthDataRequest true "Health sample"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /pets/{id}/health [post]
func (h *HealthHandler) Sync(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.SyncHealthDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid health payload"))
		return
	}

	obs, err := h.service.Sync(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, obs, nil)
}

// History godoc
// @Summary List observation history
// @Tags Health
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pet ID"
// @Param state query string false "Filter by emotional state"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /pets/{id}/history [get]
func (h *HealthHandler) History(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	req := service.ObservationListRequest{
		Page:      parseIntQuery(c, "page", 1),
		PageSize:  parseIntQuery(c, "page_size", 30),
		SortOrder: c.Query("sort"),
	}
	if state := c.Query("state"); state != "" {
		req.State = &state
	}
	var err error
	if req.DateFrom, err = parseDateQuery(c, "from"); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from date"))
		return
	}
	if req.DateTo, err = parseDateQuery(c, "to"); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to date"))
		return
	}

	items, pagination, err := h.service.History(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, items, pagination)
}

// Summary godoc
// @Summary Summarise mood history
// @Description Aggregates observations per state over the requested window
// @Tags Health
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pet ID"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /pets/{id}/summary [get]
func (h *HealthHandler) Summary(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	from, err := parseDateQuery(c, "from")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid from date"))
		return
	}
	to, err := parseDateQuery(c, "to")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid to date"))
		return
	}

	summary, cached, err := h.service.Summary(c.Request.Context(), claims.UserID, c.Param("id"), from, to)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, summary, nil, middleware.ExtractMeta(c))
}

func parseIntQuery(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func parseDateQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	parsed, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

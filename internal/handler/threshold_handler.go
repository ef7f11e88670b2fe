package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/symbi-app/symbi-api/internal/models"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
	"github.com/symbi-app/symbi-api/pkg/response"
)

type thresholdService interface {
	Get(ctx context.Context, userID string) (*models.UserThresholds, error)
	Update(ctx context.Context, userID string, t models.StepThresholds) (*models.UserThresholds, error)
}

// ThresholdHandler exposes per-user step threshold endpoints.
type ThresholdHandler struct {
	service thresholdService
}

// NewThresholdHandler builds a new handler.
func NewThresholdHandler(svc thresholdService) *ThresholdHandler {
	return &ThresholdHandler{service: svc}
}

// Get godoc
// @Summary Get the caller's step thresholds
// @Tags Thresholds
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /thresholds [get]
func (h *ThresholdHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	thresholds, err := h.service.Get(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, thresholds, nil)
}

// Update godoc
// @Summary Update the caller's step thresholds
// @Description Rejects configurations where the sad threshold is not below the active threshold
// @Tags Thresholds
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body models.StepThresholds true "Thresholds payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /thresholds [put]
func (h *ThresholdHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req models.StepThresholds
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid thresholds payload"))
		return
	}

	thresholds, err := h.service.Update(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, thresholds, nil)
}

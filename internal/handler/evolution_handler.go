package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/symbi-app/symbi-api/internal/models"
	"github.com/symbi-app/symbi-api/internal/service"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
	"github.com/symbi-app/symbi-api/pkg/response"
)

type evolutionService interface {
	Status(ctx context.Context, petID string) (*service.EvolutionStatus, error)
	Trigger(ctx context.Context, petID string) (*service.EvolutionStatus, error)
	Records(ctx context.Context, petID string) ([]models.EvolutionRecord, error)
}

type petOwnershipService interface {
	Get(ctx context.Context, userID, petID string) (*models.Pet, error)
}

// EvolutionHandler exposes evolution eligibility and trigger endpoints.
type EvolutionHandler struct {
	service evolutionService
	pets    petOwnershipService
}

// NewEvolutionHandler builds a new handler.
func NewEvolutionHandler(svc evolutionService, pets petOwnershipService) *EvolutionHandler {
	return &EvolutionHandler{service: svc, pets: pets}
}

// Status godoc
// @Summary Get evolution eligibility
// @Description Returns the pet's phase, level and accumulated qualifying days
// @Tags Evolution
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pet ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /pets/{id}/evolution [get]
func (h *EvolutionHandler) Status(c *gin.Context) {
	petID, ok := h.ownedPetID(c)
	if !ok {
		return
	}

	status, err := h.service.Status(c.Request.Context(), petID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, status, nil)
}

// Trigger godoc
// @Summary Trigger an evolution
// @Description Starts appearance generation for an eligible pet. Retrying after a failed generation is allowed.
// @Tags Evolution
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pet ID"
// @Success 202 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /pets/{id}/evolution [post]
func (h *EvolutionHandler) Trigger(c *gin.Context) {
	petID, ok := h.ownedPetID(c)
	if !ok {
		return
	}

	status, err := h.service.Trigger(c.Request.Context(), petID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusAccepted, status, nil)
}

// Records godoc
// @Summary List evolution history
// @Tags Evolution
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pet ID"
// @Success 200 {object} response.Envelope
// @Router /pets/{id}/evolution/records [get]
func (h *EvolutionHandler) Records(c *gin.Context) {
	petID, ok := h.ownedPetID(c)
	if !ok {
		return
	}

	records, err := h.service.Records(c.Request.Context(), petID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, records, nil)
}

func (h *EvolutionHandler) ownedPetID(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	petID := c.Param("id")
	if _, err := h.pets.Get(c.Request.Context(), claims.UserID, petID); err != nil {
		response.Error(c, err)
		return "", false
	}
	return petID, true
}

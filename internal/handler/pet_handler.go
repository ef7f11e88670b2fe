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

type petService interface {
	Create(ctx context.Context, userID string, req service.CreatePetRequest) (*models.Pet, error)
	Get(ctx context.Context, userID, petID string) (*models.Pet, error)
	List(ctx context.Context, userID string) ([]models.Pet, error)
	Status(ctx context.Context, userID, petID string) (*models.PetStatus, error)
}

// PetHandler exposes pet endpoints.
type PetHandler struct {
	service petService
}

// NewPetHandler builds a new handler.
func NewPetHandler(svc petService) *PetHandler {
	return &PetHandler{service: svc}
}

// Create godoc
// @Summary Create a pet
// @Tags Pets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param payload body service.CreatePetRequest true "Pet payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /pets [post]
func (h *PetHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreatePetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid pet payload"))
		return
	}

	pet, err := h.service.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, pet)
}

// List godoc
// @Summary List the caller's pets
// @Tags Pets
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Envelope
// @Router /pets [get]
func (h *PetHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	pets, err := h.service.List(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, pets, nil)
}

// Get godoc
// @Summary Get a pet by id
// @Tags Pets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pet ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /pets/{id} [get]
func (h *PetHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	pet, err := h.service.Get(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, pet, nil)
}

// Status godoc
// @Summary Get pet status for the main screen
// @Description Returns the pet, today's observation and evolution eligibility
// @Tags Pets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pet ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /pets/{id}/status [get]
func (h *PetHandler) Status(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	status, err := h.service.Status(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, status, nil)
}

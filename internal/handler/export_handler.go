package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/symbi-app/symbi-api/internal/models"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
	"github.com/symbi-app/symbi-api/pkg/response"
)

type exportService interface {
	Generate(ctx context.Context, userID, petID string, format models.ExportFormat, from, to *time.Time) (*models.ExportResult, error)
	Download(token string) (string, *os.File, error)
}

// ExportHandler exposes mood history export endpoints.
type ExportHandler struct {
	service exportService
}

// NewExportHandler builds a new handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// Generate godoc
// @Summary Export mood history
// @Description Renders the pet's observation history as CSV or PDF and returns a signed download link
// @Tags Exports
// @Produce json
// @Security BearerAuth
// @Param id path string true "Pet ID"
// @Param format query string true "Export format (csv or pdf)"
// @Param from query string false "Start date (YYYY-MM-DD)"
// @Param to query string false "End date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /pets/{id}/export [post]
func (h *ExportHandler) Generate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	format := models.ExportFormat(strings.ToLower(c.DefaultQuery("format", string(models.ExportFormatCSV))))
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

	result, err := h.service.Generate(c.Request.Context(), claims.UserID, c.Param("id"), format, from, to)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.JSON(c, http.StatusOK, result, nil)
}

// Download godoc
// @Summary Download an export via signed token
// @Tags Exports
// @Produce octet-stream
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /downloads [get]
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if strings.TrimSpace(token) == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}

	relPath, file, err := h.service.Download(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck

	info, err := file.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stat export file"))
		return
	}

	filename := filepath.Base(relPath)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), mimeTypeFor(filename), file, nil)
}

func mimeTypeFor(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "text/csv"
	case ".pdf":
		return "application/pdf"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/symbi-app/symbi-api/internal/models"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
	"github.com/symbi-app/symbi-api/pkg/export"
	"github.com/symbi-app/symbi-api/pkg/storage"
)

type exportObservationRepository interface {
	HistorySince(ctx context.Context, petID string, since *time.Time) ([]models.DailyObservation, error)
}

// ExportService renders a pet's mood history as CSV or PDF and serves the
// result through signed download URLs.
type ExportService struct {
	observations exportObservationRepository
	pets         healthPetRepository
	csv          *export.CSVExporter
	pdf          *export.PDFExporter
	store        *storage.LocalStorage
	signer       *storage.SignedURLSigner
	downloadPath string
	logger       *zap.Logger
	enabled      bool
}

// NewExportService constructs the export service.
func NewExportService(
	observations exportObservationRepository,
	pets healthPetRepository,
	store *storage.LocalStorage,
	signer *storage.SignedURLSigner,
	downloadPath string,
	logger *zap.Logger,
	enabled bool,
) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		observations: observations,
		pets:         pets,
		csv:          export.NewCSVExporter(),
		pdf:          export.NewPDFExporter(),
		store:        store,
		signer:       signer,
		downloadPath: downloadPath,
		logger:       logger,
		enabled:      enabled,
	}
}

// Enabled reports whether exports are switched on.
func (s *ExportService) Enabled() bool {
	return s != nil && s.enabled && s.store != nil && s.signer != nil
}

// Generate renders the pet's history in the requested format and returns a
// signed download link.
func (s *ExportService) Generate(ctx context.Context, userID, petID string, format models.ExportFormat, from, to *time.Time) (*models.ExportResult, error) {
	if !s.Enabled() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "exports are disabled")
	}
	if !format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}

	pet, err := s.pets.FindByID(ctx, petID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "pet not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch pet")
	}
	if pet.UserID != userID {
		return nil, appErrors.ErrForbidden
	}

	history, err := s.observations.HistorySince(ctx, petID, from)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load history")
	}

	dataset := buildHistoryDataset(history, to)
	var rendered []byte
	switch format {
	case models.ExportFormatCSV:
		rendered, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		rendered, err = s.pdf.Render(dataset, fmt.Sprintf("%s mood history", pet.Name))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	fileID := uuid.NewString()
	relPath := fmt.Sprintf("exports/%s/%s.%s", petID, fileID, format)
	if _, err := s.store.Save(relPath, rendered); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}

	token, expiresAt, err := s.signer.Generate(fileID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	s.logger.Info("export generated",
		zap.String("pet_id", petID),
		zap.String("format", string(format)),
		zap.Int("rows", len(dataset.Rows)))
	return &models.ExportResult{
		FileID:      fileID,
		Format:      format,
		DownloadURL: fmt.Sprintf("%s?token=%s", s.downloadPath, url.QueryEscape(token)),
		ExpiresAt:   expiresAt,
	}, nil
}

// Download validates the signed token and opens the referenced file. The
// endpoint serves every signed artifact, appearance images included, so it
// stays available even when export generation is switched off.
func (s *ExportService) Download(token string) (string, *os.File, error) {
	if s == nil || s.store == nil || s.signer == nil {
		return "", nil, appErrors.Clone(appErrors.ErrNotFound, "downloads are unavailable")
	}
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return "", nil, appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download token")
	}
	file, err := s.store.Open(relPath)
	if err != nil {
		return "", nil, appErrors.Clone(appErrors.ErrNotFound, "file no longer available")
	}
	return relPath, file, nil
}

func buildHistoryDataset(history []models.DailyObservation, to *time.Time) export.Dataset {
	headers := []string{"Date", "State", "Steps", "Sleep Hours", "HRV"}
	rows := make([]map[string]string, 0, len(history))
	for _, obs := range history {
		if to != nil && obs.Date.After(*to) {
			continue
		}
		row := map[string]string{
			"Date":  obs.Date.Format("2006-01-02"),
			"State": string(obs.State),
			"Steps": strconv.Itoa(obs.Steps),
		}
		if obs.SleepHours != nil {
			row["Sleep Hours"] = strconv.FormatFloat(*obs.SleepHours, 'f', 1, 64)
		}
		if obs.HRV != nil {
			row["HRV"] = strconv.FormatFloat(*obs.HRV, 'f', 0, 64)
		}
		rows = append(rows, row)
	}
	return export.Dataset{Headers: headers, Rows: rows}
}

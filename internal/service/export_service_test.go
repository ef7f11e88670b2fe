package service

import (
	"context"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/symbi-app/symbi-api/internal/models"
	appErrors "github.com/symbi-app/symbi-api/pkg/errors"
	"github.com/symbi-app/symbi-api/pkg/storage"
)

func newTestExportService(t *testing.T, history []models.DailyObservation) *ExportService {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	observations := &evolutionObservationRepoStub{history: history}
	pets := ownedPetStub()
	return NewExportService(observations, pets, store, signer, "/api/v1/downloads", nil, true)
}

func exportHistory() []models.DailyObservation {
	history := makeHistory(models.StateActive, models.StateSad, models.StateVibrant)
	for i := range history {
		history[i].PetID = "pet-1"
		history[i].Steps = 4000 + i*1000
	}
	return history
}

func TestExportGenerateCSVRoundTrip(t *testing.T) {
	svc := newTestExportService(t, exportHistory())

	result, err := svc.Generate(context.Background(), "user-1", "pet-1", models.ExportFormatCSV, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, models.ExportFormatCSV, result.Format)
	require.Contains(t, result.DownloadURL, "/api/v1/downloads?token=")

	token := strings.TrimPrefix(result.DownloadURL, "/api/v1/downloads?token=")
	relPath, file, err := svc.Download(unescape(t, token))
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck

	assert.True(t, strings.HasSuffix(relPath, ".csv"))
	content, err := io.ReadAll(file)
	require.NoError(t, err)

	text := string(content)
	assert.Contains(t, text, "Date,State,Steps")
	assert.Contains(t, text, "ACTIVE")
	assert.Contains(t, text, "VIBRANT")
}

func TestExportGeneratePDF(t *testing.T) {
	svc := newTestExportService(t, exportHistory())

	result, err := svc.Generate(context.Background(), "user-1", "pet-1", models.ExportFormatPDF, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ExportFormatPDF, result.Format)
	assert.False(t, result.ExpiresAt.IsZero())
}

func TestExportGenerateRejectsUnknownFormat(t *testing.T) {
	svc := newTestExportService(t, exportHistory())

	_, err := svc.Generate(context.Background(), "user-1", "pet-1", models.ExportFormat("xlsx"), nil, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestExportGenerateEnforcesOwnership(t *testing.T) {
	svc := newTestExportService(t, exportHistory())

	_, err := svc.Generate(context.Background(), "stranger", "pet-1", models.ExportFormatCSV, nil, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportDownloadRejectsBadToken(t *testing.T) {
	svc := newTestExportService(t, nil)

	_, _, err := svc.Download("tampered-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func unescape(t *testing.T, token string) string {
	t.Helper()
	unescaped, err := url.QueryUnescape(token)
	require.NoError(t, err)
	return unescaped
}

func TestDownloadServesAppearanceWhenExportsDisabled(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewExportService(&evolutionObservationRepoStub{}, ownedPetStub(), store, signer, "/api/v1/downloads", nil, false)

	// Appearance images share the download endpoint with exports, so a
	// valid token stays downloadable even when export generation is off.
	relPath := "pets/pet-1/level-2.png"
	_, err = store.Save(relPath, []byte("png-bytes"))
	require.NoError(t, err)
	token, _, err := signer.Generate("pet-1", relPath)
	require.NoError(t, err)

	gotPath, file, err := svc.Download(token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck

	assert.Equal(t, relPath, gotPath)
	content, err := io.ReadAll(file)
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(content))
}

func TestGenerateRejectedWhenExportsDisabled(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewExportService(&evolutionObservationRepoStub{history: exportHistory()}, ownedPetStub(), store, signer, "/api/v1/downloads", nil, false)

	_, err = svc.Generate(context.Background(), "user-1", "pet-1", models.ExportFormatCSV, nil, nil)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

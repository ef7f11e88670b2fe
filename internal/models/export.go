package models

import "time"

// ExportFormat selects the rendering for a mood-history export.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// Valid returns true when the format is supported.
func (f ExportFormat) Valid() bool {
	return f == ExportFormatCSV || f == ExportFormatPDF
}

// ExportResult describes a generated export file and its signed download URL.
type ExportResult struct {
	FileID      string       `json:"file_id"`
	Format      ExportFormat `json:"format"`
	DownloadURL string       `json:"download_url"`
	ExpiresAt   time.Time    `json:"expires_at"`
}

package storage

import (
	"io"
	"path/filepath"

	"github.com/google/uuid"
)

type UsageStats struct {
	TotalBytes uint64
	FreeBytes  uint64
}

// Storage abstracts the shared disk that report exports are written to.
type Storage interface {
	Read(path string) (io.ReadCloser, error)

	Write(path string, data io.Reader) error

	Append(path string, data io.Reader) error

	Delete(path string) error

	List(path string) ([]string, error)

	Exists(path string) (bool, error)

	Size(path string) (int64, error)

	Usage() (UsageStats, error)

	Location() string
}

// SurveyExportPath is the location of the response export for a campaign.
func SurveyExportPath(campaignId uuid.UUID) string {
	return filepath.Join("exports", "surveys", campaignId.String()+".csv")
}

// OkrExportPath is the location of the progress report for a cycle.
func OkrExportPath(cycleId uuid.UUID) string {
	return filepath.Join("exports", "okr", cycleId.String()+".csv")
}

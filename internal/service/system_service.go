package service

import (
	"context"
	"database/sql"

	"github.com/ndewijer/SPV-Distribution-Engine/internal/database"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/model"
	"github.com/ndewijer/SPV-Distribution-Engine/internal/version"
)

// SystemService handles system-related operations
type SystemService struct {
	db *sql.DB
}

// NewSystemService creates a new SystemService
func NewSystemService(db *sql.DB) *SystemService {
	return &SystemService{
		db: db,
	}
}

// CheckHealth checks the health of the system
func (s *SystemService) CheckHealth(ctx context.Context) error {
	return database.HealthCheck(ctx, s.db)
}

// CheckVersion reports the build version and the applied schema version.
func (s *SystemService) CheckVersion() (model.VersionInfo, error) {
	schema, err := database.SchemaVersion(s.db)
	if err != nil {
		return model.VersionInfo{}, err
	}
	return model.VersionInfo{
		AppVersion:    version.Version,
		SchemaVersion: schema,
	}, nil
}

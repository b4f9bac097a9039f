// Package database provides property storage backends.
package database

import (
	"context"

	"go.uber.org/zap"

	"github.com/property-map/backend/internal/config"
	"github.com/property-map/backend/internal/geo"
	"github.com/property-map/backend/internal/models"
)

// ProximitySearcher finds properties near a point. Implementations must push the
// distance predicate down to the store rather than scanning in the caller.
type ProximitySearcher interface {
	// Nearby returns every property within radiusKm of center, images attached.
	Nearby(ctx context.Context, center geo.Point, radiusKm float64) ([]models.Property, error)
}

// Repository defines the interface for property data operations.
type Repository interface {
	ProximitySearcher

	// Create stores a new property owned by ownerID.
	Create(ctx context.Context, ownerID string, req *models.CreatePropertyRequest) (*models.Property, error)

	// GetByID retrieves a property with its images. Returns models.ErrNotFound if missing.
	GetByID(ctx context.Context, id string) (*models.Property, error)

	// Update merges the provided fields into an existing property.
	Update(ctx context.Context, id string, req *models.UpdatePropertyRequest) (*models.Property, error)

	// Delete removes a property by its ID.
	Delete(ctx context.Context, id string) error

	// Close releases the underlying resources.
	Close()
}

// NewRepository opens the backend selected by cfg.StorageDriver.
func NewRepository(cfg *config.Config, logger *zap.Logger) (Repository, error) {
	if cfg.UsesMemoryStore() {
		logger.Info("Using in-memory property store")
		return NewMemoryRepository(logger), nil
	}
	return NewPostgresRepository(cfg, logger)
}

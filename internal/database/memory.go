package database

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/property-map/backend/internal/geo"
	"github.com/property-map/backend/internal/models"
)

// MemoryRepository implements Repository in process memory. Proximity uses the
// haversine distance, matching the geography predicate of the Postgres backend.
type MemoryRepository struct {
	mu         sync.RWMutex
	properties map[string]models.Property
	logger     *zap.Logger
	now        func() time.Time
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository(logger *zap.Logger) *MemoryRepository {
	return &MemoryRepository{
		properties: make(map[string]models.Property),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Create creates a new property.
func (r *MemoryRepository) Create(_ context.Context, ownerID string, req *models.CreatePropertyRequest) (*models.Property, error) {
	now := r.now()
	property := models.Property{
		ID:        uuid.New().String(),
		UserID:    ownerID,
		Title:     req.Title,
		Address:   req.Address,
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Price:     *req.Price,
		CreatedAt: now,
		UpdatedAt: now,
		Images:    []models.PropertyImage{},
	}

	r.mu.Lock()
	r.properties[property.ID] = property
	r.mu.Unlock()

	r.logger.Info("Created property", zap.String("id", property.ID), zap.String("user_id", ownerID))
	return clone(property), nil
}

// GetByID retrieves a property by its ID.
func (r *MemoryRepository) GetByID(_ context.Context, id string) (*models.Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	property, ok := r.properties[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return clone(property), nil
}

// Nearby returns properties within radiusKm of center.
func (r *MemoryRepository) Nearby(_ context.Context, center geo.Point, radiusKm float64) ([]models.Property, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := []models.Property{}
	for _, property := range r.properties {
		distance := geo.HaversineKm(center, property.Location())
		if distance > radiusKm {
			continue
		}
		p := clone(property)
		p.DistanceKm = &distance
		result = append(result, *p)
	}
	return result, nil
}

// Update updates an existing property.
func (r *MemoryRepository) Update(_ context.Context, id string, req *models.UpdatePropertyRequest) (*models.Property, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	property, ok := r.properties[id]
	if !ok {
		return nil, models.ErrNotFound
	}

	req.Apply(&property)
	property.UpdatedAt = r.now()
	r.properties[id] = property

	r.logger.Info("Updated property", zap.String("id", id))
	return clone(property), nil
}

// Delete removes a property by its ID.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.properties[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.properties, id)

	r.logger.Info("Deleted property", zap.String("id", id))
	return nil
}

// AttachImage records an image reference on an existing property.
func (r *MemoryRepository) AttachImage(propertyID, path, url string) (*models.PropertyImage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	property, ok := r.properties[propertyID]
	if !ok {
		return nil, models.ErrNotFound
	}

	image := models.PropertyImage{
		ID:         uuid.New().String(),
		PropertyID: propertyID,
		Path:       path,
		URL:        url,
	}
	property.Images = append(property.Images, image)
	r.properties[propertyID] = property
	return &image, nil
}

// Len returns the number of stored properties.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.properties)
}

// Close is a no-op for the memory store.
func (r *MemoryRepository) Close() {
	r.logger.Info("Closed in-memory property store")
}

// clone copies p so callers never share the stored image slice.
func clone(p models.Property) *models.Property {
	images := make([]models.PropertyImage, len(p.Images))
	copy(images, p.Images)
	p.Images = images
	p.DistanceKm = nil
	return &p
}

// Package service implements the property operations on top of storage and cache.
package service

import (
	"context"
	"errors"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/property-map/backend/internal/cache"
	"github.com/property-map/backend/internal/database"
	"github.com/property-map/backend/internal/metrics"
	"github.com/property-map/backend/internal/models"
)

// DefaultRadiusKm bounds proximity listings when no radius is configured.
const DefaultRadiusKm = 10.0

// Options tune the PropertyService.
type Options struct {
	// RadiusKm is the fixed proximity radius for List.
	RadiusKm float64

	// EnforceUpdateOwnership restricts Update to the property owner.
	EnforceUpdateOwnership bool
}

// PropertyService provides the property CRUD and proximity operations.
type PropertyService struct {
	repo     database.Repository
	cache    cache.Cache
	validate *validator.Validate
	opts     Options
	logger   *zap.Logger
}

// NewPropertyService creates a new PropertyService.
func NewPropertyService(repo database.Repository, c cache.Cache, opts Options, logger *zap.Logger) *PropertyService {
	if opts.RadiusKm <= 0 {
		opts.RadiusKm = DefaultRadiusKm
	}
	return &PropertyService{
		repo:     repo,
		cache:    c,
		validate: newValidator(),
		opts:     opts,
		logger:   logger,
	}
}

// RadiusKm returns the proximity radius used by List.
func (s *PropertyService) RadiusKm() float64 {
	return s.opts.RadiusKm
}

// Create validates req and stores a new property owned by ownerID.
func (s *PropertyService) Create(ctx context.Context, ownerID string, req *models.CreatePropertyRequest) (*models.Property, error) {
	if ownerID == "" {
		return nil, models.ErrUnauthorized
	}
	if err := s.check(req); err != nil {
		return nil, err
	}

	property, err := s.repo.Create(ctx, ownerID, req)
	if err != nil {
		return nil, err
	}

	s.written(ctx, property)
	return property, nil
}

// List returns every property within the configured radius of the query center.
func (s *PropertyService) List(ctx context.Context, q *models.NearbyQuery) ([]models.Property, error) {
	if err := s.check(q); err != nil {
		return nil, err
	}
	center := q.Center()

	// The generation is read before storage so a write landing in between
	// leaves this listing under a retired key.
	gen, genErr := s.cache.NearbyGeneration(ctx)
	if genErr == nil {
		if properties, found, err := s.cache.GetNearby(ctx, gen, center, s.opts.RadiusKm); err == nil && found {
			s.logger.Debug("Returning cached nearby properties", zap.Int("count", len(properties)))
			return properties, nil
		}
	}

	properties, err := s.repo.Nearby(ctx, center, s.opts.RadiusKm)
	if err != nil {
		return nil, err
	}
	metrics.NearbyResults.Observe(float64(len(properties)))

	if genErr == nil {
		_ = s.cache.SetNearby(ctx, gen, center, s.opts.RadiusKm, properties)
	}
	return properties, nil
}

// Get returns the property with the given ID.
func (s *PropertyService) Get(ctx context.Context, id string) (*models.Property, error) {
	if property, err := s.cache.Get(ctx, id); err == nil && property != nil {
		return property, nil
	}

	property, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	_ = s.cache.Set(ctx, property)
	return property, nil
}

// Update merges the provided fields into the property. When ownership is
// enforced, userID must be the owner.
func (s *PropertyService) Update(ctx context.Context, id, userID string, req *models.UpdatePropertyRequest) (*models.Property, error) {
	if err := s.check(req); err != nil {
		return nil, err
	}

	if s.opts.EnforceUpdateOwnership {
		if err := s.authorize(ctx, id, userID); err != nil {
			return nil, err
		}
	}

	property, err := s.repo.Update(ctx, id, req)
	if err != nil {
		return nil, err
	}

	s.written(ctx, property)
	return property, nil
}

// Delete removes the property if userID owns it. Otherwise nothing is mutated.
func (s *PropertyService) Delete(ctx context.Context, id, userID string) error {
	if err := s.authorize(ctx, id, userID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	_ = s.cache.Delete(ctx, id)
	_ = s.cache.InvalidateNearby(ctx)
	return nil
}

// written refreshes the cached property and drops every nearby listing,
// whether or not the refresh succeeded.
func (s *PropertyService) written(ctx context.Context, property *models.Property) {
	_ = s.cache.Set(ctx, property)
	_ = s.cache.InvalidateNearby(ctx)
}

// authorize loads the property from storage, bypassing the cache, and compares owners.
func (s *PropertyService) authorize(ctx context.Context, id, userID string) error {
	property, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if userID == "" || property.UserID != userID {
		s.logger.Warn("Rejected mutation by non-owner",
			zap.String("id", id),
			zap.String("user_id", userID),
		)
		return models.ErrUnauthorized
	}
	return nil
}

// check runs struct validation and converts failures into a ValidationError.
func (s *PropertyService) check(v interface{}) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	fields := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		fields[fe.Field()] = describe(fe)
	}
	return models.NewValidationError(fields)
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "latitude":
		return "must be between -90 and 90"
	case "longitude":
		return "must be between -180 and 180"
	case "gte":
		return "must be at least " + fe.Param()
	case "min":
		return "must not be empty"
	case "max":
		return "must be at most " + fe.Param() + " bytes"
	case "lte":
		return "must be at most " + fe.Param()
	case "cents":
		return "must have at most two decimal places"
	default:
		return "is invalid"
	}
}

// newValidator reports field names the way clients send them: JSON name, then form name.
func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("cents", hasCents)
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "form"} {
			name := strings.SplitN(f.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// hasCents accepts numbers whose shortest decimal form has at most two
// decimal places.
func hasCents(fl validator.FieldLevel) bool {
	field := fl.Field()
	if field.Kind() != reflect.Float32 && field.Kind() != reflect.Float64 {
		return false
	}
	bits := 64
	if field.Kind() == reflect.Float32 {
		bits = 32
	}
	formatted := strconv.FormatFloat(field.Float(), 'f', -1, bits)
	_, decimals, found := strings.Cut(formatted, ".")
	return !found || len(decimals) <= 2
}

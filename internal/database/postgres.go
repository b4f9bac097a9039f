package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/property-map/backend/internal/config"
	"github.com/property-map/backend/internal/geo"
	"github.com/property-map/backend/internal/models"
)

const propertyColumns = `id, user_id, title, address, latitude, longitude, price::float8, created_at, updated_at`

// PostgresRepository implements Repository using PostgreSQL with PostGIS.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(cfg *config.Config, logger *zap.Logger) (Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &PostgresRepository{
		pool:   pool,
		logger: logger,
	}

	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Connected to PostgreSQL database")
	return repo, nil
}

// migrate creates the necessary database tables if they don't exist.
func (r *PostgresRepository) migrate(ctx context.Context) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS postgis;

		CREATE TABLE IF NOT EXISTS properties (
			id UUID PRIMARY KEY,
			user_id VARCHAR(128) NOT NULL,
			title VARCHAR(256) NOT NULL,
			address VARCHAR(256) NOT NULL,
			latitude DOUBLE PRECISION NOT NULL CHECK (latitude BETWEEN -90 AND 90),
			longitude DOUBLE PRECISION NOT NULL CHECK (longitude BETWEEN -180 AND 180),
			price NUMERIC(14, 2) NOT NULL CHECK (price >= 0),
			location GEOGRAPHY(Point, 4326)
				GENERATED ALWAYS AS (ST_SetSRID(ST_MakePoint(longitude, latitude), 4326)::geography) STORED,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_properties_location ON properties USING GIST (location);
		CREATE INDEX IF NOT EXISTS idx_properties_user_id ON properties(user_id);

		CREATE TABLE IF NOT EXISTS property_images (
			id UUID PRIMARY KEY,
			property_id UUID NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
			path TEXT NOT NULL,
			url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_property_images_property_id ON property_images(property_id);
	`

	_, err := r.pool.Exec(ctx, query)
	return err
}

// Create creates a new property. The returned record is the stored row, so
// price reflects the column's precision.
func (r *PostgresRepository) Create(ctx context.Context, ownerID string, req *models.CreatePropertyRequest) (*models.Property, error) {
	now := time.Now().UTC()

	query := `
		INSERT INTO properties (id, user_id, title, address, latitude, longitude, price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + propertyColumns

	property, err := scanProperty(r.pool.QueryRow(ctx, query,
		uuid.New().String(),
		ownerID,
		req.Title,
		req.Address,
		*req.Latitude,
		*req.Longitude,
		*req.Price,
		now,
		now,
	))
	if err != nil {
		r.logger.Error("Failed to create property", zap.Error(err))
		return nil, fmt.Errorf("failed to create property: %w", err)
	}
	property.Images = []models.PropertyImage{}

	r.logger.Info("Created property", zap.String("id", property.ID), zap.String("user_id", ownerID))
	return property, nil
}

// scanProperty reads one row selected with propertyColumns.
func scanProperty(row pgx.Row) (*models.Property, error) {
	var property models.Property
	err := row.Scan(
		&property.ID,
		&property.UserID,
		&property.Title,
		&property.Address,
		&property.Latitude,
		&property.Longitude,
		&property.Price,
		&property.CreatedAt,
		&property.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &property, nil
}

// GetByID retrieves a property by its ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Property, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	query := `SELECT ` + propertyColumns + ` FROM properties WHERE id = $1`

	property, err := scanProperty(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get property", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get property: %w", err)
	}

	properties := []models.Property{*property}
	if err := r.attachImages(ctx, properties); err != nil {
		return nil, err
	}
	return &properties[0], nil
}

// Nearby returns properties whose location lies within radiusKm of center.
func (r *PostgresRepository) Nearby(ctx context.Context, center geo.Point, radiusKm float64) ([]models.Property, error) {
	query := `
		SELECT ` + propertyColumns + `,
		       ST_Distance(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) / 1000.0 AS distance_km
		FROM properties
		WHERE ST_DWithin(location, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY distance_km
	`

	rows, err := r.pool.Query(ctx, query, center.Longitude, center.Latitude, radiusKm*1000)
	if err != nil {
		r.logger.Error("Failed to query nearby properties", zap.Error(err))
		return nil, fmt.Errorf("failed to query nearby properties: %w", err)
	}
	defer rows.Close()

	properties := []models.Property{}
	for rows.Next() {
		var property models.Property
		var distance float64
		err := rows.Scan(
			&property.ID,
			&property.UserID,
			&property.Title,
			&property.Address,
			&property.Latitude,
			&property.Longitude,
			&property.Price,
			&property.CreatedAt,
			&property.UpdatedAt,
			&distance,
		)
		if err != nil {
			r.logger.Error("Failed to scan property row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan property: %w", err)
		}
		property.DistanceKm = &distance
		properties = append(properties, property)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate properties: %w", err)
	}

	if err := r.attachImages(ctx, properties); err != nil {
		return nil, err
	}
	return properties, nil
}

// attachImages loads the images of every property in one query.
func (r *PostgresRepository) attachImages(ctx context.Context, properties []models.Property) error {
	if len(properties) == 0 {
		return nil
	}

	ids := make([]string, len(properties))
	index := make(map[string]int, len(properties))
	for i := range properties {
		ids[i] = properties[i].ID
		index[properties[i].ID] = i
		properties[i].Images = []models.PropertyImage{}
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, property_id, path, url
		FROM property_images
		WHERE property_id = ANY($1::uuid[])
		ORDER BY created_at
	`, ids)
	if err != nil {
		r.logger.Error("Failed to load property images", zap.Error(err))
		return fmt.Errorf("failed to load property images: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var image models.PropertyImage
		if err := rows.Scan(&image.ID, &image.PropertyID, &image.Path, &image.URL); err != nil {
			return fmt.Errorf("failed to scan property image: %w", err)
		}
		if i, ok := index[image.PropertyID]; ok {
			properties[i].Images = append(properties[i].Images, image)
		}
	}
	return rows.Err()
}

// Update merges the provided fields into an existing property. The merge runs
// in SQL so concurrent partial updates of different fields both survive.
func (r *PostgresRepository) Update(ctx context.Context, id string, req *models.UpdatePropertyRequest) (*models.Property, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}

	query := `
		UPDATE properties
		SET title = COALESCE($2::text, title),
		    address = COALESCE($3::text, address),
		    latitude = COALESCE($4::float8, latitude),
		    longitude = COALESCE($5::float8, longitude),
		    price = COALESCE($6::numeric, price),
		    updated_at = $7
		WHERE id = $1
		RETURNING ` + propertyColumns

	property, err := scanProperty(r.pool.QueryRow(ctx, query,
		id,
		req.Title,
		req.Address,
		req.Latitude,
		req.Longitude,
		req.Price,
		time.Now().UTC(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to update property", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update property: %w", err)
	}

	properties := []models.Property{*property}
	if err := r.attachImages(ctx, properties); err != nil {
		return nil, err
	}

	r.logger.Info("Updated property", zap.String("id", id))
	return &properties[0], nil
}

// Delete removes a property by its ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return models.ErrNotFound
	}

	result, err := r.pool.Exec(ctx, `DELETE FROM properties WHERE id = $1`, id)
	if err != nil {
		r.logger.Error("Failed to delete property", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete property: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	r.logger.Info("Deleted property", zap.String("id", id))
	return nil
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
	r.logger.Info("Closed database connection")
}

// Package models contains the data models for the application.
package models

import (
	"time"

	"github.com/property-map/backend/internal/geo"
)

// Property is a listing pinned to a geographic location.
type Property struct {
	ID         string          `json:"id"`
	UserID     string          `json:"user_id"`
	Title      string          `json:"title"`
	Address    string          `json:"address"`
	Latitude   float64         `json:"latitude"`
	Longitude  float64         `json:"longitude"`
	Price      float64         `json:"price"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Images     []PropertyImage `json:"images"`
	DistanceKm *float64        `json:"distance_km,omitempty"`
}

// Location returns the property's coordinates as a geo.Point.
func (p *Property) Location() geo.Point {
	return geo.Point{Latitude: p.Latitude, Longitude: p.Longitude}
}

// PropertyImage is a reference to an image attached to a property.
type PropertyImage struct {
	ID         string `json:"id"`
	PropertyID string `json:"property_id"`
	Path       string `json:"path"`
	URL        string `json:"url"`
}

// MaxPrice is the largest price the price column holds, NUMERIC(14, 2).
const MaxPrice = 999999999999.99

// CreatePropertyRequest represents the request body for creating a property.
// Numeric fields are pointers so that a zero coordinate is distinguishable from a missing one.
// Prices carry at most two decimal places ("cents").
type CreatePropertyRequest struct {
	Title     string   `json:"title" validate:"required,max=256"`
	Address   string   `json:"address" validate:"required,max=256"`
	Latitude  *float64 `json:"latitude" validate:"required,latitude"`
	Longitude *float64 `json:"longitude" validate:"required,longitude"`
	Price     *float64 `json:"price" validate:"required,gte=0,lte=999999999999.99,cents"`
}

// UpdatePropertyRequest represents the request body for updating a property.
// Only non-nil fields are merged into the stored record.
type UpdatePropertyRequest struct {
	Title     *string  `json:"title,omitempty" validate:"omitempty,min=1,max=256"`
	Address   *string  `json:"address,omitempty" validate:"omitempty,min=1,max=256"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,latitude"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,longitude"`
	Price     *float64 `json:"price,omitempty" validate:"omitempty,gte=0,lte=999999999999.99,cents"`
}

// Apply merges the provided fields into p.
func (r *UpdatePropertyRequest) Apply(p *Property) {
	if r.Title != nil {
		p.Title = *r.Title
	}
	if r.Address != nil {
		p.Address = *r.Address
	}
	if r.Latitude != nil {
		p.Latitude = *r.Latitude
	}
	if r.Longitude != nil {
		p.Longitude = *r.Longitude
	}
	if r.Price != nil {
		p.Price = *r.Price
	}
}

// NearbyQuery holds the center of a proximity listing.
type NearbyQuery struct {
	Latitude  *float64 `form:"latitude" validate:"required,latitude"`
	Longitude *float64 `form:"longitude" validate:"required,longitude"`
}

// Center returns the query center. It must only be called after validation.
func (q *NearbyQuery) Center() geo.Point {
	return geo.Point{Latitude: *q.Latitude, Longitude: *q.Longitude}
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

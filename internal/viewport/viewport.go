// Package viewport keeps a map camera and its nearby property markers in sync
// with the property API.
package viewport

import (
	"time"

	"github.com/property-map/backend/internal/geo"
	"github.com/property-map/backend/internal/models"
)

// DefaultQuietPeriod is how long the camera must rest before a refetch.
const DefaultQuietPeriod = 500 * time.Millisecond

// Viewport is the camera state of the map.
type Viewport struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Zoom      float64 `json:"zoom"`
	Bearing   float64 `json:"bearing"`
	Pitch     float64 `json:"pitch"`
}

// DefaultViewport is the camera position used before any user interaction.
var DefaultViewport = Viewport{
	Latitude:  -27.2108001,
	Longitude: -49.6446024,
	Zoom:      12.8,
	Bearing:   0,
	Pitch:     0,
}

// Center returns the point the proximity query is issued around.
func (v Viewport) Center() geo.Point {
	return geo.Point{Latitude: v.Latitude, Longitude: v.Longitude}
}

// Marker is what the rendering surface draws for one property.
type Marker struct {
	PropertyID string  `json:"property_id"`
	Title      string  `json:"title"`
	Price      float64 `json:"price"`
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
}

// MarkersFor builds one marker per property, in the same order.
func MarkersFor(properties []models.Property) []Marker {
	markers := make([]Marker, len(properties))
	for i, p := range properties {
		markers[i] = Marker{
			PropertyID: p.ID,
			Title:      p.Title,
			Price:      p.Price,
			Latitude:   p.Latitude,
			Longitude:  p.Longitude,
		}
	}
	return markers
}

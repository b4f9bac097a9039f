// Package handler provides the HTTP handlers for property operations.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/property-map/backend/internal/auth"
	"github.com/property-map/backend/internal/models"
)

// PropertyService is the set of operations the handler exposes over HTTP.
type PropertyService interface {
	Create(ctx context.Context, ownerID string, req *models.CreatePropertyRequest) (*models.Property, error)
	List(ctx context.Context, q *models.NearbyQuery) ([]models.Property, error)
	Get(ctx context.Context, id string) (*models.Property, error)
	Update(ctx context.Context, id, userID string, req *models.UpdatePropertyRequest) (*models.Property, error)
	Delete(ctx context.Context, id, userID string) error
}

// Handler provides HTTP handlers for property operations.
type Handler struct {
	svc           PropertyService
	authenticator *auth.Authenticator
	protectUpdate bool
	logger        *zap.Logger
}

// NewHandler creates a new property handler. When protectUpdate is set,
// PUT and PATCH require a bearer token.
func NewHandler(svc PropertyService, authenticator *auth.Authenticator, protectUpdate bool, logger *zap.Logger) *Handler {
	return &Handler{
		svc:           svc,
		authenticator: authenticator,
		protectUpdate: protectUpdate,
		logger:        logger,
	}
}

// RegisterRoutes registers the handler routes on the given router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	requireUser := h.authenticator.Required()

	updateChain := []gin.HandlerFunc{h.Update}
	if h.protectUpdate {
		updateChain = append([]gin.HandlerFunc{requireUser}, updateChain...)
	}

	rg.GET("/properties", h.List)
	rg.POST("/properties", requireUser, h.Create)
	rg.GET("/properties/:id", h.Get)
	rg.PUT("/properties/:id", updateChain...)
	rg.PATCH("/properties/:id", updateChain...)
	rg.DELETE("/properties/:id", requireUser, h.Delete)
}

// Create handles the creation of a new property.
// @Summary Create property
// @Tags properties
// @Accept json
// @Produce json
// @Param property body models.CreatePropertyRequest true "Property data"
// @Success 201 {object} models.Property
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Router /api/v1/properties [post]
func (h *Handler) Create(c *gin.Context) {
	var req models.CreatePropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid create request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	property, err := h.svc.Create(c.Request.Context(), auth.UserID(c), &req)
	if err != nil {
		h.respondError(c, "failed to create property", err)
		return
	}

	c.JSON(http.StatusCreated, property)
}

// List handles the proximity listing around the latitude/longitude query parameters.
// @Summary List nearby properties
// @Tags properties
// @Produce json
// @Param latitude query number true "Center latitude"
// @Param longitude query number true "Center longitude"
// @Success 200 {array} models.Property
// @Failure 400 {object} models.ErrorResponse
// @Router /api/v1/properties [get]
func (h *Handler) List(c *gin.Context) {
	// Query binding turns an empty value into 0, which is a valid coordinate.
	if fields := blankQueryParams(c, "latitude", "longitude"); len(fields) > 0 {
		h.respondError(c, "invalid list query", models.NewValidationError(fields))
		return
	}

	var q models.NearbyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.logger.Warn("Invalid list query", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "latitude and longitude must be numbers",
		})
		return
	}

	properties, err := h.svc.List(c.Request.Context(), &q)
	if err != nil {
		h.respondError(c, "failed to retrieve properties", err)
		return
	}

	c.JSON(http.StatusOK, properties)
}

// Get handles retrieving a single property by ID.
// @Summary Get property by ID
// @Tags properties
// @Produce json
// @Param id path string true "Property ID"
// @Success 200 {object} models.Property
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/properties/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id := c.Param("id")

	property, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "failed to retrieve property", err)
		return
	}

	c.JSON(http.StatusOK, property)
}

// Update handles updating an existing property.
// @Summary Update property
// @Tags properties
// @Accept json
// @Produce json
// @Param id path string true "Property ID"
// @Param property body models.UpdatePropertyRequest true "Fields to change"
// @Success 200 {object} models.Property
// @Failure 400 {object} models.ErrorResponse
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/properties/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id := c.Param("id")

	var req models.UpdatePropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid update request", zap.Error(err))
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: err.Error(),
		})
		return
	}

	property, err := h.svc.Update(c.Request.Context(), id, auth.UserID(c), &req)
	if err != nil {
		h.respondError(c, "failed to update property", err)
		return
	}

	c.JSON(http.StatusOK, property)
}

// Delete handles deleting a property owned by the caller.
// @Summary Delete property
// @Tags properties
// @Param id path string true "Property ID"
// @Success 204 "No Content"
// @Failure 401 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/properties/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id := c.Param("id")

	if err := h.svc.Delete(c.Request.Context(), id, auth.UserID(c)); err != nil {
		h.respondError(c, "failed to delete property", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// blankQueryParams reports the named parameters that are present but empty.
func blankQueryParams(c *gin.Context, names ...string) map[string]string {
	fields := map[string]string{}
	for _, name := range names {
		if v, ok := c.GetQuery(name); ok && strings.TrimSpace(v) == "" {
			fields[name] = "is required"
		}
	}
	return fields
}

// respondError maps service errors to HTTP responses.
func (h *Handler) respondError(c *gin.Context, message string, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_failed",
			Message: verr.Error(),
			Fields:  verr.Fields,
		})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "property not found",
		})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: "Not authorized",
		})
	default:
		h.logger.Error(message, zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: message,
		})
	}
}

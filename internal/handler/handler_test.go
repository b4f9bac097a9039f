package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/property-map/backend/internal/auth"
	"github.com/property-map/backend/internal/models"
)

const testSecret = "test-secret"

// MockService implements PropertyService for testing
type MockService struct {
	mock.Mock
}

func (m *MockService) Create(ctx context.Context, ownerID string, req *models.CreatePropertyRequest) (*models.Property, error) {
	args := m.Called(ctx, ownerID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockService) List(ctx context.Context, q *models.NearbyQuery) ([]models.Property, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Property), args.Error(1)
}

func (m *MockService) Get(ctx context.Context, id string) (*models.Property, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockService) Update(ctx context.Context, id, userID string, req *models.UpdatePropertyRequest) (*models.Property, error) {
	args := m.Called(ctx, id, userID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Property), args.Error(1)
}

func (m *MockService) Delete(ctx context.Context, id, userID string) error {
	return m.Called(ctx, id, userID).Error(0)
}

func setupTestHandler(protectUpdate bool) (*MockService, *gin.Engine) {
	gin.SetMode(gin.TestMode)

	mockSvc := new(MockService)
	logger, _ := zap.NewDevelopment()

	handler := NewHandler(mockSvc, auth.NewAuthenticator(testSecret), protectUpdate, logger)

	engine := gin.New()
	rg := engine.Group("/api/v1")
	handler.RegisterRoutes(rg)

	return mockSvc, engine
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := auth.NewAuthenticator(testSecret).IssueToken(userID, time.Hour)
	require.NoError(t, err)
	return "Bearer " + token
}

func TestCreate_Success(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	expected := &models.Property{
		ID:        "test-uuid",
		UserID:    "user-1",
		Title:     "Casa",
		Address:   "Rua A",
		Latitude:  -27.21,
		Longitude: -49.64,
		Price:     1500,
		CreatedAt: time.Now(),
		Images:    []models.PropertyImage{},
	}

	mockSvc.On("Create", mock.Anything, "user-1", mock.MatchedBy(func(req *models.CreatePropertyRequest) bool {
		return req.Title == "Casa" && *req.Latitude == -27.21 && *req.Price == 1500
	})).Return(expected, nil)

	body := `{"title": "Casa", "address": "Rua A", "latitude": -27.21, "longitude": -49.64, "price": 1500}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/properties", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, "user-1"))
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)

	var response models.Property
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Equal(t, expected.ID, response.ID)
	assert.Equal(t, "user-1", response.UserID)

	mockSvc.AssertExpectations(t)
}

func TestCreate_RequiresToken(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	body := `{"title": "Casa", "address": "Rua A", "latitude": 1, "longitude": 1, "price": 1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/properties", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockSvc.AssertNotCalled(t, "Create")
}

func TestCreate_MalformedBody(t *testing.T) {
	_, engine := setupTestHandler(true)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/properties", bytes.NewBufferString(`{"title": `))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, "user-1"))
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreate_ValidationFailed(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	mockSvc.On("Create", mock.Anything, "user-1", mock.Anything).Return(nil,
		models.NewValidationError(map[string]string{"price": "is required"}))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/properties", bytes.NewBufferString(`{"title": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, "user-1"))
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)

	var response models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "validation_failed", response.Error)
	assert.Equal(t, "is required", response.Fields["price"])
}

func TestList_Success(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	nearby := []models.Property{
		{ID: "1", Title: "Near", Latitude: -27.2, Longitude: -49.6},
	}

	mockSvc.On("List", mock.Anything, mock.MatchedBy(func(q *models.NearbyQuery) bool {
		return q.Latitude != nil && *q.Latitude == -27.2108 && *q.Longitude == -49.6446
	})).Return(nearby, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/properties?latitude=-27.2108&longitude=-49.6446", nil)
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var response []models.Property
	err := json.Unmarshal(w.Body.Bytes(), &response)
	assert.NoError(t, err)
	assert.Len(t, response, 1)

	mockSvc.AssertExpectations(t)
}

func TestList_NonNumericCoordinates(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/properties?latitude=north&longitude=1", nil)
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "List")
}

func TestList_EmptyCoordinates(t *testing.T) {
	tests := []struct {
		name   string
		query  string
		fields []string
	}{
		{"both empty", "latitude=&longitude=", []string{"latitude", "longitude"}},
		{"latitude empty", "latitude=&longitude=1", []string{"latitude"}},
		{"longitude blank", "latitude=1&longitude=%20", []string{"longitude"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc, engine := setupTestHandler(true)

			w := httptest.NewRecorder()
			engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/properties?"+tt.query, nil))

			assert.Equal(t, http.StatusBadRequest, w.Code)

			var resp models.ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, "validation_failed", resp.Error)
			for _, field := range tt.fields {
				assert.Contains(t, resp.Fields, field)
			}
			mockSvc.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
		})
	}
}

func TestList_InternalError(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	mockSvc.On("List", mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/properties?latitude=1&longitude=1", nil)
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestGet_NotFound(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	mockSvc.On("Get", mock.Anything, "nonexistent").Return(nil, models.ErrNotFound)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/properties/nonexistent", nil)
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestUpdate_Success(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	updated := &models.Property{ID: "test-id", UserID: "user-1", Title: "Updated", Price: 99}

	mockSvc.On("Update", mock.Anything, "test-id", "user-1", mock.MatchedBy(func(req *models.UpdatePropertyRequest) bool {
		return req.Price != nil && *req.Price == 99 && req.Title == nil
	})).Return(updated, nil)

	req := httptest.NewRequest(http.MethodPatch, "/api/v1/properties/test-id", bytes.NewBufferString(`{"price": 99}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, "user-1"))
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestUpdate_ProtectedRequiresToken(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/properties/test-id", bytes.NewBufferString(`{"price": 1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	mockSvc.AssertNotCalled(t, "Update")
}

func TestUpdate_UnprotectedAllowsAnonymous(t *testing.T) {
	mockSvc, engine := setupTestHandler(false)

	mockSvc.On("Update", mock.Anything, "test-id", "", mock.Anything).Return(&models.Property{ID: "test-id"}, nil)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/properties/test-id", bytes.NewBufferString(`{"price": 1}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestUpdate_NotFound(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	mockSvc.On("Update", mock.Anything, "nonexistent", "user-1", mock.Anything).Return(nil, models.ErrNotFound)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/properties/nonexistent", bytes.NewBufferString(`{"title": "x"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", bearer(t, "user-1"))
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDelete_Success(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	mockSvc.On("Delete", mock.Anything, "test-id", "user-1").Return(nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/properties/test-id", nil)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	mockSvc.AssertExpectations(t)
}

func TestDelete_NotOwner(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	mockSvc.On("Delete", mock.Anything, "test-id", "intruder").Return(models.ErrUnauthorized)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/properties/test-id", nil)
	req.Header.Set("Authorization", bearer(t, "intruder"))
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var response models.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "unauthorized", response.Error)
}

func TestDelete_NotFound(t *testing.T) {
	mockSvc, engine := setupTestHandler(true)

	mockSvc.On("Delete", mock.Anything, "nonexistent", "user-1").Return(models.ErrNotFound)

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/properties/nonexistent", nil)
	req.Header.Set("Authorization", bearer(t, "user-1"))
	w := httptest.NewRecorder()

	engine.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

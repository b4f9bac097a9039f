// Package client is an HTTP client for the property API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/property-map/backend/internal/geo"
	"github.com/property-map/backend/internal/models"
)

// NetworkError reports a transport failure: the request never produced a response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError reports an unexpected HTTP status.
type StatusError struct {
	StatusCode int
	Body       models.ErrorResponse
}

func (e *StatusError) Error() string {
	if e.Body.Message != "" {
		return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body.Message)
	}
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

// PropertyClient talks to the /properties endpoints.
type PropertyClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Option configures a PropertyClient.
type Option func(*PropertyClient)

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) Option {
	return func(c *PropertyClient) { c.token = token }
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *PropertyClient) { c.httpClient = hc }
}

// New creates a client for the API rooted at baseURL, e.g. http://localhost:8080/api/v1.
func New(baseURL string, opts ...Option) *PropertyClient {
	c := &PropertyClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Nearby lists the properties around center.
func (c *PropertyClient) Nearby(ctx context.Context, center geo.Point) ([]models.Property, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(center.Latitude, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(center.Longitude, 'f', -1, 64))

	var properties []models.Property
	if err := c.do(ctx, http.MethodGet, "/properties?"+q.Encode(), nil, &properties); err != nil {
		return nil, err
	}
	return properties, nil
}

// Get fetches a property by ID.
func (c *PropertyClient) Get(ctx context.Context, id string) (*models.Property, error) {
	var property models.Property
	if err := c.do(ctx, http.MethodGet, "/properties/"+url.PathEscape(id), nil, &property); err != nil {
		return nil, err
	}
	return &property, nil
}

// Create stores a new property owned by the token's user.
func (c *PropertyClient) Create(ctx context.Context, req *models.CreatePropertyRequest) (*models.Property, error) {
	var property models.Property
	if err := c.do(ctx, http.MethodPost, "/properties", req, &property); err != nil {
		return nil, err
	}
	return &property, nil
}

// Update sends a partial update.
func (c *PropertyClient) Update(ctx context.Context, id string, req *models.UpdatePropertyRequest) (*models.Property, error) {
	var property models.Property
	if err := c.do(ctx, http.MethodPatch, "/properties/"+url.PathEscape(id), req, &property); err != nil {
		return nil, err
	}
	return &property, nil
}

// Delete removes a property owned by the token's user.
func (c *PropertyClient) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/properties/"+url.PathEscape(id), nil, nil)
}

func (c *PropertyClient) do(ctx context.Context, method, path string, in, out interface{}) error {
	op := method + " " + path

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return decodeError(resp)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// decodeError maps an error response back onto the model errors.
func decodeError(resp *http.Response) error {
	var body models.ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&body)

	switch resp.StatusCode {
	case http.StatusNotFound:
		return models.ErrNotFound
	case http.StatusUnauthorized:
		return models.ErrUnauthorized
	case http.StatusBadRequest:
		if len(body.Fields) > 0 {
			return models.NewValidationError(body.Fields)
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Body: body}
}

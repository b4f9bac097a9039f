// Package gateway provides the API gateway that routes property requests to the handler role.
package gateway

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/property-map/backend/internal/config"
	"github.com/property-map/backend/internal/models"
)

// Gateway forwards property requests to the handler service.
type Gateway struct {
	target     *url.URL
	logger     *zap.Logger
	httpClient *http.Client
}

// NewGateway creates a new API gateway targeting cfg.HandlerURL.
func NewGateway(cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	target, err := url.Parse(cfg.HandlerURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid HANDLER_URL %q", cfg.HandlerURL)
	}

	return &Gateway{
		target: target,
		logger: logger,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// RegisterRoutes registers the gateway routes on the given router group.
func (g *Gateway) RegisterRoutes(rg *gin.RouterGroup) {
	rg.Any("/properties", g.proxyToHandler)
	rg.Any("/properties/*path", g.proxyToHandler)
}

// proxyToHandler forwards the request unchanged and copies the handler's response back.
func (g *Gateway) proxyToHandler(c *gin.Context) {
	resp, err := g.forward(c.Request)
	if err != nil {
		g.logger.Error("Failed to proxy request", zap.String("path", c.Request.URL.Path), zap.Error(err))

		if errors.Is(err, syscall.ECONNREFUSED) {
			c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
				Error:   "service_unavailable",
				Message: "handler service is not available",
			})
			return
		}

		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "proxy_error",
			Message: "failed to reach handler service",
		})
		return
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		g.logger.Error("Failed to read response body", zap.Error(err))
		c.JSON(http.StatusBadGateway, models.ErrorResponse{
			Error:   "proxy_error",
			Message: "failed to read handler response",
		})
		return
	}

	copyHeaders(c.Writer.Header(), resp.Header)
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
}

// forward replays r against the handler service. The handler serves the same
// /api/v1 layout, so path and query are kept as they are.
func (g *Gateway) forward(r *http.Request) (*http.Response, error) {
	targetURL := *g.target
	targetURL.Path = r.URL.Path
	targetURL.RawQuery = r.URL.RawQuery

	var body []byte
	if r.Body != nil {
		var err error
		if body, err = io.ReadAll(r.Body); err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
	}

	proxyReq, err := http.NewRequestWithContext(r.Context(), r.Method, targetURL.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build proxy request: %w", err)
	}
	copyHeaders(proxyReq.Header, r.Header)
	if len(body) > 0 && proxyReq.Header.Get("Content-Type") == "" {
		proxyReq.Header.Set("Content-Type", "application/json")
	}

	g.logger.Debug("Proxying request",
		zap.String("method", r.Method),
		zap.String("target", targetURL.String()),
	)
	return g.httpClient.Do(proxyReq)
}

var hopByHopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
}

// copyHeaders copies every end-to-end header of src to dst, replacing any
// value dst already holds for that key.
func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopByHopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		dst[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
}

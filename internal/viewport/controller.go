package viewport

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/property-map/backend/internal/geo"
	"github.com/property-map/backend/internal/models"
)

// ErrStaleResponse is returned by LoadProperties when a newer load was issued
// before this one resolved. The response is discarded.
var ErrStaleResponse = errors.New("stale response discarded")

// Fetcher lists properties around a center point.
type Fetcher interface {
	Nearby(ctx context.Context, center geo.Point) ([]models.Property, error)
}

// Renderer draws the marker set. It always receives the complete set.
type Renderer interface {
	Render(markers []Marker)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(markers []Marker)

// Render calls f(markers).
func (f RendererFunc) Render(markers []Marker) { f(markers) }

// Options configure a Controller.
type Options struct {
	Initial     Viewport
	QuietPeriod time.Duration
	Clock       Clock
	Renderer    Renderer
	Logger      *zap.Logger
}

// Controller owns the camera state and the displayed property set.
type Controller struct {
	fetcher   Fetcher
	renderer  Renderer
	logger    *zap.Logger
	debouncer *Debouncer

	// renderMu orders state replacement and rendering across overlapping loads.
	renderMu sync.Mutex

	mu         sync.Mutex
	viewport   Viewport
	properties []models.Property
	issued     uint64
	applied    uint64
	loading    int
	ctx        context.Context
}

// NewController creates a controller positioned at opts.Initial, or
// DefaultViewport when Initial is the zero value.
func NewController(fetcher Fetcher, opts Options) *Controller {
	if opts.Initial == (Viewport{}) {
		opts.Initial = DefaultViewport
	}
	if opts.QuietPeriod <= 0 {
		opts.QuietPeriod = DefaultQuietPeriod
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.Renderer == nil {
		opts.Renderer = RendererFunc(func([]Marker) {})
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Controller{
		fetcher:    fetcher,
		renderer:   opts.Renderer,
		logger:     opts.Logger,
		viewport:   opts.Initial,
		properties: []models.Property{},
		ctx:        context.Background(),
	}
	c.debouncer = NewDebouncer(opts.Clock, opts.QuietPeriod, c.onViewportSettled)
	return c
}

// Mount issues the initial load around the starting camera position. ctx is
// also used for the loads triggered by later viewport changes.
func (c *Controller) Mount(ctx context.Context) error {
	c.mu.Lock()
	c.ctx = ctx
	c.mu.Unlock()

	err := c.LoadProperties(ctx)
	if errors.Is(err, ErrStaleResponse) {
		return nil
	}
	return err
}

// OnViewportChange replaces the camera state immediately and schedules a
// load for when the camera settles.
func (c *Controller) OnViewportChange(v Viewport) {
	c.mu.Lock()
	c.viewport = v
	c.mu.Unlock()

	c.debouncer.Trigger()
}

func (c *Controller) onViewportSettled() {
	c.mu.Lock()
	ctx := c.ctx
	c.mu.Unlock()

	_ = c.LoadProperties(ctx)
}

// LoadProperties fetches the properties around the current center and
// replaces the displayed set, unless a newer load was issued meanwhile. On
// failure the previous set is kept.
func (c *Controller) LoadProperties(ctx context.Context) error {
	c.mu.Lock()
	c.issued++
	c.loading++
	seq := c.issued
	center := c.viewport.Center()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.loading--
		c.mu.Unlock()
	}()

	properties, err := c.fetcher.Nearby(ctx, center)
	if err != nil {
		c.logger.Warn("Failed to load properties, keeping previous markers",
			zap.Uint64("seq", seq),
			zap.Float64("latitude", center.Latitude),
			zap.Float64("longitude", center.Longitude),
			zap.Error(err),
		)
		return err
	}
	if properties == nil {
		properties = []models.Property{}
	}

	c.renderMu.Lock()
	defer c.renderMu.Unlock()

	c.mu.Lock()
	if seq != c.issued {
		latest := c.issued
		c.mu.Unlock()
		c.logger.Debug("Discarding stale properties response",
			zap.Uint64("seq", seq),
			zap.Uint64("latest", latest),
		)
		return ErrStaleResponse
	}
	c.properties = properties
	c.applied = seq
	c.mu.Unlock()

	c.logger.Debug("Loaded properties", zap.Uint64("seq", seq), zap.Int("count", len(properties)))
	c.renderer.Render(MarkersFor(properties))
	return nil
}

// Viewport returns the current camera state.
func (c *Controller) Viewport() Viewport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport
}

// Properties returns a copy of the displayed property set.
func (c *Controller) Properties() []models.Property {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]models.Property, len(c.properties))
	copy(out, c.properties)
	return out
}

// Markers returns the markers for the displayed property set.
func (c *Controller) Markers() []Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return MarkersFor(c.properties)
}

// Sequence returns the number of loads issued and the sequence of the one
// currently displayed.
func (c *Controller) Sequence() (issued, applied uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issued, c.applied
}

// Settling reports whether a debounced load is scheduled or running.
func (c *Controller) Settling() bool {
	return c.debouncer.Pending()
}

// Busy reports whether any load is scheduled or in flight.
func (c *Controller) Busy() bool {
	if c.debouncer.Pending() {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading > 0
}

// Wait blocks until no load is scheduled or in flight, polling every
// interval, or until ctx is done.
func (c *Controller) Wait(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for c.Busy() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// Close cancels any pending debounced load.
func (c *Controller) Close() {
	c.debouncer.Stop()
}

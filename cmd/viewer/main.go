// Command viewer is a terminal stand-in for the map client. It reads viewport
// changes as JSON lines on stdin, keeps nearby property markers in sync with
// the API and prints the marker set each time it is replaced.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/property-map/backend/internal/client"
	"github.com/property-map/backend/internal/config"
	"github.com/property-map/backend/internal/viewport"
)

func main() {
	_ = godotenv.Load()

	apiURL := flag.String("api", "", "Property API base URL (overrides API_BASE_URL env var)")
	token := flag.String("token", "", "Bearer token sent with requests")
	flag.Parse()

	cfg, err := config.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *apiURL != "" {
		cfg.APIBaseURL = *apiURL
	}

	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []client.Option
	if *token != "" {
		opts = append(opts, client.WithToken(*token))
	}

	controller := viewport.NewController(client.New(cfg.APIBaseURL, opts...), viewport.Options{
		QuietPeriod: cfg.DebounceWindow,
		Renderer:    &textRenderer{w: os.Stdout},
		Logger:      logger,
	})
	defer controller.Close()

	logger.Info("Viewer started",
		zap.String("api", cfg.APIBaseURL),
		zap.Duration("debounce", cfg.DebounceWindow),
	)

	// A failed initial load is logged by the controller; the map stays empty
	_ = controller.Mount(ctx)

	if err := readViewports(ctx, os.Stdin, controller, logger); err != nil {
		logger.Error("Failed reading viewport events", zap.Error(err))
	}

	// Let the last change settle and its markers print before exiting
	if err := controller.Wait(ctx, cfg.DebounceWindow/10); err != nil {
		logger.Warn("Exiting before the last load finished", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// readViewports feeds every JSON viewport line of r to the controller until EOF.
func readViewports(ctx context.Context, r io.Reader, controller *viewport.Controller, logger *zap.Logger) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var v viewport.Viewport
		if err := json.Unmarshal(line, &v); err != nil {
			logger.Warn("Skipping malformed viewport event", zap.ByteString("line", line), zap.Error(err))
			continue
		}
		controller.OnViewportChange(v)
	}
	return scanner.Err()
}

// textRenderer prints one line per marker.
type textRenderer struct {
	w io.Writer
}

func (r *textRenderer) Render(markers []viewport.Marker) {
	fmt.Fprintf(r.w, "-- %d properties --\n", len(markers))
	for _, m := range markers {
		fmt.Fprintf(r.w, "%s\t%.6f,%.6f\t%.2f\t%s\n", m.PropertyID, m.Latitude, m.Longitude, m.Price, m.Title)
	}
}

// Package main is the entry point for the property map service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/property-map/backend/internal/auth"
	"github.com/property-map/backend/internal/cache"
	"github.com/property-map/backend/internal/config"
	"github.com/property-map/backend/internal/database"
	"github.com/property-map/backend/internal/gateway"
	"github.com/property-map/backend/internal/handler"
	"github.com/property-map/backend/internal/metrics"
	"github.com/property-map/backend/internal/service"
)

func main() {
	// A missing .env is fine; real deployments set the environment directly
	_ = godotenv.Load()

	role := flag.String("role", "", "Service role: gateway or handler (overrides SERVICE_ROLE env var)")
	port := flag.String("port", "", "Server port (overrides SERVER_PORT env var)")
	flag.Parse()

	if *role != "" {
		os.Setenv("SERVICE_ROLE", *role)
	}
	if *port != "" {
		os.Setenv("SERVER_PORT", *port)
	}

	app := fx.New(
		fx.Provide(
			config.New,
			newLogger,
			newGinEngine,
		),
		fx.Invoke(startServer),
	)

	app.Run()
}

// newLogger creates a new zap logger based on the environment.
func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// newGinEngine creates and configures a new Gin engine.
func newGinEngine(cfg *config.Config) *gin.Engine {
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(gin.Logger())
	engine.Use(metrics.Middleware())

	// CORS middleware; the map client runs in a browser on another origin
	engine.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	return engine
}

// startServer wires the configured role and starts the HTTP server.
func startServer(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger, engine *gin.Engine) error {
	logger.Info("Starting service",
		zap.String("role", cfg.Role),
		zap.String("port", cfg.ServerPort),
	)

	apiV1 := engine.Group("/api/v1")

	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"role":    cfg.Role,
			"service": "property-map",
		})
	})
	engine.GET("/metrics", metrics.Handler())

	var repo database.Repository
	var cacheClient cache.Cache

	if cfg.IsHandler() {
		var err error
		repo, err = database.NewRepository(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to open property store: %w", err)
		}

		cacheClient, err = cache.New(cfg, logger)
		if err != nil {
			repo.Close()
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}

		svc := service.NewPropertyService(repo, cacheClient, service.Options{
			RadiusKm:               cfg.SearchRadiusKm,
			EnforceUpdateOwnership: cfg.EnforceUpdateOwnership,
		}, logger)

		h := handler.NewHandler(svc, auth.NewAuthenticator(cfg.JWTSecret), cfg.EnforceUpdateOwnership, logger)
		h.RegisterRoutes(apiV1)

		logger.Info("Handler routes registered",
			zap.String("storage", cfg.StorageDriver),
			zap.Float64("radius_km", cfg.SearchRadiusKm),
			zap.Bool("update_ownership", cfg.EnforceUpdateOwnership),
		)
	} else {
		gw, err := gateway.NewGateway(cfg, logger)
		if err != nil {
			return err
		}
		gw.RegisterRoutes(apiV1)

		logger.Info("Gateway routes registered",
			zap.String("handler_url", cfg.HandlerURL),
		)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: engine,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info("Server starting", zap.String("addr", server.Addr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal("Server failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Server shutting down")

			err := server.Shutdown(ctx)

			if repo != nil {
				repo.Close()
			}
			if cacheClient != nil {
				_ = cacheClient.Close()
			}

			_ = logger.Sync()
			return err
		},
	})

	return nil
}

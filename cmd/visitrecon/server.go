package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/ehr/visitrecon/internal/config"
	"github.com/ehr/visitrecon/internal/domain/document"
	"github.com/ehr/visitrecon/internal/domain/reconcile"
	"github.com/ehr/visitrecon/internal/domain/segment"
	"github.com/ehr/visitrecon/internal/platform/auth"
	"github.com/ehr/visitrecon/internal/platform/ccda"
	"github.com/ehr/visitrecon/internal/platform/db"
	"github.com/ehr/visitrecon/internal/platform/middleware"
)

// newRouter mounts the API on a fresh echo instance.
func newRouter(a *app) *echo.Echo {
	cfg := a.cfg

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(a.telemetry.MetricsMiddleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/metrics"))

	// Infrastructure
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(a.probe))
	e.GET("/metrics", a.telemetry.PrometheusHandler())

	// API
	apiV1 := e.Group("/api/v1")
	if cfg.AuthEnabled() {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			JWKSURL:    cfg.AuthJWKSURL,
			Skipper:    auth.AuthSkipper,
		}))
	}
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	segment.NewHandler(a.segmenter, cfg.MaxPageCount).RegisterRoutes(apiV1)
	reconcile.NewHandler(a.reconciler).RegisterRoutes(apiV1)
	document.NewHandler(a.service).RegisterRoutes(apiV1)
	ccda.NewHandler(ccda.NewGenerator(cfg.CCDOrgName, cfg.CCDOrgOID), a.service).RegisterRoutes(apiV1)

	return e
}

func runServer(cfg *config.Config) error {
	logger := newLogger(cfg)
	if !cfg.AuthEnabled() {
		logger.Warn().Msg("bearer authentication disabled; set AUTH_SIGNING_KEY or AUTH_JWKS_URL")
	}

	ctx := context.Background()
	a, err := newApp(ctx, cfg, logger, nil)
	if err != nil {
		return err
	}
	defer a.close()

	e := newRouter(a)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("store", cfg.StoreDriver).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

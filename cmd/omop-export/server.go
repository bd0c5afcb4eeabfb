package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ehr/omopexport/internal/config"
	"github.com/ehr/omopexport/internal/domain/export"
	"github.com/ehr/omopexport/internal/platform/blobstore"
	"github.com/ehr/omopexport/internal/platform/db"
	"github.com/ehr/omopexport/internal/platform/middleware"
	"github.com/ehr/omopexport/internal/platform/telemetry"
)

// serverDeps is what newServer needs from the app.
type serverDeps struct {
	cfg       *config.Config
	logger    zerolog.Logger
	svc       *export.Service
	store     blobstore.Store
	signer    *blobstore.URLSigner
	telemetry *telemetry.Provider
	dbHealth  echo.HandlerFunc
}

func newServer(d serverDeps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(d.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(d.logger))
	e.Use(d.telemetry.MetricsMiddleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: d.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Content-Type", middleware.RequestIDHeader},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	if d.dbHealth != nil {
		e.GET("/health/db", d.dbHealth)
	}
	e.GET("/metrics", d.telemetry.PrometheusHandler())

	// Signed downloads only exist for the memory store; S3 URLs point at S3.
	if d.signer != nil {
		blobstore.NewDownloadHandler(d.store, d.signer).RegisterRoutes(e)
	}

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.BodyLimit(d.cfg.BodyLimit))
	apiV1.Use(middleware.RequestTimeout(d.cfg.RequestTimeout))
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: d.cfg.RateLimitRPS,
		BurstSize:         d.cfg.RateLimitBurst,
	}))
	export.NewHandler(d.svc).RegisterRoutes(apiV1)

	return e
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the job status API",
		RunE: func(cmd *cobra.Command, args []string) error {
			withWorker, _ := cmd.Flags().GetBool("worker")
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app) error {
				return runServer(ctx, a, withWorker)
			})
		},
	}
	cmd.Flags().Bool("worker", false, "Also run the export worker in this process")
	return cmd
}

func runServer(ctx context.Context, a *app, withWorker bool) error {
	e := newServer(serverDeps{
		cfg:       a.cfg,
		logger:    a.logger,
		svc:       a.svc,
		store:     a.store,
		signer:    a.signer,
		telemetry: a.telemetry,
		dbHealth:  db.HealthHandler(a.pool),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workerDone := make(chan error, 1)
	if withWorker {
		go func() { workerDone <- a.newWorker().Start(ctx) }()
	} else {
		close(workerDone)
	}

	serverErr := make(chan error, 1)
	go func() {
		addr := ":" + a.cfg.Port
		a.logger.Info().Str("addr", addr).Bool("worker", withWorker).Msg("starting server")
		var err error
		if a.cfg.TLSEnabled {
			err = e.StartTLS(addr, a.cfg.TLSCertFile, a.cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
		a.logger.Error().Err(runErr).Msg("server error")
	}

	a.logger.Info().Msg("shutting down server")
	cancel()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("server shutdown failed")
	}
	if err := <-workerDone; err != nil && runErr == nil {
		runErr = err
	}
	a.logger.Info().Msg("server stopped")
	return runErr
}

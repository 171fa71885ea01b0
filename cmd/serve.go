package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/miraassistant/mira/internal/api"
	"github.com/miraassistant/mira/internal/config"
	"github.com/miraassistant/mira/internal/logging"
	"github.com/miraassistant/mira/internal/server"
)

func newServeCmd(load configLoader) *cobra.Command {
	var (
		httpAddr    string
		metricsAddr string
		debug       bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the metrics server",
		Long: `Run the HTTP API: the Google OAuth redirect and callback, phone linking and
the calendar webhooks. Prometheus metrics are served on a separate port.

Configuration comes from mira.yaml and MIRA_* environment variables, e.g.
MIRA_GOOGLE_CLIENT_ID, MIRA_GOOGLE_CLIENT_SECRET, MIRA_GOOGLE_REDIRECT_URL and
MIRA_FRONTEND_REDIRECT_URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("http-addr") {
				cfg.HTTP.Addr = httpAddr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			if debug {
				cfg.Log.Level = "debug"
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			if !debug {
				gin.SetMode(gin.ReleaseMode)
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runServe(ctx, cfg, logger)
		},
	}

	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8080", "HTTP API listen address (overrides http.addr)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Metrics listen address (overrides metrics.addr)")
	cmd.Flags().BoolVar(&debug, "debug", false, "Enable debug logging and gin debug mode")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	a, err := bootstrap(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		a.close(closeCtx)
	}()

	health := server.NewHealthChecker(a.sc)
	handler, err := api.NewHandler(api.Config{
		FrontendRedirect: cfg.Frontend.RedirectURL,
		RateLimit:        cfg.HTTP.RateLimit,
		RateBurst:        cfg.HTTP.RateBurst,
		TrustedProxies:   cfg.HTTP.TrustedProxies,
	}, api.Deps{
		Linker:   a.sc.Linking(),
		Calendar: a.sc.Calendar(),
		Trigger:  a.sc.Trigger(),
		Health:   health,
		Metrics:  a.sc.Metrics(),
		Logger:   logger,
	})
	if err != nil {
		return err
	}
	defer handler.Close()

	router, err := handler.Router()
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var metricsServer *server.MetricsServer
	if cfg.Metrics.Enabled && a.provider.Enabled() {
		metricsServer, err = server.NewMetricsServer(server.MetricsServerConfig{
			Addr:                    cfg.Metrics.Addr,
			Enabled:                 true,
			InstrumentationProvider: a.provider,
			Logger:                  logger,
		})
		if err != nil {
			logger.Warn("metrics server disabled", logging.Err(err))
			metricsServer = nil
		}
	}

	serverErr := make(chan error, 2)
	go func() {
		logger.Info("starting http api", slog.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- fmt.Errorf("http api: %w", err)
		}
	}()
	if metricsServer != nil {
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case runErr = <-serverErr:
		logger.Error("server stopped", logging.Err(runErr))
	}

	health.SetReady(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutting down http api: %w", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("shutting down metrics server: %w", err))
		}
	}

	logger.Info("http api stopped")
	return runErr
}

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

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/miraassistant/mira/internal/config"
	"github.com/miraassistant/mira/internal/logging"
	"github.com/miraassistant/mira/internal/resources"
	"github.com/miraassistant/mira/internal/server"
	"github.com/miraassistant/mira/internal/tools/calendar_tools"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

func newMCPCmd(load configLoader) *cobra.Command {
	var (
		transport string
		httpAddr  string
		readOnly  bool
		stateless bool
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the calendar tools over MCP",
		Long: `Serve the calendar operations as MCP (Model Context Protocol) tools.

Every tool takes the phoneNumber of a linked account. With --read-only only
calendar_read_events, calendar_read_event and calendar_current_event are
registered. The resource template mira://accounts/{phoneNumber} reports
the link state of a phone number.

Transports:
  stdio            JSON-RPC over stdin/stdout (logs go to stderr)
  streamable-http  HTTP on --http-addr, endpoint /mcp, health on /healthz and /readyz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if transport != transportStdio && transport != transportStreamableHTTP {
				return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", transport)
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			if err := validateMCP(cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := bootstrap(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.close(context.Background())

			mcpSrv, err := newMCPServer(a.sc, readOnly)
			if err != nil {
				return err
			}

			if transport == transportStdio {
				return runStdioServer(mcpSrv)
			}
			return runStreamableHTTPServer(ctx, mcpSrv, a, httpAddr, stateless)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", transportStdio, "Transport type: stdio or streamable-http")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":8081", "Listen address for the streamable-http transport")
	cmd.Flags().BoolVar(&readOnly, "read-only", false, "Only register tools that do not modify calendars")
	cmd.Flags().BoolVar(&stateless, "stateless", false, "Disable MCP session tracking (streamable-http only)")

	return cmd
}

// validateMCP checks what the tools need. The frontend redirect belongs to
// the HTTP API and is not required here.
func validateMCP(cfg *config.Config) error {
	if err := cfg.GoogleOAuth().Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateStore(); err != nil {
		return err
	}
	return cfg.ValidateLogging()
}

func newMCPServer(sc *server.ServerContext, readOnly bool) (*mcpserver.MCPServer, error) {
	mcpSrv := mcpserver.NewMCPServer("mira", version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(false, false),
	)

	if readOnly {
		sc.Logger().Info("starting MCP server in read-only mode")
	}
	if err := calendar_tools.RegisterCalendarTools(mcpSrv, sc, readOnly); err != nil {
		return nil, fmt.Errorf("failed to register calendar tools: %w", err)
	}
	if err := resources.RegisterAccountResources(mcpSrv, sc); err != nil {
		return nil, fmt.Errorf("failed to register account resources: %w", err)
	}
	return mcpSrv, nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, a *app, addr string, stateless bool) error {
	health := server.NewHealthChecker(a.sc)
	srv := server.NewMCPHTTPServer(mcpSrv, server.MCPHTTPConfig{
		Addr:      addr,
		Health:    health,
		Metrics:   a.sc.Metrics(),
		Stateless: stateless,
	})

	serverDone := make(chan error, 1)
	go func() {
		defer close(serverDone)
		a.logger.Info("starting MCP server",
			slog.String("transport", transportStreamableHTTP),
			slog.String("addr", addr),
			slog.String("endpoint", server.MCPEndpoint))
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverDone <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received, stopping MCP server")
		health.SetReady(false)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("error shutting down HTTP server: %w", err)
		}
	case err := <-serverDone:
		if err != nil {
			a.logger.Error("MCP server stopped", logging.Err(err))
			return fmt.Errorf("HTTP server stopped with error: %w", err)
		}
	}
	return nil
}

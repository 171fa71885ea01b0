package server

import (
	"context"
	"net/http"
	"time"

	"github.com/felixge/httpsnoop"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/miraassistant/mira/internal/instrumentation"
)

// MCPEndpoint is where the streamable HTTP transport is mounted.
const MCPEndpoint = "/mcp"

// MCPHTTPConfig configures an MCPHTTPServer.
type MCPHTTPConfig struct {
	Addr string

	// Health serves /healthz, /readyz and /health when set.
	Health *HealthChecker

	// Metrics may be nil.
	Metrics *instrumentation.Metrics

	// Stateless disables MCP session tracking. Every request is then
	// handled on its own, which suits replicas behind a load balancer.
	Stateless bool
}

// MCPHTTPServer serves the MCP tools over the streamable HTTP transport.
// Requests to the endpoint are traced and counted in http_requests_total.
type MCPHTTPServer struct {
	mcpServer  *mcpserver.MCPServer
	config     MCPHTTPConfig
	httpServer *http.Server
}

func NewMCPHTTPServer(mcpServer *mcpserver.MCPServer, config MCPHTTPConfig) *MCPHTTPServer {
	return &MCPHTTPServer{
		mcpServer: mcpServer,
		config:    config,
	}
}

// Handler returns the mux served by Start.
func (s *MCPHTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	streamable := mcpserver.NewStreamableHTTPServer(s.mcpServer,
		mcpserver.WithEndpointPath(MCPEndpoint),
		mcpserver.WithStateLess(s.config.Stateless),
	)
	mux.Handle(MCPEndpoint, otelhttp.NewHandler(s.instrument(streamable), "mcp"))

	if s.config.Health != nil {
		s.config.Health.RegisterHealthEndpoints(mux)
	}
	return mux
}

func (s *MCPHTTPServer) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		s.config.Metrics.RecordHTTPRequest(r.Context(), r.Method, MCPEndpoint, m.Code, m.Duration)
	})
}

// Start serves until Shutdown is called. It returns http.ErrServerClosed
// after a graceful shutdown.
func (s *MCPHTTPServer) Start() error {
	s.httpServer = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *MCPHTTPServer) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

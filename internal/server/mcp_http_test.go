package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const initializeRequest = `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{` +
	`"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`

func TestMCPHTTPServer_Handler(t *testing.T) {
	provider := createTestProvider(t)

	mcpSrv := mcpserver.NewMCPServer("mira-test", "test", mcpserver.WithToolCapabilities(true))
	mcpSrv.AddTool(mcp.NewTool("ping"), func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("pong"), nil
	})

	srv := NewMCPHTTPServer(mcpSrv, MCPHTTPConfig{
		Health:    NewHealthChecker(nil),
		Metrics:   provider.Metrics(),
		Stateless: true,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	req, err := http.NewRequest(http.MethodPost, ts.URL+MCPEndpoint, strings.NewReader(initializeRequest))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	body := readBody(t, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `"serverInfo"`)
	assert.Contains(t, body, `"mira-test"`)

	health, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)

	rec := httptest.NewRecorder()
	provider.PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	metrics := rec.Body.String()
	assert.Contains(t, metrics, "http_requests_total")
	assert.Contains(t, metrics, `"/mcp"`)
}

func TestMCPHTTPServer_ShutdownBeforeStart(t *testing.T) {
	srv := NewMCPHTTPServer(mcpserver.NewMCPServer("mira-test", "test"), MCPHTTPConfig{})
	assert.NoError(t, srv.Shutdown(context.Background()))
}

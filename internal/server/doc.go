// Package server holds the process-level plumbing shared by the HTTP API and
// the MCP server.
//
// ServerContext carries the wired components (identity store, token manager,
// linking service, calendar gateway, trigger evaluator, metrics and audit
// logger) and their shutdown. HealthChecker serves /healthz, /readyz and
// /health; readiness pings the identity store and any registered
// dependency such as Redis. MetricsServer exposes the Prometheus registry
// of the instrumentation provider on a dedicated port.
package server

// Package instrumentation wires OpenTelemetry metrics and tracing for mira.
//
// # Metrics
//
//   - http_requests_total, http_request_duration_seconds: API traffic by method, route, status
//   - google_api_operations_total, google_api_operation_duration_seconds: token endpoint and Calendar API calls
//   - oauth_auth_total: authorization code exchanges by result
//   - oauth_token_refresh_total: access token refreshes by result
//   - identity_link_total: phone linking outcomes
//   - trigger_evaluations_total: 10-minute trigger checks by result
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds: MCP tool calls
//
// Metrics are exported through Prometheus (served by server.MetricsServer),
// OTLP or stdout.
//
// # Tracing
//
// Spans are named tool.<name> for MCP tools and google.<service>.<operation>
// for outbound Google calls. Tracing is off unless TRACING_EXPORTER is set.
//
// # Configuration
//
// DefaultConfig reads INSTRUMENTATION_ENABLED, METRICS_EXPORTER,
// TRACING_EXPORTER, OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_TRACES_SAMPLER_ARG,
// OTEL_SERVICE_NAME, METRICS_DETAILED_LABELS and the AUDIT_LOGGING_* flags.
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordIdentityLink(ctx, instrumentation.LinkResultLinked)
package instrumentation

package common

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/codes"

	"github.com/miraassistant/mira/internal/instrumentation"
	"github.com/miraassistant/mira/internal/logging"
	"github.com/miraassistant/mira/internal/server"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a server span, metrics
// and audit logging.
// A call counts as failed when the handler returns an error or an error
// result. The phone number is only recorded as a hash.
//
// Usage:
//
//	s.AddTool(tool, common.InstrumentedToolHandler("calendar_read_events", "list", sc, handler))
func InstrumentedToolHandler(toolName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		metrics := sc.Metrics()
		audit := sc.Audit()

		if metrics == nil && audit == nil {
			return handler(ctx, request)
		}

		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		invocation := instrumentation.NewToolInvocation(toolName).
			WithOperation(operation).
			WithSpanContext(ctx)

		phone := PhoneFromArgs(request.GetArguments())
		if phone != "" {
			invocation.WithPhone(phone)
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			invocation.CompleteWithError(err)
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			invocation.Complete(false, nil)
			span.SetStatus(codes.Error, "tool returned an error result")
		default:
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}

		user := ""
		if phone != "" {
			user = logging.AnonymizePhone(phone)
		}
		metrics.RecordToolInvocation(ctx, toolName, status, user, duration)
		audit.LogToolInvocation(invocation)

		return result, err
	}
}

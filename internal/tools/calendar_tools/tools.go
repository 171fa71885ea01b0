package calendar_tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/miraassistant/mira/internal/calendar"
	"github.com/miraassistant/mira/internal/server"
	"github.com/miraassistant/mira/internal/tools/common"
	"github.com/miraassistant/mira/internal/trigger"
)

// Calendar is the subset of *calendar.Gateway the tools call.
type Calendar interface {
	CreateEvent(ctx context.Context, phone, title, date, time24 string) (*calendar.CreatedEvent, error)
	RescheduleEventByName(ctx context.Context, phone, name, newDate, newTime string) (*calendar.RescheduledEvent, error)
	CancelEventByName(ctx context.Context, phone, name, date, clock string) (*calendar.CancelledEvent, error)
	ReadEventByName(ctx context.Context, phone, name, date, clock string) (*calendar.Event, error)
	ReadEvents(ctx context.Context, phone string) ([]calendar.Event, error)
}

// Trigger is implemented by *trigger.Evaluator.
type Trigger interface {
	CurrentEvent(ctx context.Context, phone string) (*trigger.Result, error)
}

type handlers struct {
	calendar Calendar
	trigger  Trigger
}

// RegisterCalendarTools registers the calendar tools backed by the server
// context's gateway and evaluator.
func RegisterCalendarTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if sc.Calendar() == nil || sc.Trigger() == nil {
		return fmt.Errorf("calendar gateway and trigger evaluator are required")
	}
	return register(s, sc, &handlers{calendar: sc.Calendar(), trigger: sc.Trigger()}, readOnly)
}

func register(s *mcpserver.MCPServer, sc *server.ServerContext, h *handlers, readOnly bool) error {
	for _, t := range h.readTools() {
		s.AddTool(t.tool, common.InstrumentedToolHandler(t.tool.Name, t.operation, sc, t.handle))
	}
	if readOnly {
		return nil
	}
	for _, t := range h.writeTools() {
		s.AddTool(t.tool, common.InstrumentedToolHandler(t.tool.Name, t.operation, sc, t.handle))
	}
	return nil
}

type toolDef struct {
	tool      mcp.Tool
	operation string
	handle    common.ToolHandler
}

func phoneParam() mcp.ToolOption {
	return mcp.WithString(common.PhoneArg,
		mcp.Required(),
		mcp.Description("Phone number linked to the user's Google account, e.g. '+919876543210'"),
	)
}

// jsonResult renders v as indented JSON text.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

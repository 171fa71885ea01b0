package calendar_tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/miraassistant/mira/internal/tools/common"
)

func (h *handlers) readTools() []toolDef {
	return []toolDef{
		{
			tool: mcp.NewTool("calendar_read_events",
				mcp.WithDescription("List every event on the user's primary calendar"),
				phoneParam(),
			),
			operation: "list",
			handle:    h.readEvents,
		},
		{
			tool: mcp.NewTool("calendar_read_event",
				mcp.WithDescription("Find one event by title (case-insensitive), date and start time"),
				phoneParam(),
				mcp.WithString("eventName", mcp.Required(), mcp.Description("Event title")),
				mcp.WithString("date", mcp.Required(), mcp.Description("Start date, YYYY-MM-DD")),
				mcp.WithString("time", mcp.Required(), mcp.Description("Start time, HH:MM (24h)")),
			),
			operation: "get",
			handle:    h.readEvent,
		},
		{
			tool: mcp.NewTool("calendar_current_event",
				mcp.WithDescription("Return the event starting in about ten minutes, if any. "+
					"An event triggers during the minute that begins ten minutes before its start."),
				phoneParam(),
			),
			operation: "trigger",
			handle:    h.currentEvent,
		},
	}
}

func (h *handlers) writeTools() []toolDef {
	return []toolDef{
		{
			tool: mcp.NewTool("calendar_create_event",
				mcp.WithDescription("Create a one-hour event in Asia/Kolkata time"),
				phoneParam(),
				mcp.WithString("title", mcp.Description("Event title (default 'New Event')")),
				mcp.WithString("date", mcp.Required(), mcp.Description("Start date, YYYY-MM-DD")),
				mcp.WithString("time", mcp.Required(), mcp.Description("Start time, HH:MM (24h)")),
			),
			operation: "insert",
			handle:    h.createEvent,
		},
		{
			tool: mcp.NewTool("calendar_reschedule_event",
				mcp.WithDescription("Move the first event with the given title to a new date and time"),
				phoneParam(),
				mcp.WithString("eventName", mcp.Required(), mcp.Description("Event title")),
				mcp.WithString("newDate", mcp.Required(), mcp.Description("New start date, YYYY-MM-DD")),
				mcp.WithString("newTime", mcp.Required(), mcp.Description("New start time, HH:MM (24h)")),
			),
			operation: "patch",
			handle:    h.rescheduleEvent,
		},
		{
			tool: mcp.NewTool("calendar_cancel_event",
				mcp.WithDescription("Delete the event matching title, date and start time"),
				phoneParam(),
				mcp.WithString("eventName", mcp.Required(), mcp.Description("Event title")),
				mcp.WithString("date", mcp.Required(), mcp.Description("Start date, YYYY-MM-DD")),
				mcp.WithString("time", mcp.Required(), mcp.Description("Start time, HH:MM (24h)")),
			),
			operation: "delete",
			handle:    h.cancelEvent,
		},
	}
}

func (h *handlers) readEvents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := common.RequiredStrings(request.GetArguments(), common.PhoneArg)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	events, err := h.calendar.ReadEvents(ctx, args[0])
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return jsonResult(events)
}

func (h *handlers) readEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := common.RequiredStrings(request.GetArguments(), common.PhoneArg, "eventName", "date", "time")
	if err != nil {
		return common.ErrorResult(err), nil
	}

	event, err := h.calendar.ReadEventByName(ctx, args[0], args[1], args[2], args[3])
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return jsonResult(event)
}

func (h *handlers) currentEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := common.RequiredStrings(request.GetArguments(), common.PhoneArg)
	if err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := h.trigger.CurrentEvent(ctx, args[0])
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return jsonResult(res)
}

func (h *handlers) createEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	req, err := common.RequiredStrings(args, common.PhoneArg, "date", "time")
	if err != nil {
		return common.ErrorResult(err), nil
	}
	title, _ := args["title"].(string)

	created, err := h.calendar.CreateEvent(ctx, req[0], title, req[1], req[2])
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return jsonResult(created)
}

func (h *handlers) rescheduleEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := common.RequiredStrings(request.GetArguments(), common.PhoneArg, "eventName", "newDate", "newTime")
	if err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := h.calendar.RescheduleEventByName(ctx, args[0], args[1], args[2], args[3])
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return jsonResult(res)
}

func (h *handlers) cancelEvent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := common.RequiredStrings(request.GetArguments(), common.PhoneArg, "eventName", "date", "time")
	if err != nil {
		return common.ErrorResult(err), nil
	}

	res, err := h.calendar.CancelEventByName(ctx, args[0], args[1], args[2], args[3])
	if err != nil {
		return common.ErrorResult(err), nil
	}
	return jsonResult(res)
}

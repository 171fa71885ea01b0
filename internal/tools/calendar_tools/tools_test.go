package calendar_tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"testing"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miraassistant/mira/internal/apperr"
	"github.com/miraassistant/mira/internal/calendar"
	"github.com/miraassistant/mira/internal/identity"
	"github.com/miraassistant/mira/internal/linking"
	"github.com/miraassistant/mira/internal/server"
	"github.com/miraassistant/mira/internal/trigger"
)

type fakeCalendar struct {
	err   error
	calls []string
}

func (f *fakeCalendar) record(format string, args ...any) {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

func (f *fakeCalendar) CreateEvent(_ context.Context, phone, title, date, time24 string) (*calendar.CreatedEvent, error) {
	f.record("create %s %q %s %s", phone, title, date, time24)
	if f.err != nil {
		return nil, f.err
	}
	return &calendar.CreatedEvent{ID: "ev1", HTMLLink: "https://calendar.example.com/ev1"}, nil
}

func (f *fakeCalendar) RescheduleEventByName(_ context.Context, phone, name, date, clock string) (*calendar.RescheduledEvent, error) {
	f.record("reschedule %s %s %s %s", phone, name, date, clock)
	if f.err != nil {
		return nil, f.err
	}
	return &calendar.RescheduledEvent{ID: "ev1", Status: "updated"}, nil
}

func (f *fakeCalendar) CancelEventByName(_ context.Context, phone, name, date, clock string) (*calendar.CancelledEvent, error) {
	f.record("cancel %s %s %s %s", phone, name, date, clock)
	if f.err != nil {
		return nil, f.err
	}
	return &calendar.CancelledEvent{EventID: "ev1", EventName: name, Date: date, Time: clock}, nil
}

func (f *fakeCalendar) ReadEventByName(_ context.Context, phone, name, date, clock string) (*calendar.Event, error) {
	f.record("read %s %s %s %s", phone, name, date, clock)
	if f.err != nil {
		return nil, f.err
	}
	return &calendar.Event{ID: "ev1", Title: name, Start: date + "T" + clock + ":00+05:30"}, nil
}

func (f *fakeCalendar) ReadEvents(_ context.Context, phone string) ([]calendar.Event, error) {
	f.record("list %s", phone)
	if f.err != nil {
		return nil, f.err
	}
	return []calendar.Event{{ID: "ev1", Title: "Standup", Start: "2024-06-01T10:00:00+05:30"}}, nil
}

type fakeTrigger struct{}

func (fakeTrigger) CurrentEvent(context.Context, string) (*trigger.Result, error) {
	return &trigger.Result{Message: trigger.NoTriggerMessage}, nil
}

func newTestServer(t *testing.T, cal *fakeCalendar, readOnly bool) *mcpserver.MCPServer {
	t.Helper()
	store := identity.NewMemoryStore(nil)
	gw := calendar.NewGateway(store, nil, nil)
	sc, err := server.NewServerContext(context.Background(), server.Components{
		Store:    store,
		Linking:  linking.NewService(store, nil, nil),
		Calendar: gw,
		Trigger:  trigger.NewEvaluator(gw),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	s := mcpserver.NewMCPServer("mira-test", "test", mcpserver.WithToolCapabilities(true))
	require.NoError(t, register(s, sc, &handlers{calendar: cal, trigger: fakeTrigger{}}, readOnly))
	return s
}

// rpc sends one JSON-RPC request and decodes the result member into out.
func rpc(t *testing.T, s *mcpserver.MCPServer, method string, params any, out any) {
	t.Helper()
	req, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	resp := s.HandleMessage(context.Background(), req)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(raw, &envelope))
	require.Nil(t, envelope.Error, "rpc error: %s", raw)
	require.NoError(t, json.Unmarshal(envelope.Result, out))
}

type callResult struct {
	IsError bool `json:"isError"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

func callTool(t *testing.T, s *mcpserver.MCPServer, name string, args map[string]any) callResult {
	t.Helper()
	var res callResult
	rpc(t, s, "tools/call", map[string]any{"name": name, "arguments": args}, &res)
	require.Len(t, res.Content, 1)
	return res
}

func toolNames(t *testing.T, s *mcpserver.MCPServer) []string {
	t.Helper()
	var res struct {
		Tools []struct {
			Name        string `json:"name"`
			InputSchema struct {
				Required []string `json:"required"`
			} `json:"inputSchema"`
		} `json:"tools"`
	}
	rpc(t, s, "tools/list", map[string]any{}, &res)

	names := make([]string, 0, len(res.Tools))
	for _, tool := range res.Tools {
		assert.Contains(t, tool.InputSchema.Required, "phoneNumber", tool.Name)
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	return names
}

func TestRegister_ReadOnlyOmitsWriteTools(t *testing.T) {
	readOnly := newTestServer(t, &fakeCalendar{}, true)
	assert.Equal(t, []string{
		"calendar_current_event",
		"calendar_read_event",
		"calendar_read_events",
	}, toolNames(t, readOnly))

	full := newTestServer(t, &fakeCalendar{}, false)
	assert.Equal(t, []string{
		"calendar_cancel_event",
		"calendar_create_event",
		"calendar_current_event",
		"calendar_read_event",
		"calendar_read_events",
		"calendar_reschedule_event",
	}, toolNames(t, full))
}

func TestTools_Dispatch(t *testing.T) {
	tests := []struct {
		tool     string
		args     map[string]any
		wantCall string
		wantJSON string
	}{
		{
			tool:     "calendar_create_event",
			args:     map[string]any{"phoneNumber": "+911", "date": "2024-06-01", "time": "23:30"},
			wantCall: `create +911 "" 2024-06-01 23:30`,
			wantJSON: `{"id":"ev1","htmlLink":"https://calendar.example.com/ev1"}`,
		},
		{
			tool:     "calendar_reschedule_event",
			args:     map[string]any{"phoneNumber": "+911", "eventName": "Standup", "newDate": "2024-06-02", "newTime": "11:00"},
			wantCall: "reschedule +911 Standup 2024-06-02 11:00",
			wantJSON: `{"id":"ev1","status":"updated"}`,
		},
		{
			tool:     "calendar_cancel_event",
			args:     map[string]any{"phoneNumber": "+911", "eventName": "Standup", "date": "2024-06-01", "time": "10:00"},
			wantCall: "cancel +911 Standup 2024-06-01 10:00",
			wantJSON: `{"eventId":"ev1","eventName":"Standup","date":"2024-06-01","time":"10:00"}`,
		},
		{
			tool:     "calendar_read_event",
			args:     map[string]any{"phoneNumber": "+911", "eventName": "Standup", "date": "2024-06-01", "time": "10:00"},
			wantCall: "read +911 Standup 2024-06-01 10:00",
			wantJSON: `{"id":"ev1","title":"Standup","start":"2024-06-01T10:00:00+05:30","end":""}`,
		},
		{
			tool:     "calendar_read_events",
			args:     map[string]any{"phoneNumber": " +911 "},
			wantCall: "list +911",
			wantJSON: `[{"id":"ev1","title":"Standup","start":"2024-06-01T10:00:00+05:30","end":""}]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.tool, func(t *testing.T) {
			cal := &fakeCalendar{}
			s := newTestServer(t, cal, false)

			res := callTool(t, s, tt.tool, tt.args)
			assert.False(t, res.IsError, res.Content[0].Text)
			assert.Equal(t, []string{tt.wantCall}, cal.calls)
			assert.JSONEq(t, tt.wantJSON, res.Content[0].Text)
		})
	}
}

func TestTools_CurrentEvent(t *testing.T) {
	s := newTestServer(t, &fakeCalendar{}, true)
	res := callTool(t, s, "calendar_current_event", map[string]any{"phoneNumber": "+911"})
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"triggered":false,"message":"No upcoming event (10-minute trigger not reached)"}`, res.Content[0].Text)
}

func TestTools_Errors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		args     map[string]any
		wantText string
	}{
		{
			name:     "missing argument",
			args:     map[string]any{"phoneNumber": "+911", "eventName": "Standup", "date": "2024-06-01"},
			wantText: "bad_request: time is required: bad request",
		},
		{
			name:     "unknown phone",
			err:      apperr.ErrNoSuchAccount,
			args:     map[string]any{"phoneNumber": "+911", "eventName": "Standup", "date": "2024-06-01", "time": "10:00"},
			wantText: "no_such_account: no account for phone number",
		},
		{
			name:     "no match",
			err:      fmt.Errorf("%w: Standup", apperr.ErrEventNotFound),
			args:     map[string]any{"phoneNumber": "+911", "eventName": "Standup", "date": "2024-06-01", "time": "10:00"},
			wantText: "not_found: event not found: Standup",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cal := &fakeCalendar{err: tt.err}
			s := newTestServer(t, cal, false)

			res := callTool(t, s, "calendar_cancel_event", tt.args)
			assert.True(t, res.IsError)
			assert.Equal(t, tt.wantText, res.Content[0].Text)
		})
	}
}

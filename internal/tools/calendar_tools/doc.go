// Package calendar_tools exposes the calendar gateway and trigger evaluator
// as MCP tools.
//
// Every tool identifies the Google account by the phone number linked to
// it. Results are JSON text; failures come back as tool error results whose
// text starts with the stable error code (for example "no_such_account").
// Write tools are not registered in read-only mode.
package calendar_tools

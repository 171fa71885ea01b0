// Package cmd implements the mira command-line interface.
//
// Commands:
//   - serve: run the HTTP API (OAuth linking, calendar webhooks) and the metrics server
//   - mcp: expose the calendar operations as MCP tools over stdio or streamable HTTP
//   - migrate: create or upgrade the identity store schema
//   - auth-url: print the Google consent URL
//   - version: print the build version
package cmd

// Package apperr defines the error taxonomy of the mira service.
//
// Conflicts and not-found conditions are sentinel errors that callers match
// with errors.Is; provider failures are reported as *UpstreamError carrying
// the upstream status and (truncated) response body. Code and HTTPStatus map
// any error to the stable identifiers used by the HTTP API and MCP tools.
package apperr

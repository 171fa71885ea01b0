// Package resources provides MCP resources. Resources are read-only data
// that MCP clients fetch by URI, as opposed to tools, which act.
//
// The account resource reports the link state of a phone number so an
// assistant can tell "not linked" apart from "linked but re-authorization
// needed" before calling a calendar tool. Tokens are never exposed.
package resources

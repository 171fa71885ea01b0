// Package common holds the helpers shared by the MCP tool packages:
// argument extraction, error results and the instrumentation wrapper that
// records tool metrics and audit lines.
package common

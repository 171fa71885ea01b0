package logging

import (
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// Output formats accepted by NewHandler.
const (
	FormatText = "text"
	FormatJSON = "json"
)

var sensitivePatterns = []*regexp.Regexp{
	// OAuth query parameters in URLs
	regexp.MustCompile(`([?&](?:code|state|access_token|refresh_token|id_token|client_secret)=)[^&\s"]*`),
	// Bearer credentials
	regexp.MustCompile(`(?i)(bearer\s+)[A-Za-z0-9\-._~+/]+=*`),
	// Google OAuth tokens
	regexp.MustCompile(`(ya29\.)[A-Za-z0-9\-_]+`),
	// Refresh tokens start with 1//0 and never follow a host or path character.
	regexp.MustCompile(`((?:^|[^A-Za-z0-9.:/])1//)0[A-Za-z0-9\-_]+`),
}

// Redact masks credentials embedded in s.
func Redact(s string) string {
	for _, p := range sensitivePatterns {
		s = p.ReplaceAllString(s, "${1}[REDACTED]")
	}
	return s
}

// ParseLevel maps debug/info/warn/error to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// NewHandler builds a text or JSON handler that redacts credentials from
// every string attribute before it is written.
func NewHandler(w io.Writer, format string, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Value.Kind() == slog.KindString {
				a.Value = slog.StringValue(Redact(a.Value.String()))
			}
			return a
		},
	}

	switch strings.ToLower(format) {
	case "", FormatText:
		return slog.NewTextHandler(w, opts), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// New is NewHandler wrapped in a logger.
func New(w io.Writer, format, level string) (*slog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	h, err := NewHandler(w, format, lvl)
	if err != nil {
		return nil, err
	}
	return slog.New(h), nil
}

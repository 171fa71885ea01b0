package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestWithHelpers(t *testing.T) {
	logger := slog.Default()
	for name, l := range map[string]*slog.Logger{
		"operation": WithOperation(logger, "link_phone"),
		"service":   WithService(logger, "calendar"),
	} {
		if l == nil {
			t.Errorf("With %s returned nil", name)
		}
	}
}

func TestAttrs(t *testing.T) {
	tests := []struct {
		attr    slog.Attr
		wantKey string
		wantVal string
	}{
		{Operation("exchange"), KeyOperation, "exchange"},
		{Service("oauth"), KeyService, "oauth"},
		{Record("rec-1"), KeyRecord, "rec-1"},
		{Event("evt-9"), KeyEvent, "evt-9"},
	}

	for _, tt := range tests {
		t.Run(tt.wantKey, func(t *testing.T) {
			if tt.attr.Key != tt.wantKey {
				t.Errorf("key = %q, want %q", tt.attr.Key, tt.wantKey)
			}
			if tt.attr.Value.String() != tt.wantVal {
				t.Errorf("value = %q, want %q", tt.attr.Value.String(), tt.wantVal)
			}
		})
	}
}

func TestErr(t *testing.T) {
	attr := Err(errors.New("boom"))
	if attr.Key != KeyError || attr.Value.String() != "boom" {
		t.Errorf("Err() = %v", attr)
	}

	attr = Err(nil)
	if attr.Key != "" {
		t.Errorf("Err(nil) key = %q, want empty group", attr.Key)
	}
}

func TestAnonymizeEmail(t *testing.T) {
	got := AnonymizeEmail("jane@example.com")
	if len(got) != 21 || !strings.HasPrefix(got, "user:") {
		t.Errorf("AnonymizeEmail() = %q", got)
	}
	if AnonymizeEmail("") != "" {
		t.Error("empty email should hash to empty string")
	}
	if AnonymizeEmail("Jane@Example.com ") != got {
		t.Error("hash should ignore case and surrounding space")
	}
	if AnonymizeEmail("other@example.com") == got {
		t.Error("different emails should produce different hashes")
	}
}

func TestAnonymizePhone(t *testing.T) {
	got := AnonymizePhone("+919876543210")
	if len(got) != 22 || !strings.HasPrefix(got, "phone:") {
		t.Errorf("AnonymizePhone() = %q", got)
	}
	if strings.Contains(got, "9876543210") {
		t.Error("phone number leaked into hash")
	}
	if AnonymizePhone("") != "" {
		t.Error("empty phone should hash to empty string")
	}
}

func TestUserAndPhoneHash(t *testing.T) {
	if a := UserHash("jane@example.com"); a.Key != KeyUserHash {
		t.Errorf("UserHash key = %q", a.Key)
	}
	if a := PhoneHash("+1555"); a.Key != KeyPhoneHash {
		t.Errorf("PhoneHash key = %q", a.Key)
	}
}

func TestRedact(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		leak  string
		wants string
	}{
		{"code param", "GET /auth/callback?code=4/0Abc&state=xyz", "4/0Abc", "code=[REDACTED]"},
		{"state param", "/auth/callback?state=s3cr3t", "s3cr3t", "state=[REDACTED]"},
		{"bearer", "Authorization: Bearer abc.def.ghi", "abc.def.ghi", "Bearer [REDACTED]"},
		{"google access token", "token ya29.A0ARrdaM-secret", "A0ARrdaM-secret", "ya29.[REDACTED]"},
		{"google refresh token", "rt=1//0gLongRefresh", "0gLongRefresh", "1//[REDACTED]"},
		{"refresh token at start", "1//0gLongRefresh", "0gLongRefresh", "1//[REDACTED]"},
		{"url with double slash", "GET http://10.0.0.1//x", "", "http://10.0.0.1//x"},
		{"url path starting with zero", "http://10.0.0.1//0status", "", "http://10.0.0.1//0status"},
		{"plain", "nothing to see", "", "nothing to see"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Redact(tt.in)
			if tt.leak != "" && strings.Contains(got, tt.leak) {
				t.Errorf("Redact(%q) = %q still contains %q", tt.in, got, tt.leak)
			}
			if !strings.Contains(got, tt.wants) {
				t.Errorf("Redact(%q) = %q, want it to contain %q", tt.in, got, tt.wants)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"", slog.LevelInfo, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewHandler_RedactsAttributes(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, FormatJSON, "debug")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	logger.Info("callback", slog.String("url", "/auth/callback?code=supersecret&state=abc"))

	out := buf.String()
	if strings.Contains(out, "supersecret") {
		t.Errorf("log output leaked code: %s", out)
	}
	if !strings.Contains(out, `"msg":"callback"`) {
		t.Errorf("unexpected JSON output: %s", out)
	}
}

func TestNewHandler_Formats(t *testing.T) {
	if _, err := NewHandler(&bytes.Buffer{}, "text", slog.LevelInfo); err != nil {
		t.Errorf("text: %v", err)
	}
	if _, err := NewHandler(&bytes.Buffer{}, "xml", slog.LevelInfo); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := New(&bytes.Buffer{}, "json", "nope"); err == nil {
		t.Error("expected error for unknown level")
	}
}

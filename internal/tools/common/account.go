package common

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/miraassistant/mira/internal/apperr"
)

// PhoneArg is the argument every calendar tool uses to pick the linked
// Google account.
const PhoneArg = "phoneNumber"

// PhoneFromArgs returns the trimmed phone number from tool arguments, or ""
// when it is absent or not a string.
func PhoneFromArgs(args map[string]any) string {
	phone, _ := args[PhoneArg].(string)
	return strings.TrimSpace(phone)
}

// RequiredStrings returns the named string arguments, trimmed. It fails on
// the first one that is missing or blank.
func RequiredStrings(args map[string]any, names ...string) ([]string, error) {
	out := make([]string, len(names))
	for i, name := range names {
		v, _ := args[name].(string)
		v = strings.TrimSpace(v)
		if v == "" {
			return nil, fmt.Errorf("%s is required: %w", name, apperr.ErrBadRequest)
		}
		out[i] = v
	}
	return out, nil
}

// ErrorResult converts err into a tool error result prefixed with its
// stable code, e.g. "no_such_account: no account for phone number".
func ErrorResult(err error) *mcp.CallToolResult {
	code := apperr.Code(err)
	msg := err.Error()

	var upstream *apperr.UpstreamError
	if errors.As(err, &upstream) {
		msg = fmt.Sprintf("%s returned status %d", upstream.Service, upstream.Status)
	}
	if code == "reauth_required" {
		msg = "Google authorization has expired; the user has to sign in again"
	}
	return mcp.NewToolResultError(code + ": " + msg)
}

package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by the token, linking and calendar layers.
// Callers match them with errors.Is.
var (
	// ErrNoRefreshToken means the access token is stale and there is no refresh
	// token to renew it. The user has to run the OAuth flow again.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrTokensMissing means the referenced record does not exist or never
	// received OAuth tokens.
	ErrTokensMissing = errors.New("oauth tokens not found")

	// ErrEmailInUse means another identity already holds the email.
	ErrEmailInUse = errors.New("email already linked to another phone")

	// ErrPhoneInUse means another identity already holds the phone number.
	ErrPhoneInUse = errors.New("phone number already linked to another account")

	// ErrConcurrentLinkConflict means a concurrent writer claimed the email or
	// phone between the pre-check and the write.
	ErrConcurrentLinkConflict = errors.New("concurrent link conflict")

	// ErrNoSuchAccount means no identity is linked to the phone number.
	ErrNoSuchAccount = errors.New("no account for phone number")

	// ErrEventNotFound means no event matched the title/date/time policy.
	ErrEventNotFound = errors.New("event not found")

	ErrBadRequest   = errors.New("bad request")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid oauth state")
)

// maxBodyLen bounds the upstream body kept for diagnostics.
const maxBodyLen = 512

// UpstreamError is a non-2xx answer from the OAuth or calendar provider.
// Body holds the provider's response body, never the request credentials.
type UpstreamError struct {
	Service string // "oauth" or "calendar"
	Status  int
	Body    string
	Err     error
}

// NewUpstreamError builds an UpstreamError, truncating long bodies.
func NewUpstreamError(service string, status int, body string, err error) *UpstreamError {
	if len(body) > maxBodyLen {
		body = body[:maxBodyLen] + "..."
	}
	return &UpstreamError{
		Service: service,
		Status:  status,
		Body:    body,
		Err:     err,
	}
}

// Error implements the error interface
func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s upstream error: status %d", e.Service, e.Status)
	}
	return fmt.Sprintf("%s upstream error: status %d: %s", e.Service, e.Status, e.Body)
}

// Unwrap returns the underlying client error, if any.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// Code returns the stable machine-readable code for err, as used in API
// responses. Unknown errors map to "internal_error".
func Code(err error) string {
	var upstream *UpstreamError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoRefreshToken), errors.Is(err, ErrTokensMissing):
		return "reauth_required"
	case errors.Is(err, ErrEmailInUse):
		return "email_in_use"
	case errors.Is(err, ErrPhoneInUse):
		return "phone_in_use"
	case errors.Is(err, ErrConcurrentLinkConflict):
		return "duplicate_key"
	case errors.Is(err, ErrNoSuchAccount):
		return "no_such_account"
	case errors.Is(err, ErrEventNotFound), errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrBadRequest):
		return "bad_request"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.As(err, &upstream):
		return "upstream_error"
	default:
		return "internal_error"
	}
}

// HTTPStatus returns the HTTP status code that represents err.
func HTTPStatus(err error) int {
	switch Code(err) {
	case "":
		return http.StatusOK
	case "reauth_required":
		return http.StatusUnauthorized
	case "email_in_use", "phone_in_use", "duplicate_key":
		return http.StatusConflict
	case "no_such_account", "not_found":
		return http.StatusNotFound
	case "bad_request", "invalid_state":
		return http.StatusBadRequest
	case "upstream_error":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// IsTerminal reports whether err can only be resolved by re-running the OAuth
// flow.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNoRefreshToken) || errors.Is(err, ErrTokensMissing)
}

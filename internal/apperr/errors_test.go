package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeAndHTTPStatus(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantCode   string
		wantStatus int
	}{
		{"nil", nil, "", http.StatusOK},
		{"no refresh token", ErrNoRefreshToken, "reauth_required", http.StatusUnauthorized},
		{"tokens missing wrapped", fmt.Errorf("link: %w", ErrTokensMissing), "reauth_required", http.StatusUnauthorized},
		{"email in use", ErrEmailInUse, "email_in_use", http.StatusConflict},
		{"phone in use", ErrPhoneInUse, "phone_in_use", http.StatusConflict},
		{"concurrent conflict", ErrConcurrentLinkConflict, "duplicate_key", http.StatusConflict},
		{"no such account", ErrNoSuchAccount, "no_such_account", http.StatusNotFound},
		{"event not found", fmt.Errorf("cancel: %w", ErrEventNotFound), "not_found", http.StatusNotFound},
		{"bad request", ErrBadRequest, "bad_request", http.StatusBadRequest},
		{"invalid state", ErrInvalidState, "invalid_state", http.StatusBadRequest},
		{"upstream", fmt.Errorf("refresh: %w", NewUpstreamError("oauth", 400, "invalid_grant", nil)), "upstream_error", http.StatusBadGateway},
		{"unknown", errors.New("boom"), "internal_error", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantCode, Code(tt.err))
			assert.Equal(t, tt.wantStatus, HTTPStatus(tt.err))
		})
	}
}

func TestUpstreamError(t *testing.T) {
	cause := errors.New("transport")
	err := NewUpstreamError("calendar", 503, strings.Repeat("x", 2000), cause)

	assert.Equal(t, 503, err.Status)
	assert.True(t, len(err.Body) < 600, "body should be truncated")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "calendar upstream error: status 503")

	short := NewUpstreamError("oauth", 401, "", nil)
	assert.Equal(t, "oauth upstream error: status 401", short.Error())
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(ErrNoRefreshToken))
	assert.True(t, IsTerminal(fmt.Errorf("x: %w", ErrTokensMissing)))
	assert.False(t, IsTerminal(ErrEventNotFound))
}

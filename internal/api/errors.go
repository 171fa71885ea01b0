package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/miraassistant/mira/internal/apperr"
	"github.com/miraassistant/mira/internal/logging"
)

type errorResponse struct {
	Error          string `json:"error"`
	Message        string `json:"message"`
	UpstreamStatus int    `json:"upstreamStatus,omitempty"`
}

// Fixed messages per error code. Codes not listed use the error text, which
// for those codes never carries credentials.
var messages = map[string]string{
	"reauth_required": "Google authorization has expired. Please re-authenticate.",
	"email_in_use":    "This Google account is already used by another phone.",
	"phone_in_use":    "This phone number is already used by another account.",
	"duplicate_key":   "Conflict while linking account. Another record was created concurrently with the same email or phone.",
	"no_such_account": "No account is linked to this phone number.",
	"invalid_state":   "The sign-in request is invalid or has expired. Please start again.",
	"upstream_error":  "Google rejected the request.",
	"internal_error":  "Internal server error.",
}

func (h *Handler) fail(c *gin.Context, err error) {
	code := apperr.Code(err)
	status := apperr.HTTPStatus(err)

	resp := errorResponse{Error: code, Message: messages[code]}
	if resp.Message == "" {
		resp.Message = err.Error()
	}

	var upstream *apperr.UpstreamError
	if errors.As(err, &upstream) {
		resp.UpstreamStatus = upstream.Status
	}

	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(c.Request.Context(), level, "request failed",
		slog.String("route", c.FullPath()),
		slog.String("code", code),
		logging.Err(err))

	c.AbortWithStatusJSON(status, resp)
}

func (h *Handler) badRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "bad_request", Message: message})
}

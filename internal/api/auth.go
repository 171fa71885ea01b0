package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/miraassistant/mira/internal/apperr"
	"github.com/miraassistant/mira/internal/logging"
)

type connectPhoneRequest struct {
	AuthID      string `json:"authId" binding:"required"`
	Email       string `json:"email" binding:"required"`
	PhoneNumber string `json:"phoneNumber" binding:"required"`
}

func (h *Handler) authGoogle(c *gin.Context) {
	authURL, err := h.linker.BeginAuth(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": authURL})
}

func (h *Handler) oauthCallback(c *gin.Context) {
	if errParam := c.Query("error"); errParam != "" {
		h.logger.Warn("oauth callback returned error", slog.String("error_param", errParam))
		h.badRequest(c, "Google sign-in failed: "+errParam)
		return
	}

	code := c.Query("code")
	if code == "" {
		h.badRequest(c, "code is required")
		return
	}

	rec, err := h.linker.CompleteAuth(c.Request.Context(), code, c.Query("state"))
	if err != nil {
		h.fail(c, err)
		return
	}

	c.Redirect(http.StatusFound, redirectWithAuthID(h.cfg.FrontendRedirect, rec.ID))
}

// redirectWithAuthID appends authId to target, keeping any existing query.
func redirectWithAuthID(target, id string) string {
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + "authId=" + url.QueryEscape(id)
}

func (h *Handler) tempRecord(c *gin.Context) {
	email, err := h.linker.PendingEmail(c.Request.Context(), c.Param("id"))
	if err != nil {
		if apperr.Code(err) == "not_found" {
			c.AbortWithStatusJSON(http.StatusNotFound, errorResponse{
				Error:   "not_found",
				Message: "Temp auth record not found",
			})
			return
		}
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"email": email})
}

func (h *Handler) connectPhone(c *gin.Context) {
	var req connectPhoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "authId, email & phone are required")
		return
	}

	rec, err := h.linker.LinkPhone(c.Request.Context(), req.AuthID, req.Email, req.PhoneNumber)
	if err != nil {
		if apperr.IsTerminal(err) {
			c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{
				Error:   "no_tokens",
				Message: "OAuth tokens not found. Please re-authenticate.",
			})
			return
		}
		h.fail(c, err)
		return
	}

	h.logger.Info("phone connected", logging.Record(rec.ID), logging.PhoneHash(rec.PhoneNumber))
	c.JSON(http.StatusOK, gin.H{
		"status": "linked",
		"email":  rec.Email,
		"phone":  rec.PhoneNumber,
	})
}

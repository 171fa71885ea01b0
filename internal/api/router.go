// Package api serves the HTTP surface: the Google OAuth redirect and
// callback, phone linking, and the calendar webhooks called by the
// assistant backend.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/miraassistant/mira/internal/calendar"
	"github.com/miraassistant/mira/internal/identity"
	"github.com/miraassistant/mira/internal/instrumentation"
	"github.com/miraassistant/mira/internal/server"
	"github.com/miraassistant/mira/internal/trigger"
)

// Linker is the account linking protocol. *linking.Service implements it.
type Linker interface {
	BeginAuth(ctx context.Context) (string, error)
	CompleteAuth(ctx context.Context, code, state string) (*identity.Record, error)
	LinkPhone(ctx context.Context, id, email, phone string) (*identity.Record, error)
	PendingEmail(ctx context.Context, id string) (string, error)
}

// Calendar is the event gateway. *calendar.Gateway implements it.
type Calendar interface {
	CreateEvent(ctx context.Context, phone, title, date, time24 string) (*calendar.CreatedEvent, error)
	RescheduleEventByName(ctx context.Context, phone, name, newDate, newTime string) (*calendar.RescheduledEvent, error)
	CancelEventByName(ctx context.Context, phone, name, date, clock string) (*calendar.CancelledEvent, error)
	ReadEventByName(ctx context.Context, phone, name, date, clock string) (*calendar.Event, error)
	ReadEvents(ctx context.Context, phone string) ([]calendar.Event, error)
}

// Trigger reports the event entering its reminder window.
// *trigger.Evaluator implements it.
type Trigger interface {
	CurrentEvent(ctx context.Context, phone string) (*trigger.Result, error)
}

// Config holds the HTTP API settings.
type Config struct {
	// FrontendRedirect receives the browser after the OAuth callback, with
	// ?authId=<record id> appended.
	FrontendRedirect string

	// RateLimit is requests per second per client IP on webhook and
	// calendar routes. Zero disables limiting.
	RateLimit float64
	RateBurst int

	// TrustedProxies may set X-Forwarded-For. Empty trusts none.
	TrustedProxies []string
}

// Handler holds the route handlers.
type Handler struct {
	cfg      Config
	linker   Linker
	calendar Calendar
	trigger  Trigger
	health   *server.HealthChecker
	limiter  *RateLimiter
	metrics  *instrumentation.Metrics
	logger   *slog.Logger
}

// Deps are the services the Handler dispatches to.
type Deps struct {
	Linker   Linker
	Calendar Calendar
	Trigger  Trigger
	Health   *server.HealthChecker
	Metrics  *instrumentation.Metrics
	Logger   *slog.Logger
}

// NewHandler creates a Handler. Call Close to stop the rate limiter.
func NewHandler(cfg Config, deps Deps) (*Handler, error) {
	if cfg.FrontendRedirect == "" {
		return nil, fmt.Errorf("frontend redirect url is required")
	}
	if deps.Linker == nil || deps.Calendar == nil || deps.Trigger == nil {
		return nil, fmt.Errorf("linker, calendar and trigger are required")
	}

	h := &Handler{
		cfg:      cfg,
		linker:   deps.Linker,
		calendar: deps.Calendar,
		trigger:  deps.Trigger,
		health:   deps.Health,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	h.logger = h.logger.With(slog.String("component", "api"))
	if h.health == nil {
		h.health = server.NewHealthChecker(nil)
	}
	if cfg.RateLimit > 0 {
		h.limiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst, 0, h.logger)
	}
	return h, nil
}

// Close releases the rate limiter.
func (h *Handler) Close() {
	if h.limiter != nil {
		h.limiter.Close()
	}
}

// Router builds the gin engine with every route registered.
func (h *Handler) Router() (*gin.Engine, error) {
	r := gin.New()
	if err := r.SetTrustedProxies(h.cfg.TrustedProxies); err != nil {
		return nil, fmt.Errorf("setting trusted proxies: %w", err)
	}
	r.Use(gin.Recovery(), h.observe())

	r.GET("/health", gin.WrapH(h.health.DetailedHealthHandler()))
	r.GET("/healthz", gin.WrapH(h.health.LivenessHandler()))
	r.GET("/readyz", gin.WrapH(h.health.ReadinessHandler()))

	api := r.Group("/api")
	api.GET("/auth/google", h.authGoogle)
	api.GET("/oauth2/callback", h.oauthCallback)
	api.GET("/temp/:id", h.tempRecord)
	api.POST("/connect-phone", h.connectPhone)

	limited := api.Group("")
	if h.limiter != nil {
		limited.Use(h.limiter.Middleware())
	}
	limited.POST("/webhook/create", h.webhookCreate)
	limited.POST("/webhook/reschedule", h.webhookReschedule)
	limited.POST("/webhook/cancel", h.webhookCancel)
	limited.GET("/calendar/read", h.calendarRead)
	limited.GET("/calendar/events", h.calendarEvents)
	limited.POST("/calendar/read-by-name", h.calendarReadByName)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorResponse{Error: "not_found", Message: "Route not found"})
	})

	return r, nil
}

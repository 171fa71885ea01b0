// Package tokens keeps Google OAuth tokens usable: it exchanges
// authorization codes and refreshes stale access tokens just before use.
package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"

	"github.com/miraassistant/mira/internal/apperr"
	"github.com/miraassistant/mira/internal/identity"
	"github.com/miraassistant/mira/internal/instrumentation"
	"github.com/miraassistant/mira/internal/logging"
)

const (
	// ExpiryMargin is subtracted from the provider's lifetime so a token is
	// treated as stale shortly before it actually expires.
	ExpiryMargin = 60 * time.Second

	// DefaultExpiresIn applies when the provider omits expires_in.
	DefaultExpiresIn = 3600
)

// Grant is the result of an authorization code exchange.
type Grant struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
	// Email comes from the unverified id_token payload; empty if absent.
	Email string
}

// Manager exchanges codes and refreshes tokens against the provider's token
// endpoint. It is safe for concurrent use; concurrent refreshes of the same
// record are not deduplicated.
type Manager struct {
	config     *oauth2.Config
	store      identity.Store
	now        func() time.Time
	logger     *slog.Logger
	metrics    *instrumentation.Metrics
	httpClient *http.Client
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithHTTPClient sets the client used for token endpoint requests.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// NewManager creates a Manager. config must carry the client credentials and
// the token endpoint.
func NewManager(config *oauth2.Config, store identity.Store, opts ...Option) *Manager {
	m := &Manager{
		config: config,
		store:  store,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(slog.String("component", "tokens"))
	return m
}

// IsStale reports whether rec's access token must be refreshed before use.
// A token expiring exactly at now is stale.
func IsStale(rec *identity.Record, now time.Time) bool {
	return rec.AccessToken == "" || rec.TokenExpiry.IsZero() || !now.Before(rec.TokenExpiry)
}

// EnsureValidToken returns rec unchanged when its access token is fresh.
// Otherwise it refreshes the token, persists the updated record and returns
// it. A stale record without a refresh token yields apperr.ErrNoRefreshToken.
func (m *Manager) EnsureValidToken(ctx context.Context, rec *identity.Record) (*identity.Record, error) {
	if rec == nil {
		return nil, apperr.ErrTokensMissing
	}

	now := m.now()
	if !IsStale(rec, now) {
		return rec, nil
	}
	if rec.RefreshToken == "" {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultReauth)
		return nil, apperr.ErrNoRefreshToken
	}

	tok, err := m.refresh(ctx, rec.RefreshToken)
	if err != nil {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		m.logger.Warn("token refresh failed", logging.Record(rec.ID), logging.Err(err))
		return nil, err
	}

	updated := rec.Clone()
	updated.AccessToken = tok.AccessToken
	updated.TokenExpiry = now.Add(time.Duration(expiresIn(tok))*time.Second - ExpiryMargin)
	if tok.RefreshToken != "" {
		updated.RefreshToken = tok.RefreshToken
	}

	if err := m.store.Save(ctx, updated); err != nil {
		m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		return nil, fmt.Errorf("persisting refreshed token: %w", err)
	}

	m.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	m.logger.Info("access token refreshed",
		logging.Record(updated.ID),
		slog.Time("expires_at", updated.TokenExpiry),
		slog.Bool("rotated", tok.RefreshToken != "" && tok.RefreshToken != rec.RefreshToken))

	return updated, nil
}

func (m *Manager) refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationRefresh)
	defer span.End()

	start := time.Now()
	// A token holding only the refresh token is invalid, which forces the
	// source to hit the token endpoint.
	tok, err := m.config.TokenSource(m.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	m.recordCall(ctx, instrumentation.OperationRefresh, err, time.Since(start))
	if err != nil {
		err = upstream(err)
		instrumentation.SetSpanError(span, err)
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	return tok, nil
}

// Exchange trades an authorization code for tokens. The email is read from
// the id_token without signature verification; a malformed id_token only
// leaves Email empty.
func (m *Manager) Exchange(ctx context.Context, code string) (*Grant, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("authorization code is required: %w", apperr.ErrBadRequest)
	}

	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceOAuth, instrumentation.OperationExchange)
	defer span.End()

	now := m.now()
	start := time.Now()
	tok, err := m.config.Exchange(m.clientContext(ctx), code)
	m.recordCall(ctx, instrumentation.OperationExchange, err, time.Since(start))
	if err != nil {
		err = upstream(err)
		instrumentation.SetSpanError(span, err)
		m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		return nil, err
	}

	grant := &Grant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Expiry:       now.Add(time.Duration(expiresIn(tok))*time.Second - ExpiryMargin),
	}

	if idToken, _ := tok.Extra("id_token").(string); idToken != "" {
		email, err := EmailFromIDToken(idToken)
		if err != nil {
			m.logger.Warn("could not decode id_token", logging.Err(err))
		}
		grant.Email = email
	}

	instrumentation.SetSpanSuccess(span)
	m.metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	m.logger.Info("authorization code exchanged",
		logging.UserHash(grant.Email),
		slog.Bool("has_refresh_token", grant.RefreshToken != ""))

	return grant, nil
}

// EmailFromIDToken returns the email claim of a JWT without verifying its
// signature. Unpadded and padded base64url segments are both accepted.
func EmailFromIDToken(idToken string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser(jwt.WithPaddingAllowed()).ParseUnverified(idToken, claims); err != nil {
		return "", fmt.Errorf("parsing id_token: %w", err)
	}
	email, _ := claims["email"].(string)
	return email, nil
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

func (m *Manager) recordCall(ctx context.Context, op string, err error, d time.Duration) {
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
	}
	m.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceOAuth, op, status, d)
}

// expiresIn reads the lifetime in seconds from the raw token response,
// falling back to DefaultExpiresIn.
func expiresIn(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		if v > 0 {
			return int64(v)
		}
	case int64:
		if v > 0 {
			return v
		}
	case json.Number:
		if n, err := v.Int64(); err == nil && n > 0 {
			return n
		}
	case string:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	if tok.ExpiresIn > 0 {
		return tok.ExpiresIn
	}
	return DefaultExpiresIn
}

// upstream converts a token endpoint failure into an apperr.UpstreamError.
func upstream(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		return apperr.NewUpstreamError(instrumentation.ServiceOAuth, status, string(re.Body), err)
	}
	return apperr.NewUpstreamError(instrumentation.ServiceOAuth, 0, "", err)
}

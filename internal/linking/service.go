// Package linking reconciles the provisional record created by the Google
// OAuth callback with the phone number a user submits afterwards.
//
// Uniqueness of email and phone is checked twice: a set-based pre-check that
// yields ErrEmailInUse or ErrPhoneInUse, and the store's unique constraint,
// whose violation is reported as ErrConcurrentLinkConflict. There is no
// in-process lock; the constraint holds across restarts and replicas.
package linking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/miraassistant/mira/internal/apperr"
	"github.com/miraassistant/mira/internal/authstate"
	"github.com/miraassistant/mira/internal/identity"
	"github.com/miraassistant/mira/internal/instrumentation"
	"github.com/miraassistant/mira/internal/logging"
	"github.com/miraassistant/mira/internal/tokens"
)

// CodeExchanger trades an authorization code for tokens.
// *tokens.Manager implements it.
type CodeExchanger interface {
	Exchange(ctx context.Context, code string) (*tokens.Grant, error)
}

// AuthURLBuilder renders the consent URL for a state value.
// *google.OAuth implements it.
type AuthURLBuilder interface {
	AuthURL(state string) string
}

// Service implements the OAuth begin/complete steps and phone linking.
type Service struct {
	store     identity.Store
	exchanger CodeExchanger
	authURL   AuthURLBuilder
	states    authstate.Store
	logger    *slog.Logger
	metrics   *instrumentation.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithStateStore enables the OAuth state check. Without it the callback
// accepts any state.
func WithStateStore(states authstate.Store) Option {
	return func(s *Service) { s.states = states }
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// NewService creates a linking Service.
func NewService(store identity.Store, exchanger CodeExchanger, authURL AuthURLBuilder, opts ...Option) *Service {
	s := &Service{
		store:     store,
		exchanger: exchanger,
		authURL:   authURL,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "linking"))
	return s
}

// BeginAuth returns the Google consent URL.
func (s *Service) BeginAuth(ctx context.Context) (string, error) {
	state := ""
	if s.states != nil {
		var err error
		if state, err = s.states.Issue(ctx); err != nil {
			return "", fmt.Errorf("issuing oauth state: %w", err)
		}
	}
	return s.authURL.AuthURL(state), nil
}

// CompleteAuth verifies state, exchanges code and stores the resulting
// tokens. Normally this inserts a new provisional record. When a record
// already holds the id_token's email, its tokens are replaced instead, so a
// user whose refresh token was revoked recovers by signing in again.
func (s *Service) CompleteAuth(ctx context.Context, code, state string) (*identity.Record, error) {
	if s.states != nil {
		if err := s.states.Consume(ctx, state); err != nil {
			return nil, err
		}
	}

	grant, err := s.exchanger.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	rec, err := s.existingForEmail(ctx, grant.Email)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &identity.Record{
			Email:      grant.Email,
			CalendarID: identity.DefaultCalendarID,
		}
	}
	applyGrant(rec, grant)

	isNew := rec.ID == ""
	err = s.store.Save(ctx, rec)
	if errors.Is(err, identity.ErrUniqueViolation) && isNew {
		// Another callback for the same email inserted first.
		rec, err = s.retryOnExisting(ctx, grant)
	}
	if err != nil {
		return nil, fmt.Errorf("saving provisional record: %w", err)
	}

	s.logger.Info("oauth callback stored",
		logging.Record(rec.ID),
		logging.UserHash(rec.Email),
		slog.String("phase", string(rec.Phase())))

	return rec, nil
}

func (s *Service) retryOnExisting(ctx context.Context, grant *tokens.Grant) (*identity.Record, error) {
	rec, err := s.existingForEmail(ctx, grant.Email)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, identity.ErrUniqueViolation
	}
	applyGrant(rec, grant)
	if err := s.store.Save(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) existingForEmail(ctx context.Context, email string) (*identity.Record, error) {
	if email == "" {
		return nil, nil
	}
	matches, err := s.store.FindAllByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("looking up email: %w", err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return matches[0], nil
}

func applyGrant(rec *identity.Record, grant *tokens.Grant) {
	rec.AccessToken = grant.AccessToken
	rec.TokenExpiry = grant.Expiry
	if grant.RefreshToken != "" {
		rec.RefreshToken = grant.RefreshToken
	}
}

// LinkPhone binds email and phone to the provisional record id.
//
// It fails with ErrBadRequest on empty input, ErrTokensMissing when the
// record is absent or has no access token, ErrEmailInUse when the record is
// already linked to a different phone, ErrEmailInUse or ErrPhoneInUse when
// another record already holds either value, and
// ErrConcurrentLinkConflict when a concurrent writer claimed one of them
// between the check and the write.
func (s *Service) LinkPhone(ctx context.Context, id, email, phone string) (*identity.Record, error) {
	id, email, phone = strings.TrimSpace(id), strings.TrimSpace(email), strings.TrimSpace(phone)
	if id == "" || email == "" || phone == "" {
		return nil, fmt.Errorf("authId, email & phone are required: %w", apperr.ErrBadRequest)
	}

	logger := logging.WithOperation(s.logger, "link_phone")
	ctx, span := instrumentation.StartSpan(ctx, "linking.link_phone",
		attribute.String(instrumentation.SpanAttrRecordID, id))
	defer span.End()

	rec, err := s.link(ctx, id, email, phone)
	s.metrics.RecordIdentityLink(ctx, linkResult(err))
	if err != nil {
		instrumentation.SetSpanError(span, err)
		logger.Warn("phone link rejected",
			logging.Record(id),
			logging.UserHash(email),
			logging.PhoneHash(phone),
			logging.Err(err))
		return nil, err
	}

	instrumentation.SetSpanSuccess(span)
	logger.Info("phone linked",
		logging.Record(rec.ID),
		logging.UserHash(email),
		logging.PhoneHash(phone))
	return rec, nil
}

func (s *Service) link(ctx context.Context, id, email, phone string) (*identity.Record, error) {
	rec, err := s.store.FindByID(ctx, id)
	if errors.Is(err, identity.ErrNotFound) {
		return nil, apperr.ErrTokensMissing
	}
	if err != nil {
		return nil, fmt.Errorf("loading record: %w", err)
	}
	if rec.AccessToken == "" {
		return nil, apperr.ErrTokensMissing
	}
	if rec.PhoneNumber != "" && rec.PhoneNumber != phone {
		// A re-auth hands out the linked record's ID; it must not move the
		// account to another phone.
		return nil, apperr.ErrEmailInUse
	}

	byEmail, err := s.store.FindAllByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("looking up email: %w", err)
	}
	byPhone, err := s.store.FindAllByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("looking up phone: %w", err)
	}

	if heldByOther(byEmail, id) {
		return nil, apperr.ErrEmailInUse
	}
	if heldByOther(byPhone, id) {
		return nil, apperr.ErrPhoneInUse
	}

	updated := rec.Clone()
	updated.Email = email
	updated.PhoneNumber = phone
	if err := s.store.Save(ctx, updated); err != nil {
		if errors.Is(err, identity.ErrUniqueViolation) {
			return nil, fmt.Errorf("%w: %v", apperr.ErrConcurrentLinkConflict, err)
		}
		return nil, fmt.Errorf("saving linked record: %w", err)
	}
	return updated, nil
}

func heldByOther(matches []*identity.Record, id string) bool {
	for _, m := range matches {
		if m.ID != id {
			return true
		}
	}
	return false
}

func linkResult(err error) string {
	switch {
	case err == nil:
		return instrumentation.LinkResultLinked
	case errors.Is(err, apperr.ErrEmailInUse):
		return instrumentation.LinkResultEmailInUse
	case errors.Is(err, apperr.ErrPhoneInUse):
		return instrumentation.LinkResultPhoneInUse
	case errors.Is(err, apperr.ErrConcurrentLinkConflict):
		return instrumentation.LinkResultConflict
	case errors.Is(err, apperr.ErrTokensMissing):
		return instrumentation.LinkResultTokensMissing
	default:
		return instrumentation.LinkResultError
	}
}

// PendingEmail returns the email stored on record id, which may be empty.
func (s *Service) PendingEmail(ctx context.Context, id string) (string, error) {
	rec, err := s.store.FindByID(ctx, id)
	if errors.Is(err, identity.ErrNotFound) {
		return "", apperr.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("loading record: %w", err)
	}
	return rec.Email, nil
}

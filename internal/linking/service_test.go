package linking

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miraassistant/mira/internal/apperr"
	"github.com/miraassistant/mira/internal/authstate"
	"github.com/miraassistant/mira/internal/identity"
	"github.com/miraassistant/mira/internal/identity/sqlstore"
	"github.com/miraassistant/mira/internal/tokens"
)

var expiry = time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC)

type fakeExchanger struct {
	grant *tokens.Grant
	err   error
	codes []string
}

func (f *fakeExchanger) Exchange(_ context.Context, code string) (*tokens.Grant, error) {
	f.codes = append(f.codes, code)
	if f.err != nil {
		return nil, f.err
	}
	g := *f.grant
	return &g, nil
}

type fakeAuthURL struct{}

func (fakeAuthURL) AuthURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

// racingStore simulates a concurrent writer by failing the next Save with a
// unique violation.
type racingStore struct {
	identity.Store
	failNext bool
}

func (r *racingStore) Save(ctx context.Context, rec *identity.Record) error {
	if r.failNext {
		r.failNext = false
		return fmt.Errorf("phone_number: %w", identity.ErrUniqueViolation)
	}
	return r.Store.Save(ctx, rec)
}

// lateWriterStore hides every record from the first email lookup, as if a
// concurrent callback inserted the same email right after it.
type lateWriterStore struct {
	identity.Store
	hidden bool
}

func (l *lateWriterStore) FindAllByEmail(ctx context.Context, email string) ([]*identity.Record, error) {
	if !l.hidden {
		l.hidden = true
		return nil, nil
	}
	return l.Store.FindAllByEmail(ctx, email)
}

func newService(t *testing.T, store identity.Store, opts ...Option) *Service {
	t.Helper()
	ex := &fakeExchanger{grant: &tokens.Grant{AccessToken: "at", RefreshToken: "rt", Expiry: expiry}}
	return NewService(store, ex, fakeAuthURL{}, opts...)
}

func provisional(t *testing.T, store identity.Store, email string) *identity.Record {
	t.Helper()
	rec := &identity.Record{Email: email, AccessToken: "at", RefreshToken: "rt", TokenExpiry: expiry}
	require.NoError(t, store.Save(context.Background(), rec))
	return rec
}

func TestLinkPhone_FreshPairSucceeds(t *testing.T) {
	store := identity.NewMemoryStore(nil)
	svc := newService(t, store)
	rec := provisional(t, store, "")

	linked, err := svc.LinkPhone(context.Background(), rec.ID, "a@example.com", "+911234567890")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, linked.ID)
	assert.Equal(t, "+911234567890", linked.PhoneNumber)
	assert.Equal(t, identity.PhaseLinked, linked.Phase())

	stored, err := store.FindByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", stored.Email)
	assert.Equal(t, "+911234567890", stored.PhoneNumber)
	assert.Equal(t, "at", stored.AccessToken)
}

func TestLinkPhone_RelinkSameRecord(t *testing.T) {
	store := identity.NewMemoryStore(nil)
	svc := newService(t, store)
	rec := provisional(t, store, "a@example.com")

	_, err := svc.LinkPhone(context.Background(), rec.ID, "a@example.com", "+911")
	require.NoError(t, err)
	_, err = svc.LinkPhone(context.Background(), rec.ID, "a@example.com", "+911")
	assert.NoError(t, err)
}

func TestLinkPhone_Conflicts(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		phone   string
		wantErr error
	}{
		{"email held by first", "first@example.com", "+912", apperr.ErrEmailInUse},
		{"phone held by first", "second@example.com", "+911", apperr.ErrPhoneInUse},
		{"both held reports email", "first@example.com", "+911", apperr.ErrEmailInUse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := identity.NewMemoryStore(nil)
			svc := newService(t, store)

			first := provisional(t, store, "")
			_, err := svc.LinkPhone(ctx, first.ID, "first@example.com", "+911")
			require.NoError(t, err)
			before, err := store.FindByID(ctx, first.ID)
			require.NoError(t, err)

			second := provisional(t, store, "")
			_, err = svc.LinkPhone(ctx, second.ID, tt.email, tt.phone)
			assert.ErrorIs(t, err, tt.wantErr)

			after, err := store.FindByID(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, before, after)

			unchanged, err := store.FindByID(ctx, second.ID)
			require.NoError(t, err)
			assert.Empty(t, unchanged.PhoneNumber)
			assert.Equal(t, identity.PhaseProvisional, unchanged.Phase())
		})
	}
}

func TestLinkPhone_ConcurrentWriterWins(t *testing.T) {
	store := &racingStore{Store: identity.NewMemoryStore(nil)}
	svc := newService(t, store)
	rec := provisional(t, store, "")

	store.failNext = true
	_, err := svc.LinkPhone(context.Background(), rec.ID, "a@example.com", "+911")
	assert.ErrorIs(t, err, apperr.ErrConcurrentLinkConflict)
	assert.NotErrorIs(t, err, apperr.ErrPhoneInUse)
	assert.Equal(t, "duplicate_key", apperr.Code(err))
}

func TestLinkPhone_Preconditions(t *testing.T) {
	store := identity.NewMemoryStore(nil)
	svc := newService(t, store)

	bare := &identity.Record{Email: "bare@example.com"}
	require.NoError(t, store.Save(context.Background(), bare))

	tests := []struct {
		name    string
		id      string
		email   string
		phone   string
		wantErr error
	}{
		{"missing id", "", "a@example.com", "+911", apperr.ErrBadRequest},
		{"missing email", bare.ID, " ", "+911", apperr.ErrBadRequest},
		{"missing phone", bare.ID, "a@example.com", "", apperr.ErrBadRequest},
		{"unknown record", "nope", "a@example.com", "+911", apperr.ErrTokensMissing},
		{"record without tokens", bare.ID, "a@example.com", "+911", apperr.ErrTokensMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.LinkPhone(context.Background(), tt.id, tt.email, tt.phone)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestCompleteAuth_StoresProvisionalRecord(t *testing.T) {
	ctx := context.Background()
	store := identity.NewMemoryStore(nil)
	ex := &fakeExchanger{grant: &tokens.Grant{
		AccessToken:  "at",
		RefreshToken: "rt",
		Expiry:       expiry,
		Email:        "a@example.com",
	}}
	svc := NewService(store, ex, fakeAuthURL{})

	rec, err := svc.CompleteAuth(ctx, "code-1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"code-1"}, ex.codes)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, identity.PhaseProvisional, rec.Phase())

	stored, err := store.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", stored.Email)
	assert.Equal(t, "rt", stored.RefreshToken)
	assert.Equal(t, expiry, stored.TokenExpiry)
	assert.Equal(t, "primary", stored.CalendarID)

	email, err := svc.PendingEmail(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "a@example.com", email)
}

func TestCompleteAuth_WithoutEmail(t *testing.T) {
	store := identity.NewMemoryStore(nil)
	svc := newService(t, store)

	a, err := svc.CompleteAuth(context.Background(), "c1", "")
	require.NoError(t, err)
	b, err := svc.CompleteAuth(context.Background(), "c2", "")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, 2, store.Len())
}

func TestCompleteAuth_ReauthReplacesTokens(t *testing.T) {
	ctx := context.Background()
	store := identity.NewMemoryStore(nil)
	existing := &identity.Record{
		Email:        "a@example.com",
		PhoneNumber:  "+911",
		AccessToken:  "old-at",
		RefreshToken: "old-rt",
	}
	require.NoError(t, store.Save(ctx, existing))

	ex := &fakeExchanger{grant: &tokens.Grant{AccessToken: "new-at", Expiry: expiry, Email: "a@example.com"}}
	svc := NewService(store, ex, fakeAuthURL{})

	rec, err := svc.CompleteAuth(ctx, "code", "")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, rec.ID)
	assert.Equal(t, 1, store.Len())

	stored, err := store.FindByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-at", stored.AccessToken)
	assert.Equal(t, "old-rt", stored.RefreshToken, "refresh token kept when none returned")
	assert.Equal(t, "+911", stored.PhoneNumber, "linked record stays linked")
}

func TestCompleteAuth_ExchangeFailure(t *testing.T) {
	store := identity.NewMemoryStore(nil)
	upstream := apperr.NewUpstreamError("oauth", 400, `{"error":"invalid_grant"}`, nil)
	svc := NewService(store, &fakeExchanger{err: upstream}, fakeAuthURL{})

	_, err := svc.CompleteAuth(context.Background(), "bad", "")
	var ue *apperr.UpstreamError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, 400, ue.Status)
	assert.Equal(t, 0, store.Len())
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := identity.NewMemoryStore(nil)
	states := authstate.NewMemoryStore(time.Minute)
	svc := newService(t, store, WithStateStore(states))

	authURL, err := svc.BeginAuth(ctx)
	require.NoError(t, err)
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)

	_, err = svc.CompleteAuth(ctx, "code", "forged")
	assert.ErrorIs(t, err, apperr.ErrInvalidState)

	_, err = svc.CompleteAuth(ctx, "code", state)
	require.NoError(t, err)

	_, err = svc.CompleteAuth(ctx, "code", state)
	assert.ErrorIs(t, err, apperr.ErrInvalidState, "state is single use")
}

func TestBeginAuth_NoStateStore(t *testing.T) {
	svc := newService(t, identity.NewMemoryStore(nil))
	got, err := svc.BeginAuth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://accounts.example.com/auth?state=", got)
}

func TestPendingEmail_NotFound(t *testing.T) {
	svc := newService(t, identity.NewMemoryStore(nil))
	_, err := svc.PendingEmail(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCompleteAuth_LosesInsertRace(t *testing.T) {
	backends := []struct {
		name     string
		newStore func(t *testing.T) identity.Store
	}{
		{"memory", func(t *testing.T) identity.Store { return identity.NewMemoryStore(nil) }},
		{"sqlite", func(t *testing.T) identity.Store {
			s, err := sqlstore.Open(context.Background(), sqlstore.DriverSQLite, filepath.Join(t.TempDir(), "mira.db"), nil)
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			ctx := context.Background()
			base := b.newStore(t)
			winner := &identity.Record{Email: "a@example.com", AccessToken: "old-at", RefreshToken: "old-rt"}
			require.NoError(t, base.Save(ctx, winner))

			ex := &fakeExchanger{grant: &tokens.Grant{AccessToken: "new-at", Expiry: expiry, Email: "a@example.com"}}
			svc := NewService(&lateWriterStore{Store: base}, ex, fakeAuthURL{})

			rec, err := svc.CompleteAuth(ctx, "code", "")
			require.NoError(t, err)
			assert.Equal(t, winner.ID, rec.ID)

			all, err := base.FindAllByEmail(ctx, "a@example.com")
			require.NoError(t, err)
			require.Len(t, all, 1)
			assert.Equal(t, "new-at", all[0].AccessToken)
			assert.Equal(t, "old-rt", all[0].RefreshToken)
		})
	}
}

func TestLinkPhone_ReauthCannotMovePhone(t *testing.T) {
	ctx := context.Background()
	store := identity.NewMemoryStore(nil)
	linked := &identity.Record{Email: "a@example.com", PhoneNumber: "+911", AccessToken: "at", RefreshToken: "rt"}
	require.NoError(t, store.Save(ctx, linked))

	ex := &fakeExchanger{grant: &tokens.Grant{AccessToken: "new-at", Expiry: expiry, Email: "a@example.com"}}
	svc := NewService(store, ex, fakeAuthURL{})

	rec, err := svc.CompleteAuth(ctx, "code", "")
	require.NoError(t, err)
	require.Equal(t, linked.ID, rec.ID)

	_, err = svc.LinkPhone(ctx, rec.ID, "a@example.com", "+912")
	assert.ErrorIs(t, err, apperr.ErrEmailInUse)

	stored, err := store.FindByID(ctx, linked.ID)
	require.NoError(t, err)
	assert.Equal(t, "+911", stored.PhoneNumber)

	_, err = svc.LinkPhone(ctx, rec.ID, "a@example.com", "+911")
	assert.NoError(t, err, "re-linking the same phone stays idempotent")
}

func TestLinkPhone_LogsOperationWithoutPII(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	store := identity.NewMemoryStore(nil)
	svc := newService(t, store, WithLogger(logger))
	rec := provisional(t, store, "")

	_, err := svc.LinkPhone(context.Background(), rec.ID, "a@example.com", "+911234567890")
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"operation":"link_phone"`)
	assert.Contains(t, out, `"component":"linking"`)
	assert.NotContains(t, out, "a@example.com")
	assert.NotContains(t, out, "+911234567890")
}

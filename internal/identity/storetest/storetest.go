// Package storetest holds the behavioural test suite every identity.Store
// backend must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miraassistant/mira/internal/identity"
)

// Run exercises newStore against the identity.Store contract. newStore must
// return an empty store; cleanup is the caller's job (t.Cleanup).
func Run(t *testing.T, newStore func(t *testing.T) identity.Store) {
	t.Helper()

	t.Run("save assigns id and defaults", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		rec := &identity.Record{AccessToken: "at", RefreshToken: "rt"}
		require.NoError(t, s.Save(ctx, rec))
		assert.NotEmpty(t, rec.ID)

		got, err := s.FindByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "at", got.AccessToken)
		assert.Equal(t, "rt", got.RefreshToken)
		assert.Equal(t, identity.DefaultCalendarID, got.CalendarID)
		assert.Empty(t, got.Email)
		assert.Empty(t, got.PhoneNumber)
		assert.Equal(t, identity.PhaseProvisional, got.Phase())
	})

	t.Run("find by id missing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.FindByID(context.Background(), identity.NewID())
		assert.True(t, errors.Is(err, identity.ErrNotFound), "got %v", err)
	})

	t.Run("update in place keeps created at", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		expiry := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
		rec := &identity.Record{AccessToken: "at", TokenExpiry: expiry}
		require.NoError(t, s.Save(ctx, rec))
		created := rec.CreatedAt

		rec.Email = "a@example.com"
		rec.PhoneNumber = "+911234567890"
		require.NoError(t, s.Save(ctx, rec))

		got, err := s.FindByID(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "a@example.com", got.Email)
		assert.Equal(t, "+911234567890", got.PhoneNumber)
		assert.True(t, got.TokenExpiry.Equal(expiry), "expiry = %v", got.TokenExpiry)
		assert.True(t, got.CreatedAt.Equal(created.Truncate(time.Microsecond)) || got.CreatedAt.Equal(created),
			"created at changed: %v -> %v", created, got.CreatedAt)
		assert.Equal(t, identity.PhaseLinked, got.Phase())
	})

	t.Run("provisional records do not collide", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, &identity.Record{AccessToken: "a"}))
		require.NoError(t, s.Save(ctx, &identity.Record{AccessToken: "b"}))
	})

	t.Run("unique email", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, &identity.Record{AccessToken: "a", Email: "dup@example.com"}))
		err := s.Save(ctx, &identity.Record{AccessToken: "b", Email: "dup@example.com"})
		assert.True(t, errors.Is(err, identity.ErrUniqueViolation), "got %v", err)
	})

	t.Run("failed save leaves record untouched", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, &identity.Record{AccessToken: "a", Email: "dup@example.com"}))

		loser := &identity.Record{AccessToken: "b", Email: "dup@example.com"}
		err := s.Save(ctx, loser)
		require.True(t, errors.Is(err, identity.ErrUniqueViolation), "got %v", err)
		assert.Empty(t, loser.ID)
		assert.Empty(t, loser.CalendarID)
		assert.True(t, loser.CreatedAt.IsZero())
		assert.True(t, loser.UpdatedAt.IsZero())

		byEmail, err := s.FindAllByEmail(ctx, "dup@example.com")
		require.NoError(t, err)
		assert.Len(t, byEmail, 1)
	})

	t.Run("unique phone", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.Save(ctx, &identity.Record{AccessToken: "a", Email: "a@example.com", PhoneNumber: "+1555"}))
		err := s.Save(ctx, &identity.Record{AccessToken: "b", Email: "b@example.com", PhoneNumber: "+1555"})
		assert.True(t, errors.Is(err, identity.ErrUniqueViolation), "got %v", err)
	})

	t.Run("set based lookups", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		a := &identity.Record{AccessToken: "a", Email: "a@example.com", PhoneNumber: "+1"}
		b := &identity.Record{AccessToken: "b", Email: "b@example.com"}
		require.NoError(t, s.Save(ctx, a))
		require.NoError(t, s.Save(ctx, b))

		byEmail, err := s.FindAllByEmail(ctx, "b@example.com")
		require.NoError(t, err)
		require.Len(t, byEmail, 1)
		assert.Equal(t, b.ID, byEmail[0].ID)

		byPhone, err := s.FindAllByPhone(ctx, "+1")
		require.NoError(t, err)
		require.Len(t, byPhone, 1)
		assert.Equal(t, a.ID, byPhone[0].ID)

		none, err := s.FindAllByPhone(ctx, "+2")
		require.NoError(t, err)
		assert.Empty(t, none)

		empty, err := s.FindAllByEmail(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("ping", func(t *testing.T) {
		s := newStore(t)
		assert.NoError(t, s.Ping(context.Background()))
	})
}

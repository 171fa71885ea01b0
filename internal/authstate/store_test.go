package authstate

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miraassistant/mira/internal/apperr"
)

// runContract checks the single-use semantics shared by every Store.
func runContract(t *testing.T, s Store) {
	ctx := context.Background()

	t.Run("issue then consume once", func(t *testing.T) {
		state, err := s.Issue(ctx)
		require.NoError(t, err)
		require.NotEmpty(t, state)

		require.NoError(t, s.Consume(ctx, state))
		assert.ErrorIs(t, s.Consume(ctx, state), apperr.ErrInvalidState)
	})

	t.Run("unknown and empty", func(t *testing.T) {
		assert.ErrorIs(t, s.Consume(ctx, "never-issued"), apperr.ErrInvalidState)
		assert.ErrorIs(t, s.Consume(ctx, ""), apperr.ErrInvalidState)
	})

	t.Run("distinct values", func(t *testing.T) {
		a, err := s.Issue(ctx)
		require.NoError(t, err)
		b, err := s.Issue(ctx)
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("concurrent consume wins once", func(t *testing.T) {
		state, err := s.Issue(ctx)
		require.NoError(t, err)

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if s.Consume(ctx, state) == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestMemoryStore(t *testing.T) {
	runContract(t, NewMemoryStore(0))
}

func TestMemoryStore_Expiry(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	state, err := s.Issue(context.Background())
	require.NoError(t, err)

	now = now.Add(time.Minute)
	assert.ErrorIs(t, s.Consume(context.Background(), state), apperr.ErrInvalidState)
}

func TestMemoryStore_IssuePrunesExpired(t *testing.T) {
	s := NewMemoryStore(time.Minute)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	_, err := s.Issue(context.Background())
	require.NoError(t, err)
	now = now.Add(2 * time.Minute)
	_, err = s.Issue(context.Background())
	require.NoError(t, err)

	assert.Len(t, s.pending, 1)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("MIRA_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("MIRA_TEST_REDIS_ADDR not set")
	}

	client, err := NewRedisClient(context.Background(), addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	s := NewRedisStore(client, time.Minute)
	require.NoError(t, s.Ping(context.Background()))
	runContract(t, s)
}

func TestRedisStore_KeyPrefix(t *testing.T) {
	s := NewRedisStore(nil, 0)
	assert.Equal(t, "oauth_state:abc", s.key("abc"))
	assert.Equal(t, DefaultTTL, s.ttl)
}

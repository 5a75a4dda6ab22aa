package repository

import (
	"context"
	"testing"
	"time"

	"shinebin/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func configFor(addr string) config.RedisConfig {
	return config.RedisConfig{Address: addr}
}

func TestMemoryCacheRepository(t *testing.T) {
	repo := NewMemoryCacheRepository(time.Minute)
	now := time.Date(2030, 1, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	t.Run("MarkAndCheck", func(t *testing.T) {
		require.NoError(t, repo.MarkOccupied(ctx, "2030-01-02", "08:00-10:00"))

		occupied, err := repo.IsOccupied(ctx, "2030-01-02", "08:00-10:00")
		require.NoError(t, err)
		assert.True(t, occupied)
	})

	t.Run("Expiry", func(t *testing.T) {
		now = now.Add(2 * time.Minute)
		occupied, err := repo.IsOccupied(ctx, "2030-01-02", "08:00-10:00")
		require.NoError(t, err)
		assert.False(t, occupied)
	})

	t.Run("Forget", func(t *testing.T) {
		require.NoError(t, repo.MarkOccupied(ctx, "2030-01-02", "10:00-12:00"))
		require.NoError(t, repo.Forget(ctx, "2030-01-02", "10:00-12:00"))
		occupied, err := repo.IsOccupied(ctx, "2030-01-02", "10:00-12:00")
		require.NoError(t, err)
		assert.False(t, occupied)
	})

	t.Run("CheckRateLimit", func(t *testing.T) {
		allowed, err := repo.CheckRateLimit(ctx, "k", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, "k", 2, time.Minute)
		assert.True(t, allowed)
		allowed, _ = repo.CheckRateLimit(ctx, "k", 2, time.Minute)
		assert.False(t, allowed)

		now = now.Add(2 * time.Minute)
		allowed, _ = repo.CheckRateLimit(ctx, "k", 2, time.Minute)
		assert.True(t, allowed)
	})
}

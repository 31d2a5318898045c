package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okian/playrank/internal/domain/model"
)

func TestRankingCache(t *testing.T) {
	addr := os.Getenv("PLAYRANK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("PLAYRANK_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	c, err := Connect(ctx, addr, "", 0, WithTTL(time.Minute))
	require.NoError(t, err)
	defer c.Close()
	require.NoError(t, c.Invalidate(ctx))

	_, ok, err := c.Get(ctx, 10)
	require.NoError(t, err)
	assert.False(t, ok)

	rows := []model.GlobalRanking{
		{Rank: 1, UserID: "u1", Username: "ann", TotalScore: 300, GamesRanked: 2, HighestScore: 200},
	}
	require.NoError(t, c.Set(ctx, 10, rows))
	require.NoError(t, c.Set(ctx, 5, rows))

	got, ok, err := c.Get(ctx, 10)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, rows, got)

	require.NoError(t, c.Invalidate(ctx))
	_, ok, _ = c.Get(ctx, 10)
	assert.False(t, ok)
	_, ok, _ = c.Get(ctx, 5)
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "playrank:global:25", key(25))
}

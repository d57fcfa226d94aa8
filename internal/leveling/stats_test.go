package leveling_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/rueidis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ventryx/ventryx/internal/database/types"
	"github.com/ventryx/ventryx/internal/leveling"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T) rueidis.Client {
	t.Helper()

	server := miniredis.RunT(t)

	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{server.Addr()},
		DisableCache: true,
	})
	require.NoError(t, err)

	t.Cleanup(client.Close)

	return client
}

func TestGetUserStats(t *testing.T) {
	t.Parallel()

	store := newFakeLevelStore()
	require.NoError(t, store.UpsertUserLevel(context.Background(), &types.UserLevel{
		UserID:  200,
		GuildID: 100,
		TotalXP: 700,
		Level:   3,
	}))

	stats := leveling.NewStatsService(store, nil, time.Minute, zap.NewNop())

	t.Run("existing member", func(t *testing.T) {
		t.Parallel()

		got, err := stats.GetUserStats(context.Background(), 200, 100)
		require.NoError(t, err)

		// 700 total XP sits 75 points past the level 3 threshold of 625.
		assert.Equal(t, 3, got.Level)
		assert.Equal(t, int64(700), got.TotalXP)
		assert.Equal(t, int64(75), got.CurrentXP)
		assert.Equal(t, leveling.XPForLevel(4), got.RequiredXP)
		assert.InDelta(t, 13.3, got.ProgressPercent, 0.1)
	})

	t.Run("unknown member starts at level one", func(t *testing.T) {
		t.Parallel()

		got, err := stats.GetUserStats(context.Background(), 999, 100)
		require.NoError(t, err)

		assert.Equal(t, 1, got.Level)
		assert.Zero(t, got.TotalXP)
		assert.Zero(t, got.CurrentXP)
		assert.Equal(t, leveling.XPForLevel(2), got.RequiredXP)
		assert.Zero(t, got.ProgressPercent)
	})
}

func TestGetLeaderboard(t *testing.T) {
	t.Parallel()

	store := newFakeLevelStore()
	for i, xp := range []int64{500, 1500, 1000} {
		require.NoError(t, store.UpsertUserLevel(context.Background(), &types.UserLevel{
			UserID:  snowflake.ID(200 + i),
			GuildID: 100,
			TotalXP: xp,
			Level:   leveling.LevelForTotalXP(xp),
		}))
	}

	stats := leveling.NewStatsService(store, newTestCache(t), time.Minute, zap.NewNop())

	records, err := stats.GetLeaderboard(context.Background(), 100, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, int64(1500), records[0].TotalXP)
	assert.Equal(t, int64(1000), records[1].TotalXP)
	assert.Equal(t, int64(500), records[2].TotalXP)
}

func TestGetLeaderboardUsesCache(t *testing.T) {
	t.Parallel()

	store := newFakeLevelStore()
	require.NoError(t, store.UpsertUserLevel(context.Background(), &types.UserLevel{
		UserID:  200,
		GuildID: 100,
		TotalXP: 500,
		Level:   2,
	}))

	stats := leveling.NewStatsService(store, newTestCache(t), time.Minute, zap.NewNop())

	first, err := stats.GetLeaderboard(context.Background(), 100, 10)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A write after the first read is invisible until the TTL expires.
	require.NoError(t, store.UpsertUserLevel(context.Background(), &types.UserLevel{
		UserID:  201,
		GuildID: 100,
		TotalXP: 900,
		Level:   2,
	}))

	cached, err := stats.GetLeaderboard(context.Background(), 100, 10)
	require.NoError(t, err)
	assert.Len(t, cached, 1)
	assert.Equal(t, first[0].TotalXP, cached[0].TotalXP)

	// A different page size misses the cache and sees the new record.
	fresh, err := stats.GetLeaderboard(context.Background(), 100, 5)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestGetLeaderboardWithoutCache(t *testing.T) {
	t.Parallel()

	store := newFakeLevelStore()
	require.NoError(t, store.UpsertUserLevel(context.Background(), &types.UserLevel{
		UserID:  200,
		GuildID: 100,
		TotalXP: 500,
		Level:   2,
	}))

	stats := leveling.NewStatsService(store, nil, time.Minute, zap.NewNop())

	records, err := stats.GetLeaderboard(context.Background(), 100, 10)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

package leveling_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ventryx/ventryx/internal/database/types"
	"github.com/ventryx/ventryx/internal/leveling"
	"go.uber.org/zap"
)

func newTestAggregator(store *fakeConfigStore) *leveling.MessageXPAggregator {
	guard := leveling.NewSpamCooldownGuard(time.Minute, 100)
	configs := leveling.NewGuildConfigCache(store, time.Hour)

	return leveling.NewMessageXPAggregator(guard, configs, zap.NewNop())
}

func TestMessageAggregatorAccumulates(t *testing.T) {
	t.Parallel()

	store := newFakeConfigStore()
	store.put(&types.LevelConfig{
		GuildID:      100,
		Enabled:      true,
		XPPerMessage: 15,
	})

	agg := newTestAggregator(store)
	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	accepted, err := agg.OnMessage(context.Background(), 200, 100, base)
	require.NoError(t, err)
	assert.True(t, accepted)

	accepted, err = agg.OnMessage(context.Background(), 200, 100, base.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, accepted)

	drained := agg.Drain()
	require.Len(t, drained, 1)

	entry := drained[leveling.NewMemberKey(100, 200)]
	require.NotNil(t, entry)
	assert.Equal(t, int64(30), entry.XPToAdd)
	assert.Equal(t, 2, entry.MessageCount)
	assert.Equal(t, base.Add(time.Second), entry.LastMessageAt)
}

func TestMessageAggregatorRespectsVariance(t *testing.T) {
	t.Parallel()

	store := newFakeConfigStore()
	store.put(&types.LevelConfig{
		GuildID:              100,
		Enabled:              true,
		XPPerMessage:         15,
		XPPerMessageVariance: 10,
	})

	agg := newTestAggregator(store)
	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	accepted, err := agg.OnMessage(context.Background(), 200, 100, base)
	require.NoError(t, err)
	require.True(t, accepted)

	entry := agg.Drain()[leveling.NewMemberKey(100, 200)]
	require.NotNil(t, entry)
	assert.GreaterOrEqual(t, entry.XPToAdd, int64(5))
	assert.LessOrEqual(t, entry.XPToAdd, int64(25))
}

func TestMessageAggregatorDisabledGuild(t *testing.T) {
	t.Parallel()

	store := newFakeConfigStore()
	store.put(&types.LevelConfig{GuildID: 100, Enabled: false, XPPerMessage: 15})

	agg := newTestAggregator(store)

	accepted, err := agg.OnMessage(context.Background(), 200, 100, time.Now())
	require.NoError(t, err)
	assert.False(t, accepted)
	assert.Zero(t, agg.PendingCount())
}

func TestMessageAggregatorCooldownRejection(t *testing.T) {
	t.Parallel()

	store := newFakeConfigStore()
	store.put(&types.LevelConfig{
		GuildID:             100,
		Enabled:             true,
		XPPerMessage:        15,
		MessageCooldownSecs: 60,
	})

	agg := newTestAggregator(store)
	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	accepted, err := agg.OnMessage(context.Background(), 200, 100, base)
	require.NoError(t, err)
	assert.True(t, accepted)

	accepted, err = agg.OnMessage(context.Background(), 200, 100, base.Add(30*time.Second))
	require.NoError(t, err)
	assert.False(t, accepted)

	entry := agg.Drain()[leveling.NewMemberKey(100, 200)]
	require.NotNil(t, entry)
	assert.Equal(t, 1, entry.MessageCount)
}

func TestMessageAggregatorConfigError(t *testing.T) {
	t.Parallel()

	store := newFakeConfigStore()
	store.err = errStoreDown

	agg := newTestAggregator(store)

	accepted, err := agg.OnMessage(context.Background(), 200, 100, time.Now())
	require.ErrorIs(t, err, errStoreDown)
	assert.False(t, accepted)
	assert.Zero(t, agg.PendingCount())
}

func TestMessageAggregatorRequeueMerges(t *testing.T) {
	t.Parallel()

	store := newFakeConfigStore()
	store.put(&types.LevelConfig{GuildID: 100, Enabled: true, XPPerMessage: 15})

	agg := newTestAggregator(store)
	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	key := leveling.NewMemberKey(100, 200)

	_, err := agg.OnMessage(context.Background(), 200, 100, base)
	require.NoError(t, err)

	drained := agg.Drain()
	assert.Zero(t, agg.PendingCount())

	// New activity lands while the drained delta is being persisted.
	_, err = agg.OnMessage(context.Background(), 200, 100, base.Add(time.Second))
	require.NoError(t, err)

	// The failed delta merges with the new entry instead of replacing it.
	agg.Requeue(key, drained[key])

	merged := agg.Drain()[key]
	require.NotNil(t, merged)
	assert.Equal(t, int64(30), merged.XPToAdd)
	assert.Equal(t, 2, merged.MessageCount)
	assert.Equal(t, base.Add(time.Second), merged.LastMessageAt)
}

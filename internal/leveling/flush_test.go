package leveling_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ventryx/ventryx/internal/database/types"
	"github.com/ventryx/ventryx/internal/leveling"
	"github.com/ventryx/ventryx/internal/setup/config"
	"go.uber.org/zap"
)

type flushFixture struct {
	configs  *fakeConfigStore
	store    *fakeLevelStore
	messages *leveling.MessageXPAggregator
	voice    *leveling.VoiceSessionTracker
	coord    *leveling.FlushCoordinator
}

func newFlushFixture(t *testing.T) *flushFixture {
	t.Helper()

	logger := zap.NewNop()
	settings := config.DefaultLeveling()

	configStore := newFakeConfigStore()
	levelStore := newFakeLevelStore()
	configs := leveling.NewGuildConfigCache(configStore, settings.ConfigCacheTTL())
	guard := leveling.NewSpamCooldownGuard(settings.SpamWindow(), settings.MaxMessagesPerWindow)
	messages := leveling.NewMessageXPAggregator(guard, configs, logger)
	voice := leveling.NewVoiceSessionTracker(settings.PauseOnMute, logger)
	dispatcher := leveling.NewLevelUpDispatcher(logger)

	coord := leveling.NewFlushCoordinator(
		messages, voice, configs, guard, levelStore, dispatcher, settings, logger)

	return &flushFixture{
		configs:  configStore,
		store:    levelStore,
		messages: messages,
		voice:    voice,
		coord:    coord,
	}
}

func TestFlushWithNoActivity(t *testing.T) {
	t.Parallel()

	fix := newFlushFixture(t)

	summary := fix.coord.Flush(context.Background(), time.Now())

	assert.Zero(t, summary.MessageUpdates)
	assert.Zero(t, summary.VoiceUpdates)
	assert.Zero(t, summary.Requeued)
	assert.Empty(t, summary.LevelUps)
	assert.Zero(t, fix.store.upsertCount())
}

func TestFlushPersistsMessageXP(t *testing.T) {
	t.Parallel()

	fix := newFlushFixture(t)
	fix.configs.put(&types.LevelConfig{GuildID: 100, Enabled: true, XPPerMessage: 15})

	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	accepted, err := fix.messages.OnMessage(context.Background(), 200, 100, base)
	require.NoError(t, err)
	require.True(t, accepted)

	summary := fix.coord.Flush(context.Background(), base.Add(30*time.Second))
	assert.Equal(t, 1, summary.MessageUpdates)
	assert.Empty(t, summary.LevelUps)

	record := fix.store.record(200, 100)
	require.NotNil(t, record)
	assert.Equal(t, int64(15), record.TotalXP)
	assert.Equal(t, 1, record.Level)
	assert.Equal(t, base, record.LastMessageAt)

	// With nothing new pending, the next flush writes nothing.
	summary = fix.coord.Flush(context.Background(), base.Add(time.Minute))
	assert.Zero(t, summary.MessageUpdates)
	assert.Equal(t, 1, fix.store.upsertCount())
}

func TestFlushEmitsLevelUp(t *testing.T) {
	t.Parallel()

	fix := newFlushFixture(t)
	fix.configs.put(&types.LevelConfig{GuildID: 100, Enabled: true, XPPerMessage: 300})

	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	_, err := fix.messages.OnMessage(context.Background(), 200, 100, base)
	require.NoError(t, err)

	summary := fix.coord.Flush(context.Background(), base.Add(30*time.Second))
	require.Len(t, summary.LevelUps, 1)
	assert.Equal(t, leveling.LevelUpEvent{UserID: 200, GuildID: 100, NewLevel: 2}, summary.LevelUps[0])

	record := fix.store.record(200, 100)
	require.NotNil(t, record)
	assert.Equal(t, 2, record.Level)
}

func TestFlushRequeuesOnStoreFailure(t *testing.T) {
	t.Parallel()

	fix := newFlushFixture(t)
	fix.configs.put(&types.LevelConfig{GuildID: 100, Enabled: true, XPPerMessage: 15})

	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)

	_, err := fix.messages.OnMessage(context.Background(), 200, 100, base)
	require.NoError(t, err)

	fix.store.setFailWrites(true)

	summary := fix.coord.Flush(context.Background(), base.Add(30*time.Second))
	assert.Zero(t, summary.MessageUpdates)
	assert.Equal(t, 1, summary.Requeued)
	assert.Equal(t, 1, fix.messages.PendingCount())

	// Once the store recovers, the requeued delta lands intact.
	fix.store.setFailWrites(false)

	summary = fix.coord.Flush(context.Background(), base.Add(time.Minute))
	assert.Equal(t, 1, summary.MessageUpdates)

	record := fix.store.record(200, 100)
	require.NotNil(t, record)
	assert.Equal(t, int64(15), record.TotalXP)
}

func TestFlushPaysEndedVoiceSession(t *testing.T) {
	t.Parallel()

	fix := newFlushFixture(t)
	fix.configs.put(&types.LevelConfig{GuildID: 100, Enabled: true, XPPerVoiceMinute: 5})

	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	key := leveling.NewMemberKey(100, 200)

	fix.voice.Join(key, base)
	fix.voice.Leave(key, true, base.Add(45*time.Minute))

	summary := fix.coord.Flush(context.Background(), base.Add(50*time.Minute))
	assert.Equal(t, 1, summary.VoiceUpdates)
	assert.Zero(t, fix.voice.PendingCount())

	record := fix.store.record(200, 100)
	require.NotNil(t, record)
	// 30 minutes at full rate plus 15 at the 0.8 tier.
	assert.Equal(t, int64(210), record.TotalXP)

	// The session is gone; another flush pays nothing more.
	summary = fix.coord.Flush(context.Background(), base.Add(80*time.Minute))
	assert.Zero(t, summary.VoiceUpdates)
	assert.Equal(t, int64(210), fix.store.record(200, 100).TotalXP)
}

func TestFlushCreditsActiveVoiceSessionIncrementally(t *testing.T) {
	t.Parallel()

	fix := newFlushFixture(t)
	fix.configs.put(&types.LevelConfig{GuildID: 100, Enabled: true, XPPerVoiceMinute: 5})

	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	key := leveling.NewMemberKey(100, 200)

	fix.voice.Join(key, base)

	summary := fix.coord.Flush(context.Background(), base.Add(30*time.Minute))
	assert.Equal(t, 1, summary.VoiceUpdates)
	assert.Equal(t, int64(150), fix.store.record(200, 100).TotalXP)

	// The second segment falls in the 0.8 tier because tiers follow session
	// time across flushes.
	summary = fix.coord.Flush(context.Background(), base.Add(60*time.Minute))
	assert.Equal(t, 1, summary.VoiceUpdates)
	assert.Equal(t, int64(270), fix.store.record(200, 100).TotalXP)

	// Still connected, still tracked.
	assert.Equal(t, 1, fix.voice.PendingCount())
}

func TestFlushCapsVoiceSession(t *testing.T) {
	t.Parallel()

	fix := newFlushFixture(t)
	fix.configs.put(&types.LevelConfig{GuildID: 100, Enabled: true, XPPerVoiceMinute: 5})

	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	key := leveling.NewMemberKey(100, 200)

	fix.voice.Join(key, base)

	// Eight hours elapsed against a six hour cap.
	summary := fix.coord.Flush(context.Background(), base.Add(8*time.Hour))
	assert.Equal(t, 1, summary.VoiceUpdates)

	// 30*1.0 + 30*0.8 + 60*0.6 + 60*0.4 + 180*0.2 minutes at 5 XP each.
	assert.Equal(t, int64(750), fix.store.record(200, 100).TotalXP)

	// Past the cap nothing further accrues.
	summary = fix.coord.Flush(context.Background(), base.Add(10*time.Hour))
	assert.Zero(t, summary.VoiceUpdates)
	assert.Equal(t, int64(750), fix.store.record(200, 100).TotalXP)
}

func TestFlushDiscardsInvalidChannelSession(t *testing.T) {
	t.Parallel()

	fix := newFlushFixture(t)
	fix.configs.put(&types.LevelConfig{GuildID: 100, Enabled: true, XPPerVoiceMinute: 5})

	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	key := leveling.NewMemberKey(100, 200)

	fix.voice.Join(key, base)
	fix.voice.Leave(key, false, base.Add(45*time.Minute))

	summary := fix.coord.Flush(context.Background(), base.Add(50*time.Minute))
	assert.Zero(t, summary.VoiceUpdates)
	assert.Nil(t, fix.store.record(200, 100))
}

func TestFlushRetriesVoiceSegmentAfterStoreFailure(t *testing.T) {
	t.Parallel()

	fix := newFlushFixture(t)
	fix.configs.put(&types.LevelConfig{GuildID: 100, Enabled: true, XPPerVoiceMinute: 5})

	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	key := leveling.NewMemberKey(100, 200)

	fix.voice.Join(key, base)
	fix.voice.Leave(key, true, base.Add(45*time.Minute))

	fix.store.setFailWrites(true)

	summary := fix.coord.Flush(context.Background(), base.Add(50*time.Minute))
	assert.Zero(t, summary.VoiceUpdates)
	assert.Equal(t, 1, summary.Requeued)
	assert.Equal(t, 1, fix.voice.PendingCount())

	fix.store.setFailWrites(false)

	summary = fix.coord.Flush(context.Background(), base.Add(80*time.Minute))
	assert.Equal(t, 1, summary.VoiceUpdates)
	assert.Equal(t, int64(210), fix.store.record(200, 100).TotalXP)
	assert.Zero(t, fix.voice.PendingCount())
}

func TestFlushCombinesMessageAndVoiceXP(t *testing.T) {
	t.Parallel()

	fix := newFlushFixture(t)
	fix.configs.put(&types.LevelConfig{
		GuildID:          100,
		Enabled:          true,
		XPPerMessage:     15,
		XPPerVoiceMinute: 5,
	})

	base := time.Date(2025, 8, 15, 12, 0, 0, 0, time.UTC)
	key := leveling.NewMemberKey(100, 200)

	fix.voice.Join(key, base)

	_, err := fix.messages.OnMessage(context.Background(), 200, 100, base.Add(10*time.Minute))
	require.NoError(t, err)

	summary := fix.coord.Flush(context.Background(), base.Add(30*time.Minute))
	assert.Equal(t, 1, summary.MessageUpdates)
	assert.Equal(t, 1, summary.VoiceUpdates)

	// 15 from the message, 150 from half an hour of voice.
	assert.Equal(t, int64(165), fix.store.record(200, 100).TotalXP)
}

package leveling

import (
	"context"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/redis/rueidis"
	"github.com/ventryx/ventryx/internal/database"
	"github.com/ventryx/ventryx/internal/database/types"
	"github.com/ventryx/ventryx/internal/setup/config"
	"go.uber.org/zap"
)

// Engine composes the leveling components behind one entry point. Event
// glue feeds it activity, the flush coordinator it owns persists the
// aggregates, and registered handlers receive level-up events.
type Engine struct {
	db         *database.Repository
	settings   config.Leveling
	configs    *GuildConfigCache
	guard      *SpamCooldownGuard
	messages   *MessageXPAggregator
	voice      *VoiceSessionTracker
	dispatcher *LevelUpDispatcher
	stats      *StatsService
	flush      *FlushCoordinator
	logger     *zap.Logger
}

// NewEngine builds an engine over the repository. The cache client may be
// nil to run without leaderboard caching.
func NewEngine(
	db *database.Repository,
	cache rueidis.Client,
	settings config.Leveling,
	logger *zap.Logger,
) *Engine {
	log := logger.Named("leveling")

	configs := NewGuildConfigCache(db.Config(), settings.ConfigCacheTTL())
	guard := NewSpamCooldownGuard(settings.SpamWindow(), settings.MaxMessagesPerWindow)
	messages := NewMessageXPAggregator(guard, configs, log)
	voice := NewVoiceSessionTracker(settings.PauseOnMute, log)
	dispatcher := NewLevelUpDispatcher(log)
	stats := NewStatsService(db.Level(), cache, settings.LeaderboardCacheTTL(), log)
	flush := NewFlushCoordinator(messages, voice, configs, guard, db.Level(), dispatcher, settings, log)

	return &Engine{
		db:         db,
		settings:   settings,
		configs:    configs,
		guard:      guard,
		messages:   messages,
		voice:      voice,
		dispatcher: dispatcher,
		stats:      stats,
		flush:      flush,
		logger:     log,
	}
}

// Run executes flush cycles until the context is cancelled, then performs
// a final flush so pending aggregates survive shutdown. Blocks; run it on
// its own goroutine.
func (e *Engine) Run(ctx context.Context) {
	e.flush.Run(ctx)
}

// RegisterLevelUpHandler adds a handler for level-up events produced by
// flush cycles.
func (e *Engine) RegisterLevelUpHandler(handler LevelUpHandler) {
	e.dispatcher.Register(handler)
}

// OnMessageActivity records message activity for a member. Returns whether
// the message was accepted for XP.
func (e *Engine) OnMessageActivity(
	ctx context.Context, userID, guildID snowflake.ID,
) (bool, error) {
	return e.messages.OnMessage(ctx, userID, guildID, time.Now())
}

// OnVoiceJoin starts tracking a member's voice session.
func (e *Engine) OnVoiceJoin(userID, guildID snowflake.ID) {
	e.voice.Join(NewMemberKey(guildID, userID), time.Now())
}

// OnVoiceLeave ends a member's voice session. wasInValidChannel reports
// whether the channel they left qualified for XP; if not, the session is
// discarded without paying anything.
func (e *Engine) OnVoiceLeave(userID, guildID snowflake.ID, wasInValidChannel bool) {
	e.voice.Leave(NewMemberKey(guildID, userID), wasInValidChannel, time.Now())
}

// OnVoicePause freezes a member's session clock under the pause-on-mute
// policy. No-op when the policy is disabled.
func (e *Engine) OnVoicePause(userID, guildID snowflake.ID, wasInValidChannel bool) {
	e.voice.Pause(NewMemberKey(guildID, userID), wasInValidChannel, time.Now())
}

// OnVoiceResume restarts a paused session clock.
func (e *Engine) OnVoiceResume(userID, guildID snowflake.ID) {
	e.voice.Resume(NewMemberKey(guildID, userID), time.Now())
}

// VoiceState returns the member's current voice session state.
func (e *Engine) VoiceState(userID, guildID snowflake.ID) VoiceSessionState {
	return e.voice.State(NewMemberKey(guildID, userID))
}

// GetUserStats returns a member's level progress.
func (e *Engine) GetUserStats(
	ctx context.Context, userID, guildID snowflake.ID,
) (*UserStats, error) {
	return e.stats.GetUserStats(ctx, userID, guildID)
}

// GetLeaderboard returns the guild's top members by total XP.
func (e *Engine) GetLeaderboard(
	ctx context.Context, guildID snowflake.ID, limit int,
) ([]*types.UserLevel, error) {
	return e.stats.GetLeaderboard(ctx, guildID, limit)
}

// GetOrCreateGuildConfig returns the guild's leveling settings, creating
// the row with defaults on first access.
func (e *Engine) GetOrCreateGuildConfig(
	ctx context.Context, guildID snowflake.ID,
) (*types.LevelConfig, error) {
	return e.configs.Get(ctx, guildID, time.Now())
}

// UpdateGuildConfig writes the given columns of a guild's settings and
// invalidates the cached copy so the change applies immediately.
func (e *Engine) UpdateGuildConfig(
	ctx context.Context, cfg *types.LevelConfig, columns ...string,
) error {
	if err := e.db.Config().UpdateConfig(ctx, cfg, columns...); err != nil {
		return err
	}

	e.configs.Invalidate(cfg.GuildID)

	return nil
}

// LevelRoles returns the guild's configured level role ranges.
func (e *Engine) LevelRoles(
	ctx context.Context, guildID snowflake.ID,
) ([]*types.LevelRole, error) {
	return e.db.LevelRole().GetLevelRoles(ctx, guildID)
}

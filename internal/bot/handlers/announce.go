package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/ventryx/ventryx/internal/database/types"
	"github.com/ventryx/ventryx/internal/leveling"
	"go.uber.org/zap"
)

// DefaultLevelUpMessage is used when a guild has not customized its
// announcement. Templates may reference {user} and {level}.
const DefaultLevelUpMessage = "🎉 Congratulations {user}, you reached level **{level}**!"

// ConfigProvider supplies a guild's leveling settings.
type ConfigProvider interface {
	GetOrCreateGuildConfig(ctx context.Context, guildID snowflake.ID) (*types.LevelConfig, error)
}

// Announcer posts level-up messages to the guild's configured channel.
// Guilds without a channel configured stay silent.
type Announcer struct {
	client  bot.Client
	configs ConfigProvider
	logger  *zap.Logger
}

// NewAnnouncer creates a level-up announcement handler.
func NewAnnouncer(client bot.Client, configs ConfigProvider, logger *zap.Logger) *Announcer {
	return &Announcer{
		client:  client,
		configs: configs,
		logger:  logger.Named("announce"),
	}
}

// HandleLevelUp renders the guild's announcement template and sends it.
func (h *Announcer) HandleLevelUp(ctx context.Context, event leveling.LevelUpEvent) error {
	cfg, err := h.configs.GetOrCreateGuildConfig(ctx, event.GuildID)
	if err != nil {
		return fmt.Errorf("failed to load guild config: %w", err)
	}

	if cfg.LevelUpChannelID == 0 {
		return nil
	}

	content := RenderLevelUpMessage(cfg.LevelUpMessage, event.UserID, event.NewLevel)

	_, err = h.client.Rest().CreateMessage(cfg.LevelUpChannelID,
		discord.NewMessageCreateBuilder().
			SetContent(content).
			Build(),
		rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to send level-up announcement: %w", err)
	}

	h.logger.Debug("Announced level-up",
		zap.Uint64("userID", uint64(event.UserID)),
		zap.Uint64("guildID", uint64(event.GuildID)),
		zap.Int("newLevel", event.NewLevel))

	return nil
}

// RenderLevelUpMessage fills the {user} and {level} placeholders of an
// announcement template. An empty template falls back to the default.
func RenderLevelUpMessage(template string, userID snowflake.ID, level int) string {
	if template == "" {
		template = DefaultLevelUpMessage
	}

	content := strings.ReplaceAll(template, "{user}", fmt.Sprintf("<@%d>", userID))

	return strings.ReplaceAll(content, "{level}", strconv.Itoa(level))
}

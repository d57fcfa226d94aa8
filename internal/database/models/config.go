package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
	"github.com/ventryx/ventryx/internal/database/dbretry"
	"github.com/ventryx/ventryx/internal/database/types"
	"github.com/ventryx/ventryx/internal/setup/config"
	"go.uber.org/zap"
)

// ConfigModel handles database operations for per-guild leveling settings.
type ConfigModel struct {
	db       *bun.DB
	defaults config.Leveling
	logger   *zap.Logger
}

// NewConfig creates a new config model instance. New guilds receive rows
// seeded from the given defaults.
func NewConfig(db *bun.DB, defaults config.Leveling, logger *zap.Logger) *ConfigModel {
	return &ConfigModel{
		db:       db,
		defaults: defaults,
		logger:   logger.Named("db_config"),
	}
}

// GetOrCreateConfig retrieves a guild's leveling settings, creating a
// default row the first time the guild is seen. Concurrent callers for the
// same new guild may both attempt the insert; the conflict clause makes the
// duplicate harmless.
func (m *ConfigModel) GetOrCreateConfig(
	ctx context.Context, guildID snowflake.ID,
) (*types.LevelConfig, error) {
	cfg, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.LevelConfig, error) {
		var cfg types.LevelConfig

		err := m.db.NewSelect().
			Model(&cfg).
			Where("guild_id = ?", guildID).
			Scan(ctx)
		if err == nil {
			return &cfg, nil
		}

		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("failed to get guild config: %w", err)
		}

		cfg = types.LevelConfig{
			GuildID:              guildID,
			Enabled:              true,
			XPPerMessage:         m.defaults.XPPerMessage,
			XPPerMessageVariance: m.defaults.XPPerMessageVariance,
			XPPerVoiceMinute:     m.defaults.XPPerVoiceMinute,
			MessageCooldownSecs:  m.defaults.MessageCooldownSeconds,
		}

		_, err = m.db.NewInsert().
			Model(&cfg).
			On("CONFLICT (guild_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to create default guild config: %w", err)
		}

		// Re-read in case a concurrent insert won the race.
		err = m.db.NewSelect().
			Model(&cfg).
			Where("guild_id = ?", guildID).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to reload guild config: %w", err)
		}

		return &cfg, nil
	})
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// UpdateConfig writes the given columns of a guild's settings. With no
// columns listed, every field is written.
func (m *ConfigModel) UpdateConfig(
	ctx context.Context, cfg *types.LevelConfig, columns ...string,
) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		query := m.db.NewUpdate().
			Model(cfg).
			WherePK()

		if len(columns) > 0 {
			query = query.Column(columns...)
		}

		_, err := query.Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update guild config: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Updated guild config",
		zap.Uint64("guildID", uint64(cfg.GuildID)),
		zap.Strings("columns", columns))

	return nil
}

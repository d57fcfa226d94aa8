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
	"go.uber.org/zap"
)

// LevelModel handles database operations for per-member experience records.
type LevelModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewLevel creates a new level model instance.
func NewLevel(db *bun.DB, logger *zap.Logger) *LevelModel {
	return &LevelModel{
		db:     db,
		logger: logger.Named("db_level"),
	}
}

// GetUserLevel retrieves the experience record for a member. Returns nil
// without an error when the member has no record yet.
func (m *LevelModel) GetUserLevel(
	ctx context.Context, userID, guildID snowflake.ID,
) (*types.UserLevel, error) {
	record, err := dbretry.Operation(ctx, func(ctx context.Context) (*types.UserLevel, error) {
		var record types.UserLevel

		err := m.db.NewSelect().
			Model(&record).
			Where("user_id = ?", userID).
			Where("guild_id = ?", guildID).
			Scan(ctx)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil //nolint:nilnil // absence is not a failure here
			}

			return nil, fmt.Errorf("failed to get user level: %w", err)
		}

		return &record, nil
	})
	if err != nil {
		return nil, err
	}

	return record, nil
}

// UpsertUserLevel inserts or updates a member's experience record.
func (m *LevelModel) UpsertUserLevel(ctx context.Context, record *types.UserLevel) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(record).
			On("CONFLICT (user_id, guild_id) DO UPDATE").
			Set("total_xp = EXCLUDED.total_xp").
			Set("level = EXCLUDED.level").
			Set("last_message_at = EXCLUDED.last_message_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert user level: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Upserted user level",
		zap.Uint64("userID", uint64(record.UserID)),
		zap.Uint64("guildID", uint64(record.GuildID)),
		zap.Int64("totalXP", record.TotalXP),
		zap.Int("level", record.Level))

	return nil
}

// GetLeaderboard retrieves the top members of a guild ordered by total XP.
func (m *LevelModel) GetLeaderboard(
	ctx context.Context, guildID snowflake.ID, limit int,
) ([]*types.UserLevel, error) {
	records, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.UserLevel, error) {
		var records []*types.UserLevel

		err := m.db.NewSelect().
			Model(&records).
			Where("guild_id = ?", guildID).
			Order("total_xp DESC").
			Limit(limit).
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get leaderboard: %w", err)
		}

		return records, nil
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

package models

import (
	"context"
	"fmt"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
	"github.com/ventryx/ventryx/internal/database/dbretry"
	"github.com/ventryx/ventryx/internal/database/types"
	"go.uber.org/zap"
)

// LevelRoleModel handles database operations for level-role mappings.
type LevelRoleModel struct {
	db     *bun.DB
	logger *zap.Logger
}

// NewLevelRole creates a new level role model instance.
func NewLevelRole(db *bun.DB, logger *zap.Logger) *LevelRoleModel {
	return &LevelRoleModel{
		db:     db,
		logger: logger.Named("db_level_role"),
	}
}

// GetLevelRoles retrieves all level-role mappings for a guild.
func (m *LevelRoleModel) GetLevelRoles(
	ctx context.Context, guildID snowflake.ID,
) ([]*types.LevelRole, error) {
	roles, err := dbretry.Operation(ctx, func(ctx context.Context) ([]*types.LevelRole, error) {
		var roles []*types.LevelRole

		err := m.db.NewSelect().
			Model(&roles).
			Where("guild_id = ?", guildID).
			Order("min_level ASC").
			Scan(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get level roles: %w", err)
		}

		return roles, nil
	})
	if err != nil {
		return nil, err
	}

	return roles, nil
}

// UpsertLevelRole inserts or updates a level-role mapping.
func (m *LevelRoleModel) UpsertLevelRole(ctx context.Context, role *types.LevelRole) error {
	err := dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewInsert().
			Model(role).
			On("CONFLICT (guild_id, role_id) DO UPDATE").
			Set("min_level = EXCLUDED.min_level").
			Set("max_level = EXCLUDED.max_level").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to upsert level role: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Debug("Upserted level role",
		zap.Uint64("guildID", uint64(role.GuildID)),
		zap.Uint64("roleID", uint64(role.RoleID)),
		zap.Int("minLevel", role.MinLevel),
		zap.Int("maxLevel", role.MaxLevel))

	return nil
}

// DeleteLevelRole removes a level-role mapping.
func (m *LevelRoleModel) DeleteLevelRole(
	ctx context.Context, guildID, roleID snowflake.ID,
) error {
	return dbretry.NoResult(ctx, func(ctx context.Context) error {
		_, err := m.db.NewDelete().
			Model((*types.LevelRole)(nil)).
			Where("guild_id = ?", guildID).
			Where("role_id = ?", roleID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete level role: %w", err)
		}

		return nil
	})
}

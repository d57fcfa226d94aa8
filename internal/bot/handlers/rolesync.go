package handlers

import (
	"context"
	"fmt"

	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"github.com/ventryx/ventryx/internal/database/types"
	"github.com/ventryx/ventryx/internal/leveling"
	"go.uber.org/zap"
)

// RoleProvider supplies the level-role ranges configured for a guild.
type RoleProvider interface {
	LevelRoles(ctx context.Context, guildID snowflake.ID) ([]*types.LevelRole, error)
}

// RoleSync grants and revokes guild roles when members cross level
// boundaries. Roles cover a level range, so reaching a new tier can both
// add the new role and strip the outgrown one.
type RoleSync struct {
	client bot.Client
	roles  RoleProvider
	logger *zap.Logger
}

// NewRoleSync creates a role synchronization handler.
func NewRoleSync(client bot.Client, roles RoleProvider, logger *zap.Logger) *RoleSync {
	return &RoleSync{
		client: client,
		roles:  roles,
		logger: logger.Named("role_sync"),
	}
}

// HandleLevelUp reconciles the member's roles against their new level.
// Individual role API failures are logged and skipped so one missing
// permission cannot block the rest of the reconciliation.
func (h *RoleSync) HandleLevelUp(ctx context.Context, event leveling.LevelUpEvent) error {
	roles, err := h.roles.LevelRoles(ctx, event.GuildID)
	if err != nil {
		return fmt.Errorf("failed to load level roles: %w", err)
	}

	for _, role := range roles {
		if role.Covers(event.NewLevel) {
			err = h.client.Rest().AddMemberRole(
				event.GuildID, event.UserID, role.RoleID, rest.WithCtx(ctx))
			if err != nil {
				h.logger.Warn("Failed to add level role",
					zap.Uint64("userID", uint64(event.UserID)),
					zap.Uint64("roleID", uint64(role.RoleID)),
					zap.Error(err))
			}

			continue
		}

		err = h.client.Rest().RemoveMemberRole(
			event.GuildID, event.UserID, role.RoleID, rest.WithCtx(ctx))
		if err != nil {
			h.logger.Warn("Failed to remove level role",
				zap.Uint64("userID", uint64(event.UserID)),
				zap.Uint64("roleID", uint64(role.RoleID)),
				zap.Error(err))
		}
	}

	return nil
}

package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/ventryx/ventryx/internal/database/types"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		models := []any{
			(*types.UserLevel)(nil),
			(*types.LevelConfig)(nil),
			(*types.LevelRole)(nil),
		}

		for _, model := range models {
			_, err := db.NewCreateTable().
				Model(model).
				IfNotExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to create table for %T: %w", model, err)
			}
		}

		// Leaderboard queries scan a guild ordered by total XP.
		_, err := db.NewRaw(
			"CREATE INDEX IF NOT EXISTS idx_user_levels_guild_total_xp " +
				"ON user_levels (guild_id, total_xp DESC)").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create leaderboard index: %w", err)
		}

		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		for _, table := range []string{"level_roles", "level_configs", "user_levels"} {
			_, err := db.NewDropTable().
				TableExpr(table).
				IfExists().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to drop table %s: %w", table, err)
			}
		}

		return nil
	})
}

package types

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/uptrace/bun"
)

// UserLevel is the canonical per-member experience record. It is mutated
// only by the flush coordinator; everything else reads it.
type UserLevel struct {
	bun.BaseModel `bun:"table:user_levels"`

	UserID        snowflake.ID `bun:",pk"`
	GuildID       snowflake.ID `bun:",pk"`
	TotalXP       int64        `bun:"total_xp,notnull,default:0"`
	Level         int          `bun:",notnull,default:1"`
	LastMessageAt time.Time    `bun:",nullzero"`
}

// LevelConfig stores per-guild leveling settings. A row is created lazily
// with defaults the first time a guild is seen.
type LevelConfig struct {
	bun.BaseModel `bun:"table:level_configs"`

	GuildID              snowflake.ID `bun:",pk"`
	Enabled              bool         `bun:",notnull,default:true"`
	XPPerMessage         int          `bun:"xp_per_message,notnull"`
	XPPerMessageVariance int          `bun:"xp_per_message_variance,notnull"`
	XPPerVoiceMinute     int          `bun:"xp_per_voice_minute,notnull"`
	MessageCooldownSecs  int          `bun:"message_cooldown_seconds,notnull"`

	// Notification routing used by the announcement collaborator.
	LevelUpChannelID snowflake.ID `bun:",nullzero"`
	LevelUpMessage   string       `bun:",notnull,default:''"`
}

// MessageCooldown returns the per-guild message cooldown as a duration.
func (c *LevelConfig) MessageCooldown() time.Duration {
	return time.Duration(c.MessageCooldownSecs) * time.Second
}

// LevelRole maps a level range to a guild role. The role-sync collaborator
// assigns the role while the member's level is inside [MinLevel, MaxLevel].
type LevelRole struct {
	bun.BaseModel `bun:"table:level_roles"`

	GuildID  snowflake.ID `bun:",pk"`
	RoleID   snowflake.ID `bun:",pk"`
	MinLevel int          `bun:",notnull"`
	MaxLevel int          `bun:",notnull"`
}

// Covers reports whether the given level falls inside the role's range.
func (r *LevelRole) Covers(level int) bool {
	return level >= r.MinLevel && level <= r.MaxLevel
}

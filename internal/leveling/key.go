package leveling

import (
	"fmt"

	"github.com/disgoorg/snowflake/v2"
)

// MemberKey identifies a user within a guild. All pending aggregation state
// is keyed by this value; using a struct key avoids the collision and
// formatting pitfalls of concatenated string keys.
type MemberKey struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
}

// NewMemberKey creates a key for the given guild and user.
func NewMemberKey(guildID, userID snowflake.ID) MemberKey {
	return MemberKey{GuildID: guildID, UserID: userID}
}

// String returns a human-readable form used in log fields.
func (k MemberKey) String() string {
	return fmt.Sprintf("%d/%d", k.GuildID, k.UserID)
}

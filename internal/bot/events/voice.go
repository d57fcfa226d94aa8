package events

import (
	"context"
	"sync"

	"github.com/disgoorg/disgo/discord"
	disgoevents "github.com/disgoorg/disgo/events"
	"github.com/disgoorg/snowflake/v2"
	"github.com/ventryx/ventryx/internal/database/types"
	"go.uber.org/zap"
)

// VoiceEngine is the slice of the leveling engine the voice handler drives.
type VoiceEngine interface {
	OnVoiceJoin(userID, guildID snowflake.ID)
	OnVoiceLeave(userID, guildID snowflake.ID, wasInValidChannel bool)
	OnVoicePause(userID, guildID snowflake.ID, wasInValidChannel bool)
	OnVoiceResume(userID, guildID snowflake.ID)
	GetOrCreateGuildConfig(ctx context.Context, guildID snowflake.ID) (*types.LevelConfig, error)
}

type channelKey struct {
	GuildID   snowflake.ID
	ChannelID snowflake.ID
}

// VoiceHandler translates gateway voice state updates into session calls on
// the leveling engine. It keeps its own per-channel occupancy counts so the
// minimum-member rule can be applied without a full voice state cache:
// sessions only run while a channel holds enough non-bot participants, and
// crossing that threshold starts or ends sessions for everyone present.
type VoiceHandler struct {
	engine     VoiceEngine
	minMembers int
	logger     *zap.Logger

	mu        sync.Mutex
	occupants map[channelKey]map[snowflake.ID]struct{}
}

// NewVoiceHandler creates a voice event handler enforcing the given
// minimum participant count.
func NewVoiceHandler(engine VoiceEngine, minMembers int, logger *zap.Logger) *VoiceHandler {
	return &VoiceHandler{
		engine:     engine,
		minMembers: minMembers,
		logger:     logger.Named("voice_events"),
		occupants:  make(map[channelKey]map[snowflake.ID]struct{}),
	}
}

// OnGuildVoiceStateUpdate routes one voice state transition. Bots are
// tracked nowhere: they neither earn XP nor count toward the minimum.
func (h *VoiceHandler) OnGuildVoiceStateUpdate(event *disgoevents.GuildVoiceStateUpdate) {
	if event.Member.User.Bot {
		return
	}

	userID := event.VoiceState.UserID
	guildID := event.VoiceState.GuildID
	oldChannel := event.OldVoiceState.ChannelID
	newChannel := event.VoiceState.ChannelID

	enabled := h.levelingEnabled(guildID)

	switch {
	case oldChannel == nil && newChannel != nil:
		h.handleJoin(guildID, *newChannel, userID, enabled)

		if muted(event.VoiceState) {
			h.engine.OnVoicePause(userID, guildID, true)
		}
	case oldChannel != nil && newChannel == nil:
		h.handleLeave(guildID, *oldChannel, userID)
	case oldChannel != nil && newChannel != nil && *oldChannel != *newChannel:
		// A channel switch ends the old session and starts a fresh one so
		// validity is judged against the new channel's occupancy.
		h.handleLeave(guildID, *oldChannel, userID)
		h.handleJoin(guildID, *newChannel, userID, enabled)
	case oldChannel != nil && newChannel != nil:
		h.handleMuteChange(event, guildID, *newChannel, userID)
	}
}

// handleJoin records the member in the channel and starts sessions once the
// minimum is met. The member that completes the minimum also activates
// everyone who was already waiting in the channel.
func (h *VoiceHandler) handleJoin(
	guildID, channelID, userID snowflake.ID, enabled bool,
) {
	key := channelKey{GuildID: guildID, ChannelID: channelID}

	h.mu.Lock()

	set, ok := h.occupants[key]
	if !ok {
		set = make(map[snowflake.ID]struct{})
		h.occupants[key] = set
	}

	set[userID] = struct{}{}
	count := len(set)

	others := make([]snowflake.ID, 0, count-1)
	for member := range set {
		if member != userID {
			others = append(others, member)
		}
	}

	h.mu.Unlock()

	if !enabled || count < h.minMembers {
		return
	}

	h.engine.OnVoiceJoin(userID, guildID)

	h.logger.Debug("Started voice session",
		zap.Uint64("userID", uint64(userID)),
		zap.Uint64("guildID", uint64(guildID)),
		zap.Int("participants", count))

	if count == h.minMembers {
		for _, member := range others {
			h.engine.OnVoiceJoin(member, guildID)
		}
	}
}

// handleLeave removes the member from the channel and ends their session.
// The session is valid when the channel met the minimum while they were in
// it. Dropping below the minimum ends the remaining members' sessions too;
// their time so far still counts.
func (h *VoiceHandler) handleLeave(guildID, channelID, userID snowflake.ID) {
	key := channelKey{GuildID: guildID, ChannelID: channelID}

	h.mu.Lock()

	set := h.occupants[key]
	countBefore := len(set)

	delete(set, userID)

	remaining := make([]snowflake.ID, 0, len(set))
	for member := range set {
		remaining = append(remaining, member)
	}

	if len(set) == 0 {
		delete(h.occupants, key)
	}

	h.mu.Unlock()

	wasValid := countBefore >= h.minMembers
	h.engine.OnVoiceLeave(userID, guildID, wasValid)

	h.logger.Debug("Ended voice session",
		zap.Uint64("userID", uint64(userID)),
		zap.Uint64("guildID", uint64(guildID)),
		zap.Bool("valid", wasValid))

	if len(remaining) < h.minMembers {
		for _, member := range remaining {
			h.engine.OnVoiceLeave(member, guildID, true)
		}
	}
}

// handleMuteChange forwards mute transitions within the same channel. The
// engine ignores these unless the pause-on-mute policy is enabled.
func (h *VoiceHandler) handleMuteChange(
	event *disgoevents.GuildVoiceStateUpdate, guildID, channelID, userID snowflake.ID,
) {
	wasMuted := muted(event.OldVoiceState)
	nowMuted := muted(event.VoiceState)

	if wasMuted == nowMuted {
		return
	}

	if nowMuted {
		h.mu.Lock()
		valid := len(h.occupants[channelKey{GuildID: guildID, ChannelID: channelID}]) >= h.minMembers
		h.mu.Unlock()

		h.engine.OnVoicePause(userID, guildID, valid)

		return
	}

	h.engine.OnVoiceResume(userID, guildID)
}

// levelingEnabled reports whether the guild has leveling turned on. A
// config read failure counts as enabled so occupancy-driven session ends
// are never skipped; the flush path re-reads the config before paying.
func (h *VoiceHandler) levelingEnabled(guildID snowflake.ID) bool {
	ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
	defer cancel()

	cfg, err := h.engine.GetOrCreateGuildConfig(ctx, guildID)
	if err != nil {
		h.logger.Warn("Failed to load guild config for voice event",
			zap.Uint64("guildID", uint64(guildID)),
			zap.Error(err))

		return true
	}

	return cfg.Enabled
}

func muted(state discord.VoiceState) bool {
	return state.SelfMute || state.SelfDeaf || state.GuildMute || state.GuildDeaf
}

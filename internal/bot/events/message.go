package events

import (
	"context"
	"time"

	disgoevents "github.com/disgoorg/disgo/events"
	"github.com/ventryx/ventryx/internal/leveling"
	"go.uber.org/zap"
)

// messageTimeout bounds the config lookup a message event can trigger.
const messageTimeout = 5 * time.Second

// MessageHandler feeds guild message activity into the leveling engine.
type MessageHandler struct {
	engine *leveling.Engine
	logger *zap.Logger
}

// NewMessageHandler creates a message event handler.
func NewMessageHandler(engine *leveling.Engine, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{
		engine: engine,
		logger: logger.Named("message_events"),
	}
}

// OnMessageCreate records XP-eligible message activity. Bots, webhooks and
// DMs never earn XP. Processing happens off the gateway goroutine so a slow
// config read cannot stall event dispatch.
func (h *MessageHandler) OnMessageCreate(event *disgoevents.MessageCreate) {
	if event.Message.Author.Bot || event.Message.WebhookID != nil || event.GuildID == nil {
		return
	}

	userID := event.Message.Author.ID
	guildID := *event.GuildID

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), messageTimeout)
		defer cancel()

		if _, err := h.engine.OnMessageActivity(ctx, userID, guildID); err != nil {
			h.logger.Warn("Failed to record message activity",
				zap.Uint64("userID", uint64(userID)),
				zap.Uint64("guildID", uint64(guildID)),
				zap.Error(err))
		}
	}()
}

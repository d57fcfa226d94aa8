package leveling

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"
)

// LevelUpEvent is emitted when a flush cycle moves a member across a level
// boundary. The engine's responsibility ends here; role assignment and
// announcements are handled by registered collaborators.
type LevelUpEvent struct {
	UserID   snowflake.ID
	GuildID  snowflake.ID
	NewLevel int
}

// LevelUpHandler consumes level-up events. Handlers must tolerate
// at-least-once delivery: a flush retried after a partial failure can
// produce the same event twice.
type LevelUpHandler interface {
	HandleLevelUp(ctx context.Context, event LevelUpEvent) error
}

// LevelUpDispatcher fans level-up events out to registered handlers.
// Handler failures are logged and never propagate back into the flush
// cycle, keeping the engine testable without any platform dependency.
type LevelUpDispatcher struct {
	mu       sync.RWMutex
	handlers []LevelUpHandler
	logger   *zap.Logger
}

// NewLevelUpDispatcher creates an empty dispatcher.
func NewLevelUpDispatcher(logger *zap.Logger) *LevelUpDispatcher {
	return &LevelUpDispatcher{
		logger: logger.Named("levelup_dispatch"),
	}
}

// Register adds a handler. Handlers are invoked in registration order.
func (d *LevelUpDispatcher) Register(handler LevelUpHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.handlers = append(d.handlers, handler)
}

// Dispatch delivers each event to every registered handler sequentially.
func (d *LevelUpDispatcher) Dispatch(ctx context.Context, events []LevelUpEvent) {
	if len(events) == 0 {
		return
	}

	d.mu.RLock()
	handlers := d.handlers
	d.mu.RUnlock()

	for _, event := range events {
		for _, handler := range handlers {
			if err := handler.HandleLevelUp(ctx, event); err != nil {
				d.logger.Error("Level-up handler failed",
					zap.Uint64("userID", uint64(event.UserID)),
					zap.Uint64("guildID", uint64(event.GuildID)),
					zap.Int("newLevel", event.NewLevel),
					zap.Error(err))
			}
		}
	}
}

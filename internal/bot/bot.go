package bot

import (
	"context"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	disgoevents "github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"go.uber.org/zap"

	"github.com/ventryx/ventryx/internal/bot/events"
	"github.com/ventryx/ventryx/internal/bot/handlers"
	"github.com/ventryx/ventryx/internal/leveling"
	"github.com/ventryx/ventryx/internal/setup/config"
)

// Bot connects the leveling engine to the Discord gateway. It owns the
// gateway client, the event handlers feeding activity into the engine, and
// the level-up handlers acting on the engine's events.
type Bot struct {
	client bot.Client
	engine *leveling.Engine
	logger *zap.Logger
}

// New builds the gateway client and wires the event handlers. The engine's
// level-up dispatcher gains the role sync and announcement handlers here,
// once the gateway client they need exists.
func New(
	token string,
	engine *leveling.Engine,
	settings config.Leveling,
	logger *zap.Logger,
) (*Bot, error) {
	log := logger.Named("bot")

	messageHandler := events.NewMessageHandler(engine, log)
	voiceHandler := events.NewVoiceHandler(engine, settings.MinVoiceMembers, log)

	client, err := disgo.New(token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMessages,
				gateway.IntentGuildVoiceStates,
			),
		),
		bot.WithEventListeners(&disgoevents.ListenerAdapter{
			OnMessageCreate:         messageHandler.OnMessageCreate,
			OnGuildVoiceStateUpdate: voiceHandler.OnGuildVoiceStateUpdate,
		}),
	)
	if err != nil {
		return nil, err
	}

	engine.RegisterLevelUpHandler(handlers.NewRoleSync(client, engine, log))
	engine.RegisterLevelUpHandler(handlers.NewAnnouncer(client, engine, log))

	return &Bot{
		client: client,
		engine: engine,
		logger: log,
	}, nil
}

// Start opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Starting bot")
	return b.client.OpenGateway(ctx)
}

// Close gracefully shuts down the gateway connection.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")
	b.client.Close(ctx)
}

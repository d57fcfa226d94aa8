package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
	"github.com/ventryx/ventryx/internal/bot"
	"github.com/ventryx/ventryx/internal/setup"
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:   "ventryx",
		Usage:  "Start the Ventryx community bot",
		Action: runBot,
	}

	return app.Run(context.Background(), os.Args)
}

func runBot(ctx context.Context, _ *cli.Command) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := setup.InitializeApp(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer app.Cleanup()

	discordBot, err := bot.New(
		app.Config.Discord.Token, app.Engine, app.Config.Leveling, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to create bot: %w", err)
	}

	// The engine flushes pending XP on an interval until shutdown, then runs
	// one final flush before the goroutine exits.
	engineDone := make(chan struct{})

	go func() {
		defer close(engineDone)
		app.Engine.Run(ctx)
	}()

	if err := discordBot.Start(ctx); err != nil {
		stop()
		<-engineDone

		return fmt.Errorf("failed to start bot: %w", err)
	}

	app.Logger.Info("Bot started, waiting for interrupt signal")
	<-ctx.Done()

	// Close the gateway first so no new activity arrives while the final
	// flush drains the aggregators.
	discordBot.Close(context.Background())
	<-engineDone

	return nil
}

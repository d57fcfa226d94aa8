package setup

import (
	"context"
	"log"

	"github.com/redis/rueidis"
	"github.com/ventryx/ventryx/internal/database"
	"github.com/ventryx/ventryx/internal/leveling"
	"github.com/ventryx/ventryx/internal/redis"
	"github.com/ventryx/ventryx/internal/setup/config"
	"github.com/ventryx/ventryx/internal/setup/logging"
	"go.uber.org/zap"
)

// App bundles the core dependencies of the bot process. Each field is a
// subsystem that needs initialization and cleanup.
type App struct {
	Config       *config.Config
	Logger       *zap.Logger
	DB           database.Client
	RedisManager *redis.Manager
	CacheClient  rueidis.Client
	Engine       *leveling.Engine
}

// InitializeApp bootstraps all dependencies in order: configuration,
// logging, database (with migrations), Redis and the leveling engine.
func InitializeApp(ctx context.Context) (*App, error) {
	cfg, configFile, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Debug.LogLevel)
	if err != nil {
		return nil, err
	}

	logger.Info("Loaded configuration", zap.String("file", configFile))

	db, err := database.NewConnection(
		ctx, &cfg.PostgreSQL, cfg.Leveling, logger.Named("database"), true)
	if err != nil {
		return nil, err
	}

	redisManager := redis.NewManager(&cfg.Redis, logger)

	// The leaderboard cache is an optimization; a missing Redis is not fatal.
	cacheClient, err := redisManager.GetClient(redis.CacheDBIndex)
	if err != nil {
		logger.Warn("Redis unavailable, running without leaderboard cache", zap.Error(err))
		cacheClient = nil
	}

	engine := leveling.NewEngine(db.Model(), cacheClient, cfg.Leveling, logger)

	return &App{
		Config:       cfg,
		Logger:       logger,
		DB:           db,
		RedisManager: redisManager,
		CacheClient:  cacheClient,
		Engine:       engine,
	}, nil
}

// Cleanup shuts components down in reverse initialization order. Errors are
// logged but never abort the remaining cleanup steps.
func (a *App) Cleanup() {
	if err := a.Logger.Sync(); err != nil {
		log.Printf("Failed to sync logger: %v", err)
	}

	if err := a.DB.Close(); err != nil {
		log.Printf("Failed to close database connection: %v", err)
	}

	a.RedisManager.Close()
}

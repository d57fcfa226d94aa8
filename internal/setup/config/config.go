package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

var (
	ErrConfigFileNotFound    = errors.New("could not find config file in any config path")
	ErrConfigVersionMissing  = errors.New("config file is missing version field")
	ErrConfigVersionMismatch = errors.New("config file version mismatch")
)

// CurrentVersion of the bot config file.
const CurrentVersion = 1

// Config represents the entire application configuration.
type Config struct {
	// Version of the config file.
	Version    int        `koanf:"version"`
	Debug      Debug      `koanf:"debug"`
	PostgreSQL PostgreSQL `koanf:"postgresql"`
	Redis      Redis      `koanf:"redis"`
	Discord    Discord    `koanf:"discord"`
	Leveling   Leveling   `koanf:"leveling"`
}

// Debug contains debug-related configuration.
type Debug struct {
	// Log level (debug, info, warn, error).
	LogLevel string `koanf:"log_level"`
}

// PostgreSQL contains database connection configuration.
type PostgreSQL struct {
	// Database hostname.
	Host string `koanf:"host"`
	// Database port.
	Port int `koanf:"port"`
	// Database username.
	User string `koanf:"user"`
	// Database password.
	Password string `koanf:"password"`
	// Database name.
	DBName string `koanf:"db_name"`
	// Maximum open connections.
	MaxOpenConns int `koanf:"max_open_conns"`
	// Maximum idle connections.
	MaxIdleConns int `koanf:"max_idle_conns"`
	// Connection lifetime in minutes.
	MaxLifetime int `koanf:"max_lifetime"`
	// Idle timeout in minutes.
	MaxIdleTime int `koanf:"max_idle_time"`
}

// Redis contains Redis connection configuration.
type Redis struct {
	// Redis hostname.
	Host string `koanf:"host"`
	// Redis port.
	Port int `koanf:"port"`
	// Redis username.
	Username string `koanf:"username"`
	// Redis password.
	Password string `koanf:"password"`
}

// Discord contains gateway configuration.
type Discord struct {
	// Bot token used for the gateway connection.
	Token string `koanf:"token"`
}

// Leveling contains the tunables of the experience aggregation engine.
// Per-guild values stored in the database take precedence where they exist;
// these are the process-wide defaults and limits.
type Leveling struct {
	// Seconds between flush cycles.
	BatchUpdateIntervalSeconds int `koanf:"batch_update_interval_seconds"`
	// Deadline for a single flush cycle in seconds. Must stay below the
	// flush interval so a stalled store cannot delay the next cycle.
	FlushTimeoutSeconds int `koanf:"flush_timeout_seconds"`
	// Default XP granted per accepted message.
	XPPerMessage int `koanf:"xp_per_message"`
	// Default random variance applied to message XP.
	XPPerMessageVariance int `koanf:"xp_per_message_variance"`
	// Default XP granted per minute of voice presence.
	XPPerVoiceMinute int `koanf:"xp_per_voice_minute"`
	// Default seconds a user must wait between counted messages.
	MessageCooldownSeconds int `koanf:"message_cooldown_seconds"`
	// Length of the message spam window in seconds.
	SpamWindowSeconds int `koanf:"spam_window_seconds"`
	// Messages allowed inside the spam window before rejection.
	MaxMessagesPerWindow int `koanf:"max_messages_per_window"`
	// Minimum non-bot participants before voice sessions accrue XP.
	MinVoiceMembers int `koanf:"min_voice_members"`
	// Cap on how many minutes of a single voice session earn XP.
	MaxVoiceSessionMinutes int `koanf:"max_voice_session_minutes"`
	// When true, muted or deafened users stop accruing voice XP until
	// they unmute. When false, mute state is ignored.
	PauseOnMute bool `koanf:"pause_on_mute"`
	// Seconds a cached guild config stays valid.
	ConfigCacheSeconds int `koanf:"config_cache_seconds"`
	// Seconds a cached leaderboard page stays valid.
	LeaderboardCacheSeconds int `koanf:"leaderboard_cache_seconds"`
}

// BatchUpdateInterval returns the flush interval as a duration.
func (l *Leveling) BatchUpdateInterval() time.Duration {
	return time.Duration(l.BatchUpdateIntervalSeconds) * time.Second
}

// FlushTimeout returns the per-cycle flush deadline as a duration.
func (l *Leveling) FlushTimeout() time.Duration {
	return time.Duration(l.FlushTimeoutSeconds) * time.Second
}

// SpamWindow returns the spam window as a duration.
func (l *Leveling) SpamWindow() time.Duration {
	return time.Duration(l.SpamWindowSeconds) * time.Second
}

// ConfigCacheTTL returns the guild config cache TTL as a duration.
func (l *Leveling) ConfigCacheTTL() time.Duration {
	return time.Duration(l.ConfigCacheSeconds) * time.Second
}

// LeaderboardCacheTTL returns the leaderboard cache TTL as a duration.
func (l *Leveling) LeaderboardCacheTTL() time.Duration {
	return time.Duration(l.LeaderboardCacheSeconds) * time.Second
}

// MaxVoiceSession returns the per-session accrual cap as a duration.
func (l *Leveling) MaxVoiceSession() time.Duration {
	return time.Duration(l.MaxVoiceSessionMinutes) * time.Minute
}

// DefaultLeveling returns the stock engine tunables. Values left at zero in
// the config file fall back to these.
func DefaultLeveling() Leveling {
	return Leveling{
		BatchUpdateIntervalSeconds: 30,
		FlushTimeoutSeconds:        25,
		XPPerMessage:               15,
		XPPerMessageVariance:       10,
		XPPerVoiceMinute:           5,
		MessageCooldownSeconds:     60,
		SpamWindowSeconds:          60,
		MaxMessagesPerWindow:       5,
		MinVoiceMembers:            2,
		MaxVoiceSessionMinutes:     360,
		ConfigCacheSeconds:         300,
		LeaderboardCacheSeconds:    30,
	}
}

// LoadConfig loads the bot configuration from the first bot.toml found in
// the search paths and returns it along with the path that was used.
func LoadConfig() (*Config, string, error) {
	k := koanf.New(".")

	// Get user's home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, "", fmt.Errorf("failed to get home directory: %w", err)
	}

	// List search paths
	configPaths := []string{
		".ventryx",
		homeDir + "/.ventryx/config",
		"/etc/ventryx/config",
		"/app/config",
		"config",
		".",
	}

	var usedConfigPath string

	for _, path := range configPaths {
		configPath := fmt.Sprintf("%s/bot.toml", path)
		if err := k.Load(file.Provider(configPath), toml.Parser()); err == nil {
			usedConfigPath = path
			break
		}
	}

	if usedConfigPath == "" {
		return nil, "", fmt.Errorf("%w: bot.toml", ErrConfigFileNotFound)
	}

	var config Config
	if err := k.Unmarshal("", &config); err != nil {
		return nil, "", fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := checkConfigVersion(config.Version); err != nil {
		return nil, "", err
	}

	applyLevelingDefaults(&config.Leveling)

	return &config, usedConfigPath, nil
}

// checkConfigVersion checks if the config file version is correct.
func checkConfigVersion(current int) error {
	if current == 0 {
		return fmt.Errorf("%w: bot.toml", ErrConfigVersionMissing)
	}

	if current != CurrentVersion {
		return fmt.Errorf("%w: bot.toml (got: %d, expected: %d)",
			ErrConfigVersionMismatch, current, CurrentVersion)
	}

	return nil
}

// applyLevelingDefaults fills unset engine tunables with the stock values.
// PauseOnMute is a plain bool and keeps whatever the file says; its zero
// value (muted users keep accruing) is the intended default.
func applyLevelingDefaults(l *Leveling) {
	defaults := DefaultLeveling()

	if l.BatchUpdateIntervalSeconds <= 0 {
		l.BatchUpdateIntervalSeconds = defaults.BatchUpdateIntervalSeconds
	}

	if l.FlushTimeoutSeconds <= 0 {
		l.FlushTimeoutSeconds = defaults.FlushTimeoutSeconds
	}

	if l.XPPerMessage <= 0 {
		l.XPPerMessage = defaults.XPPerMessage
	}

	if l.XPPerMessageVariance < 0 {
		l.XPPerMessageVariance = defaults.XPPerMessageVariance
	}

	if l.XPPerVoiceMinute <= 0 {
		l.XPPerVoiceMinute = defaults.XPPerVoiceMinute
	}

	if l.MessageCooldownSeconds <= 0 {
		l.MessageCooldownSeconds = defaults.MessageCooldownSeconds
	}

	if l.SpamWindowSeconds <= 0 {
		l.SpamWindowSeconds = defaults.SpamWindowSeconds
	}

	if l.MaxMessagesPerWindow <= 0 {
		l.MaxMessagesPerWindow = defaults.MaxMessagesPerWindow
	}

	if l.MinVoiceMembers <= 0 {
		l.MinVoiceMembers = defaults.MinVoiceMembers
	}

	if l.MaxVoiceSessionMinutes <= 0 {
		l.MaxVoiceSessionMinutes = defaults.MaxVoiceSessionMinutes
	}

	if l.ConfigCacheSeconds <= 0 {
		l.ConfigCacheSeconds = defaults.ConfigCacheSeconds
	}

	if l.LeaderboardCacheSeconds <= 0 {
		l.LeaderboardCacheSeconds = defaults.LeaderboardCacheSeconds
	}
}

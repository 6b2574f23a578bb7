package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	apperrors "github.com/gmsas95/meditime/internal/errors"
)

// Config holds all configuration for MediTime
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Reminders RemindersConfig `mapstructure:"reminders"`
	Push      PushConfig      `mapstructure:"push"`
	Log       LogConfig       `mapstructure:"log"`

	// path of the config file actually read, empty when running on defaults
	file string
}

// ServerConfig holds the local HTTP API settings
type ServerConfig struct {
	Address      string   `mapstructure:"address"`
	Port         int      `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout"`
	WriteTimeout int      `mapstructure:"write_timeout"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// StorageConfig holds persistence settings
type StorageConfig struct {
	Backend      string        `mapstructure:"backend"` // badger or sqlite
	DataDir      string        `mapstructure:"data_dir"`
	SQLitePath   string        `mapstructure:"sqlite_path"`
	BadgerPath   string        `mapstructure:"badger_path"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// RemindersConfig holds the reminder engine settings
type RemindersConfig struct {
	RepeatInterval  time.Duration `mapstructure:"repeat_interval"`
	RespectCalendar bool          `mapstructure:"respect_calendar"`
	RolloverCron    string        `mapstructure:"rollover_cron"`
	Title           string        `mapstructure:"title"`
	Speech          bool          `mapstructure:"speech"`
	SpeechVoice     string        `mapstructure:"speech_voice"`
	Tone            bool          `mapstructure:"tone"`
	Desktop         bool          `mapstructure:"desktop"`
	DoseWindowStart string        `mapstructure:"dose_window_start"`
	DoseWindowEnd   string        `mapstructure:"dose_window_end"`
}

// PushConfig holds remote push notification channels
type PushConfig struct {
	Telegram      TelegramConfig `mapstructure:"telegram"`
	Discord       DiscordConfig  `mapstructure:"discord"`
	Breaker       BreakerConfig  `mapstructure:"breaker"`
	RatePerMinute int            `mapstructure:"rate_per_minute"`
}

// TelegramConfig holds Telegram bot settings
type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token"`
	ChatID   int64  `mapstructure:"chat_id"`
}

// DiscordConfig holds Discord bot settings
type DiscordConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Token     string `mapstructure:"token"`
	ChannelID string `mapstructure:"channel_id"`
}

// BreakerConfig tunes the circuit breaker around push channels
type BreakerConfig struct {
	MaxFailures int           `mapstructure:"max_failures"`
	OpenTimeout time.Duration `mapstructure:"open_timeout"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // console or json
}

// Load loads configuration from file, env, and defaults
func Load(configPath, dataDir string) (*Config, error) {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return nil, err
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.file = v.ConfigFileUsed()
	return cfg, nil
}

func newViper(configPath, dataDir string) (*viper.Viper, error) {
	v := viper.New()

	setDefaults(v)

	if dataDir == "" {
		dataDir = GetEnvDefault("MEDITIME_STORAGE_DATA_DIR", getDefaultDataDir())
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConfigInvalid.Code, "failed to create data directory")
	}

	v.SetDefault("storage.data_dir", dataDir)
	v.SetDefault("storage.sqlite_path", filepath.Join(dataDir, "meditime.db"))
	v.SetDefault("storage.badger_path", filepath.Join(dataDir, "badger"))

	if configPath == "" {
		configPath = filepath.Join(dataDir, "meditime.yaml")
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrConfigInvalid.Code, "failed to read config")
		}
	}

	// Environment variables (MEDITIME_SERVER_PORT, MEDITIME_PUSH_TELEGRAM_BOT_TOKEN, etc.)
	v.SetEnvPrefix("MEDITIME")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrConfigInvalid.Code, "failed to unmarshal config")
	}

	loadEnvOverrides(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1")
	v.SetDefault("server.port", 8787)
	v.SetDefault("server.read_timeout", 30)
	v.SetDefault("server.write_timeout", 30)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("storage.backend", "badger")
	v.SetDefault("storage.poll_interval", 5*time.Second)

	v.SetDefault("reminders.repeat_interval", 10*time.Second)
	v.SetDefault("reminders.respect_calendar", false)
	v.SetDefault("reminders.rollover_cron", "0 0 * * *")
	v.SetDefault("reminders.title", "MediTime - Medication Reminder")
	v.SetDefault("reminders.speech", true)
	v.SetDefault("reminders.speech_voice", "en-us")
	v.SetDefault("reminders.tone", true)
	v.SetDefault("reminders.desktop", true)
	v.SetDefault("reminders.dose_window_start", "08:00")
	v.SetDefault("reminders.dose_window_end", "22:00")

	v.SetDefault("push.breaker.max_failures", 3)
	v.SetDefault("push.breaker.open_timeout", time.Minute)
	v.SetDefault("push.rate_per_minute", 20)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func getDefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "meditime")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}

	return filepath.Join(home, ".local", "share", "meditime")
}

// loadEnvOverrides resolves the push secrets through their short aliases
// (TELEGRAM_BOT_TOKEN, DISCORD_BOT_TOKEN) which AutomaticEnv does not know
func loadEnvOverrides(cfg *Config) {
	if token := ResolveEnvWithAliases("MEDITIME_PUSH_TELEGRAM_BOT_TOKEN"); token != "" {
		cfg.Push.Telegram.BotToken = token
	}
	if chat := ResolveEnvWithAliases("MEDITIME_PUSH_TELEGRAM_CHAT_ID"); chat != "" {
		if id, err := strconv.ParseInt(chat, 10, 64); err == nil {
			cfg.Push.Telegram.ChatID = id
		}
	}
	if token := ResolveEnvWithAliases("MEDITIME_PUSH_DISCORD_TOKEN"); token != "" {
		cfg.Push.Discord.Token = token
	}
	if channel := ResolveEnvWithAliases("MEDITIME_PUSH_DISCORD_CHANNEL_ID"); channel != "" {
		cfg.Push.Discord.ChannelID = channel
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "badger", "sqlite":
	default:
		return apperrors.New(apperrors.ErrConfigInvalid.Code,
			fmt.Sprintf("storage.backend must be badger or sqlite, got %q", cfg.Storage.Backend))
	}

	if cfg.Reminders.RepeatInterval <= 0 {
		return apperrors.New(apperrors.ErrConfigInvalid.Code, "reminders.repeat_interval must be positive")
	}

	if cfg.Push.Telegram.Enabled && (cfg.Push.Telegram.BotToken == "" || cfg.Push.Telegram.ChatID == 0) {
		return apperrors.New(apperrors.ErrConfigInvalid.Code, "push.telegram requires bot_token and chat_id")
	}
	if cfg.Push.Discord.Enabled && (cfg.Push.Discord.Token == "" || cfg.Push.Discord.ChannelID == "") {
		return apperrors.New(apperrors.ErrConfigInvalid.Code, "push.discord requires token and channel_id")
	}

	if cfg.Push.Breaker.MaxFailures <= 0 {
		cfg.Push.Breaker.MaxFailures = 3
	}

	return nil
}

// File returns the config file that was read, if any
func (c *Config) File() string {
	return c.file
}

// Addr returns the API listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// Watch re-reads the config file on every change and hands the decoded
// result to onChange. Invalid edits are logged and skipped.
func Watch(configPath, dataDir string, logger *zap.Logger, onChange func(*Config)) error {
	v, err := newViper(configPath, dataDir)
	if err != nil {
		return err
	}
	if v.ConfigFileUsed() == "" {
		return apperrors.ErrConfigNotFound
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := decode(v)
		if err != nil {
			logger.Warn("Ignoring invalid config change", zap.String("file", e.Name), zap.Error(err))
			return
		}
		cfg.file = e.Name
		logger.Info("Config reloaded", zap.String("file", e.Name))
		onChange(cfg)
	})
	v.WatchConfig()
	return nil
}

package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/alert"
	"github.com/gmsas95/meditime/internal/api"
	"github.com/gmsas95/meditime/internal/channels/discord"
	"github.com/gmsas95/meditime/internal/channels/telegram"
	"github.com/gmsas95/meditime/internal/config"
	"github.com/gmsas95/meditime/internal/cron"
	apperrors "github.com/gmsas95/meditime/internal/errors"
	"github.com/gmsas95/meditime/internal/metrics"
	"github.com/gmsas95/meditime/internal/reminder"
	"github.com/gmsas95/meditime/internal/store"
)

// Sink names registered on App.Sinks
const (
	SinkLog      = "log"
	SinkSpeech   = "speech"
	SinkTone     = "tone"
	SinkDesktop  = "desktop"
	SinkBrowser  = "browser"
	SinkTelegram = "telegram"
	SinkDiscord  = "discord"
)

// App is the long-running daemon
type App struct {
	Config      *config.Config
	Store       store.ScheduleStore
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	Sinks       *alert.Multi
	Hub         *api.Hub
	Scheduler   *reminder.Scheduler
	Service     *Service
	TelegramBot *telegram.Bot
	DiscordBot  *discord.Bot
	CronRunner  *cron.Runner
	Server      *api.Server
	Version     string
}

func New(cfg *config.Config, st store.ScheduleStore, logger *zap.Logger, version string) *App {
	return &App{
		Config:  cfg,
		Store:   st,
		Logger:  logger,
		Version: version,
	}
}

func reminderConfig(cfg *config.Config) reminder.Config {
	return reminder.Config{
		RepeatInterval:  cfg.Reminders.RepeatInterval,
		Title:           cfg.Reminders.Title,
		RespectCalendar: cfg.Reminders.RespectCalendar,
	}
}

func pushConfig(cfg *config.Config) alert.PushConfig {
	return alert.PushConfig{
		MaxFailures:   cfg.Push.Breaker.MaxFailures,
		OpenTimeout:   cfg.Push.Breaker.OpenTimeout,
		RatePerMinute: cfg.Push.RatePerMinute,
	}
}

// Init builds the reminder engine and the API without touching the
// network. Local sinks are always registered and switched by config so a
// reload can turn them on.
func (app *App) Init(ctx context.Context) error {
	if app.Metrics == nil {
		app.Metrics = metrics.Default()
	}

	app.Hub = api.NewHub(app.Logger)
	app.Sinks = alert.NewMulti()
	app.Sinks.Add(SinkLog, alert.NewLog(app.Logger))
	app.Sinks.Add(SinkSpeech, alert.NewSpeech(app.Config.Reminders.SpeechVoice))
	app.Sinks.Add(SinkTone, alert.NewTone())
	app.Sinks.Add(SinkDesktop, alert.NewDesktop())
	app.Sinks.Add(SinkBrowser, app.Hub)
	app.applySinkToggles(app.Config)

	app.Scheduler = reminder.NewScheduler(app.Sinks, reminderConfig(app.Config), app.Logger,
		reminder.WithMetrics(app.Metrics))
	app.Scheduler.OnChange(app.Hub.Publish)

	app.Service = NewService(app.Store, app.Scheduler, app.Logger,
		WithServiceMetrics(app.Metrics),
		WithRespectCalendar(app.Config.Reminders.RespectCalendar))
	if err := app.Service.Load(ctx); err != nil {
		return fmt.Errorf("load schedules: %w", err)
	}

	runner, err := cron.NewRunner(cron.Config{
		RolloverSpec: app.Config.Reminders.RolloverCron,
		PollInterval: app.Config.Storage.PollInterval,
	}, app.Service, app.Logger)
	if err != nil {
		return err
	}
	app.CronRunner = runner

	app.Server = api.New(app.Config, app.Service, app.Hub, app.Metrics, app.Logger, app.Version)
	return nil
}

func (app *App) applySinkToggles(cfg *config.Config) {
	app.Sinks.SetEnabled(SinkSpeech, cfg.Reminders.Speech)
	app.Sinks.SetEnabled(SinkTone, cfg.Reminders.Tone)
	app.Sinks.SetEnabled(SinkDesktop, cfg.Reminders.Desktop)
}

// ApplyConfig takes the reloadable part of a new config: reminder timing,
// the calendar filter and the local sink switches. Storage, server and
// push settings need a restart.
func (app *App) ApplyConfig(cfg *config.Config) {
	app.applySinkToggles(cfg)
	app.Scheduler.SetConfig(reminderConfig(cfg))
	app.Service.SetRespectCalendar(cfg.Reminders.RespectCalendar)

	app.Config.Reminders = cfg.Reminders
	app.Logger.Info("Reminder settings applied",
		zap.Duration("repeat_interval", cfg.Reminders.RepeatInterval),
		zap.Bool("speech", cfg.Reminders.Speech),
		zap.Bool("tone", cfg.Reminders.Tone),
		zap.Bool("desktop", cfg.Reminders.Desktop),
	)
}

func (app *App) startPush() {
	pcfg := pushConfig(app.Config)

	if app.Config.Push.Telegram.Enabled {
		bot, err := telegram.NewBot(telegram.Config{
			Token:  app.Config.Push.Telegram.BotToken,
			ChatID: app.Config.Push.Telegram.ChatID,
		}, app.Service, app.Logger)
		if err != nil {
			app.Logger.Error("Failed to create Telegram bot", zap.Error(err))
		} else if err := bot.Start(); err != nil {
			app.Logger.Error("Failed to start Telegram bot", zap.Error(err))
		} else {
			app.TelegramBot = bot
			app.Sinks.Add(SinkTelegram, alert.NewPush(bot, pcfg, app.Logger))
			app.Logger.Info("Telegram bot started")
		}
	}

	if app.Config.Push.Discord.Enabled && app.Config.Push.Discord.Token != "" {
		bot, err := discord.NewBot(discord.Config{
			Token:     app.Config.Push.Discord.Token,
			ChannelID: app.Config.Push.Discord.ChannelID,
			AllowDM:   true,
		}, app.Service, app.Logger)
		if err != nil {
			app.Logger.Error("Failed to create Discord bot", zap.Error(err))
		} else if err := bot.Start(); err != nil {
			app.Logger.Error("Failed to start Discord bot", zap.Error(err))
		} else {
			app.DiscordBot = bot
			app.Sinks.Add(SinkDiscord, alert.NewPush(bot, pcfg, app.Logger))
			app.Logger.Info("Discord bot started")
		}
	}
}

// RunServer starts every component and blocks until SIGINT or SIGTERM
func (app *App) RunServer() error {
	ctx := context.Background()
	if err := app.Init(ctx); err != nil {
		return err
	}

	app.startPush()

	perm := app.Scheduler.RequestPermission(ctx)
	app.Logger.Info("Alert permission", zap.String("permission", string(perm)),
		zap.Strings("sinks", app.Sinks.Names()))

	if err := app.CronRunner.Start(); err != nil {
		app.Logger.Error("Failed to start cron runner", zap.Error(err))
	} else {
		app.Logger.Info("Cron runner started", zap.Time("next_rollover", app.CronRunner.NextRollover()))
	}

	err := config.Watch(app.Config.File(), app.Config.Storage.DataDir, app.Logger, app.ApplyConfig)
	switch {
	case errors.Is(err, apperrors.ErrConfigNotFound):
		app.Logger.Debug("No config file to watch")
	case err != nil:
		app.Logger.Warn("Config watch disabled", zap.Error(err))
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.Server.Start()
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.String("user", app.Service.ActiveUser()),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case <-quit:
	case runErr = <-serverErr:
		app.Logger.Error("Server error", zap.Error(runErr))
	}

	app.Logger.Info("Shutting down...")
	app.shutdown()
	return runErr
}

func (app *App) shutdown() {
	if app.TelegramBot != nil {
		app.TelegramBot.Stop()
	}

	if app.DiscordBot != nil {
		if err := app.DiscordBot.Stop(); err != nil {
			app.Logger.Warn("Discord shutdown error", zap.Error(err))
		}
	}

	if app.CronRunner != nil {
		app.CronRunner.Stop()
	}

	if app.Scheduler != nil {
		app.Scheduler.Cancel()
	}

	if app.Server != nil {
		if err := app.Server.Shutdown(); err != nil {
			app.Logger.Error("Server shutdown error", zap.Error(err))
		}
	}
}

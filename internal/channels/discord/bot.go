// Package discord provides Discord bot integration
package discord

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/channels"
)

// Config holds Discord bot configuration
type Config struct {
	Token     string
	ChannelID string // channel reminders are pushed to
	GuildID   string // Optional: restrict commands to a specific server
	AllowDM   bool   // Allow direct messages
}

// sender is the part of discordgo.Session used to post messages
type sender interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Bot represents a Discord bot instance
type Bot struct {
	session *discordgo.Session
	api     sender
	ctrl    channels.Controller
	config  Config
	logger  *zap.Logger
}

// NewBot creates a new Discord bot
func NewBot(cfg Config, ctrl channels.Controller, logger *zap.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}

	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	bot := newBot(session, cfg, ctrl, logger)
	bot.session = session

	// Register handlers
	session.AddHandler(bot.messageCreate)
	session.AddHandler(bot.ready)

	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	return bot, nil
}

func newBot(api sender, cfg Config, ctrl channels.Controller, logger *zap.Logger) *Bot {
	return &Bot{
		api:    api,
		ctrl:   ctrl,
		config: cfg,
		logger: logger,
	}
}

func (b *Bot) Name() string { return "discord" }

// Send pushes a reminder to the configured channel
func (b *Bot) Send(ctx context.Context, title, body string) error {
	_, err := b.api.ChannelMessageSend(b.config.ChannelID, bold(title)+"\n"+body, discordgo.WithContext(ctx))
	return err
}

// Start starts the Discord bot
func (b *Bot) Start() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}

	b.logger.Info("Discord bot started",
		zap.String("username", b.session.State.User.Username),
	)

	return nil
}

// Stop stops the Discord bot
func (b *Bot) Stop() error {
	return b.session.Close()
}

// ready is called when the bot is ready
func (b *Bot) ready(s *discordgo.Session, event *discordgo.Ready) {
	b.logger.Info("Discord bot ready",
		zap.String("username", s.State.User.Username),
		zap.Int("guilds", len(event.Guilds)),
	)
}

// messageCreate handles incoming messages
func (b *Bot) messageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID {
		return
	}
	b.handleMessage(m.Message, s.State.User.ID)
}

func (b *Bot) handleMessage(m *discordgo.Message, selfID string) {
	if m.GuildID == "" && !b.config.AllowDM {
		return
	}
	if b.config.GuildID != "" && m.GuildID != "" && m.GuildID != b.config.GuildID {
		return
	}

	// Remove bot mention
	content := strings.ReplaceAll(m.Content, "<@"+selfID+">", "")
	content = strings.ReplaceAll(content, "<@!"+selfID+">", "")
	content = strings.TrimSpace(content)

	if !strings.HasPrefix(content, "/") {
		return
	}
	command := strings.Fields(content)[0]

	reply, _ := channels.Reply(b.ctrl, command, bold)
	if _, err := b.api.ChannelMessageSend(m.ChannelID, reply); err != nil {
		b.logger.Error("Failed to send reply", zap.String("channel", m.ChannelID), zap.Error(err))
	}
}

func bold(s string) string {
	return "**" + s + "**"
}

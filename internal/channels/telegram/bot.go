package telegram

import (
	"context"
	"fmt"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/gmsas95/meditime/internal/channels"
)

// sender is the part of tgbotapi.BotAPI used to reply
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Bot pushes reminders to a Telegram chat and answers a few commands
type Bot struct {
	api       sender
	poller    *tgbotapi.BotAPI
	ctrl      channels.Controller
	chatID    int64
	logger    *zap.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	allowList map[int64]bool // Allowed user IDs
}

// Config holds Telegram bot configuration
type Config struct {
	Token     string
	ChatID    int64   // chat reminders are pushed to
	AllowList []int64 // List of allowed user IDs (empty = allow all)
}

// NewBot creates a new Telegram bot
func NewBot(cfg Config, ctrl channels.Controller, logger *zap.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	api.Debug = false
	logger.Info("Telegram authorized", zap.String("account", api.Self.UserName))

	b := newBot(api, cfg, ctrl, logger)
	b.poller = api
	return b, nil
}

func newBot(api sender, cfg Config, ctrl channels.Controller, logger *zap.Logger) *Bot {
	ctx, cancel := context.WithCancel(context.Background())

	allowList := make(map[int64]bool)
	for _, id := range cfg.AllowList {
		allowList[id] = true
	}

	return &Bot{
		api:       api,
		ctrl:      ctrl,
		chatID:    cfg.ChatID,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		allowList: allowList,
	}
}

func (b *Bot) Name() string { return "telegram" }

// Send pushes a reminder to the configured chat
func (b *Bot) Send(ctx context.Context, title, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := b.sendMessage(b.chatID, bold(title)+"\n"+body)
	return err
}

// Start starts polling for commands
func (b *Bot) Start() error {
	if b.poller == nil {
		return nil
	}

	b.wg.Add(1)
	go b.run()

	return nil
}

// Stop stops the bot
func (b *Bot) Stop() {
	b.cancel()
	if b.poller != nil {
		b.poller.StopReceivingUpdates()
	}
	b.wg.Wait()
}

func (b *Bot) run() {
	defer b.wg.Done()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.poller.GetUpdatesChan(u)

	for {
		select {
		case <-b.ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if err := b.handleUpdate(update); err != nil {
				b.logger.Error("Failed to handle update", zap.Error(err))
			}
		}
	}
}

func (b *Bot) handleUpdate(update tgbotapi.Update) error {
	if update.Message == nil || !update.Message.IsCommand() {
		return nil
	}

	msg := update.Message
	if msg.From != nil && len(b.allowList) > 0 && !b.allowList[msg.From.ID] {
		_, err := b.sendMessage(msg.Chat.ID, "You are not authorized to use this bot.")
		return err
	}

	reply, _ := channels.Reply(b.ctrl, msg.Command(), bold)
	_, err := b.sendMessage(msg.Chat.ID, reply)
	return err
}

func bold(s string) string {
	return "*" + s + "*"
}

func (b *Bot) sendMessage(chatID int64, text string) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown

	sent, err := b.api.Send(msg)
	if err != nil {
		// Try without markdown if it fails
		msg.ParseMode = ""
		sent, err = b.api.Send(msg)
		if err != nil {
			return 0, err
		}
	}

	return sent.MessageID, nil
}

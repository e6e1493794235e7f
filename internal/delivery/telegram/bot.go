package telegram

import (
	"context"
	"fmt"
	"sync"
	"time"

	"taskquest/internal/application"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// sender is the part of the Bot API the handlers talk to.
type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Config struct {
	Token       string
	FrontendURL string
}

type Bot struct {
	api         *tgbotapi.BotAPI
	out         sender
	svc         *application.Service
	logger      application.Logger
	frontendURL string

	mu      sync.Mutex
	pending map[int64]time.Time // telegram user id -> code prompt deadline
	now     func() time.Time

	stopOnce sync.Once
}

func NewBot(cfg Config, svc *application.Service, logger application.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	logger.Info("Telegram bot authorized on account %s", api.Self.UserName)

	b := newBot(api, svc, cfg.FrontendURL, logger)
	b.api = api
	return b, nil
}

func newBot(out sender, svc *application.Service, frontendURL string, logger application.Logger) *Bot {
	return &Bot{
		out:         out,
		svc:         svc,
		logger:      logger,
		frontendURL: frontendURL,
		pending:     make(map[int64]time.Time),
		now:         time.Now,
	}
}

// Username is the bot handle used to build deep links.
func (b *Bot) Username() string {
	if b.api == nil {
		return ""
	}
	return b.api.Self.UserName
}

func (b *Bot) Name() string { return "telegram" }

func (b *Bot) Init() error {
	if b.api == nil {
		return fmt.Errorf("telegram bot is not connected")
	}
	return nil
}

func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.Stop()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) Stop() {
	b.stopOnce.Do(func() {
		if b.api != nil {
			b.api.StopReceivingUpdates()
		}
	})
}

// NotifyChat sends a plain text message to a linked chat.
func (b *Bot) NotifyChat(chatID int64, text string) error {
	if _, err := b.out.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		return fmt.Errorf("send to chat %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("panic while handling update %d: %v", update.UpdateID, r)
		}
	}()

	switch {
	case update.CallbackQuery != nil:
		b.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		b.handleMessage(ctx, update.Message)
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Text == "" {
		return
	}
	chatID := msg.Chat.ID
	ident := identityOf(msg.From)

	if !msg.IsCommand() {
		b.handleText(ctx, chatID, ident, msg.Text)
		return
	}

	b.clearPending(ident.ID)
	args := msg.CommandArguments()

	switch msg.Command() {
	case "start":
		b.handleStart(ctx, chatID, ident, args)
	case "auth":
		b.handleAuth(ctx, chatID, ident, args)
	case "tasks":
		b.handleTasks(ctx, chatID, ident)
	case "task":
		b.handleTask(ctx, chatID, ident, args)
	case "update":
		b.handleUpdateMenu(ctx, chatID, 0, ident)
	case "info":
		b.handleInfo(ctx, chatID, ident)
	case "leave":
		b.handleLeave(chatID, ident)
	case "help":
		b.send(chatID, helpText, nil)
	case "about":
		b.handleAbout(chatID)
	default:
		b.handleCustomCommand(ctx, chatID, ident, msg.Command())
	}
}

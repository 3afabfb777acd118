package bot

import (
	"context"
	"runtime/debug"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// CommandHandler reacts to a /command message.
type CommandHandler interface {
	HandleCommand(ctx context.Context, msg *tgbotapi.Message)
}

// Updates is the long-polling part of tgbotapi.BotAPI.
type Updates interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

type Bot struct {
	api      Updates
	handlers CommandHandler
	log      *zap.Logger
	wg       sync.WaitGroup
}

func New(api Updates, handlers CommandHandler, log *zap.Logger) *Bot {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bot{
		api:      api,
		handlers: handlers,
		log:      log.With(zap.String("component", "bot")),
	}
}

// Start polls for updates until ctx is cancelled, then waits for in-flight
// handlers to return.
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	b.log.Info("listening for updates")

	defer b.wg.Wait()
	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.wg.Add(1)
			go func() {
				defer b.wg.Done()
				b.handleUpdate(ctx, update)
			}()
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panic", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()

	if update.Message == nil || !update.Message.IsCommand() {
		return
	}
	b.log.Debug("command received",
		zap.String("command", update.Message.Command()),
		zap.Int64("chat_id", update.Message.Chat.ID))
	b.handlers.HandleCommand(ctx, update.Message)
}

package handlers

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/CoachLine/internal/clock"
	"github.com/hray3182/CoachLine/internal/models"
	"github.com/hray3182/CoachLine/internal/repository"
	"github.com/hray3182/CoachLine/internal/session"
	"go.uber.org/zap"
)

// Replier sends a reply to a chat.
type Replier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

type Deps struct {
	Store    repository.Store
	Sessions *session.Service
	Clock    clock.Clock
	Replier  Replier
	Notifier session.Notifier
	Logger   *zap.Logger
}

type Handlers struct {
	store    repository.Store
	sessions *session.Service
	clock    clock.Clock
	replier  Replier
	notifier session.Notifier
	log      *zap.Logger
}

func New(deps Deps) *Handlers {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Handlers{
		store:    deps.Store,
		sessions: deps.Sessions,
		clock:    deps.Clock,
		replier:  deps.Replier,
		notifier: deps.Notifier,
		log:      log.With(zap.String("component", "handlers")),
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.Chat == nil {
		return
	}

	// Every command refreshes the owner's chat so deliveries can reach it.
	if msg.Command() != "quit" {
		user := &models.User{UserID: msg.From.ID, ChatID: msg.Chat.ID, FullName: fullName(msg.From)}
		if err := h.store.Register(ctx, user); err != nil {
			h.log.Error("failed to register user", zap.Int64("user_id", msg.From.ID), zap.Error(err))
			h.reply(ctx, msg, "Something went wrong, please try again later.")
			return
		}
	}

	args := strings.TrimSpace(msg.CommandArguments())
	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(ctx, msg)
	case "morning":
		h.handleMorning(ctx, msg, args)
	case "remind":
		h.handleRemind(ctx, msg, args)
	case "reminders":
		h.handleList(ctx, msg)
	case "toggle":
		h.handleToggle(ctx, msg, args)
	case "reschedule":
		h.handleReschedule(ctx, msg, args)
	case "delete":
		h.handleDelete(ctx, msg, args)
	case "plan":
		h.handlePlan(ctx, msg, args)
	case "train":
		h.handleTrain(ctx, msg)
	case "stop":
		h.handleStop(ctx, msg)
	case "cancel":
		h.handleCancel(ctx, msg)
	case "quit":
		h.handleQuit(ctx, msg)
	default:
		h.reply(ctx, msg, "Unknown command, see /help")
	}
}

func (h *Handlers) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	text := fmt.Sprintf(`👋 Hi %s!

I am your training coach bot. I will send you a morning check-in, remind you about planned trainings and nudge you if a session runs too long.

Set your morning time with /morning 08:00 and see /help for everything else.`, msg.From.FirstName)
	h.reply(ctx, msg, text)
}

func (h *Handlers) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	h.reply(ctx, msg, "📖 **Commands**\n\n"+
		"/morning HH:MM - daily morning check-in (06:00-12:00)\n"+
		"/remind HH:MM SCHEDULE Name | text - custom reminder\n"+
		"   SCHEDULE: daily, weekly:1, monthly:31, days:1,4 (0 = Sunday)\n"+
		"/reminders - list your reminders\n"+
		"/toggle ID - pause or resume a reminder\n"+
		"/reschedule ID HH:MM - move a reminder\n"+
		"/delete ID - delete a reminder\n"+
		"/plan HH:MM - plan today's training\n"+
		"/train - start a training now\n"+
		"/stop - finish the training\n"+
		"/cancel - cancel today's training\n"+
		"/quit - stop all notifications")
}

func (h *Handlers) handleQuit(ctx context.Context, msg *tgbotapi.Message) {
	if err := h.store.Deactivate(ctx, msg.From.ID); err != nil {
		h.log.Warn("failed to deactivate user", zap.Int64("user_id", msg.From.ID), zap.Error(err))
	}
	h.reply(ctx, msg, "👋 Notifications stopped. Send /start to come back.")
}

func (h *Handlers) reply(ctx context.Context, msg *tgbotapi.Message, text string) {
	if err := h.replier.Send(ctx, msg.Chat.ID, text); err != nil {
		h.log.Warn("failed to send reply", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

func (h *Handlers) notify() {
	if h.notifier != nil {
		h.notifier.Notify()
	}
}

func fullName(u *tgbotapi.User) string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

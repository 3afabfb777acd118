package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/CoachLine/internal/format"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnreachable marks recipients that blocked the bot or no longer exist.
var ErrUnreachable = errors.New("recipient unreachable")

// API is the part of tgbotapi.BotAPI the sender needs.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Sender delivers markdown-formatted text through the Bot API while staying
// under Telegram's global send rate.
type Sender struct {
	api     API
	limiter *rate.Limiter
	log     *zap.Logger
}

func NewSender(api API, perSecond int, log *zap.Logger) *Sender {
	if perSecond <= 0 {
		perSecond = 25
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Sender{
		api:     api,
		limiter: rate.NewLimiter(rate.Limit(perSecond), perSecond),
		log:     log.With(zap.String("component", "telegram")),
	}
}

func (s *Sender) Send(ctx context.Context, chatID int64, text string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	parsed := format.ParseMarkdown(text)
	msg := tgbotapi.NewMessage(chatID, parsed.Text)
	msg.Entities = parsed.Entities

	sent, err := s.api.Send(msg)
	if err != nil {
		return classify(err)
	}
	s.log.Debug("message sent", zap.Int64("chat_id", chatID), zap.Int("message_id", sent.MessageID))
	return nil
}

func classify(err error) error {
	var apiErr *tgbotapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := strings.ToLower(apiErr.Message)
	switch {
	case apiErr.Code == http.StatusForbidden,
		strings.Contains(msg, "chat not found"),
		strings.Contains(msg, "user is deactivated"):
		return fmt.Errorf("%w: %s", ErrUnreachable, apiErr.Message)
	case apiErr.ResponseParameters.RetryAfter > 0:
		return fmt.Errorf("telegram flood control, retry after %ds: %w", apiErr.ResponseParameters.RetryAfter, err)
	}
	return err
}

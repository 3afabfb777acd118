package handlers

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/CoachLine/internal/models"
	"github.com/hray3182/CoachLine/internal/session"
	"go.uber.org/zap"
)

func (h *Handlers) handlePlan(ctx context.Context, msg *tgbotapi.Message, args string) {
	tod, err := models.ParseTimeOfDay(args)
	if err != nil {
		h.reply(ctx, msg, "Usage: /plan HH:MM, for example /plan 18:30")
		return
	}
	start := tod.On(h.clock.Now(), h.clock.Location())
	if !start.After(h.clock.Now()) {
		h.reply(ctx, msg, "That time has already passed today")
		return
	}
	if err := h.sessions.PlanTraining(ctx, msg.From.ID, tod); err != nil {
		h.log.Error("failed to plan training", zap.Int64("owner_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg, "Failed to plan the training")
		return
	}
	h.reply(ctx, msg, fmt.Sprintf("🏋️ Training planned for **%s**. I will remind you %d minutes before.",
		tod, int(session.PreTrainingLead.Minutes())))
}

func (h *Handlers) handleTrain(ctx context.Context, msg *tgbotapi.Message) {
	rule, err := h.sessions.StartTraining(ctx, msg.From.ID)
	if err != nil {
		h.log.Error("failed to start training", zap.Int64("owner_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg, "Failed to start the training")
		return
	}
	h.reply(ctx, msg, fmt.Sprintf("💪 Training started. Send /stop when you are done, I will check in at %s.",
		rule.NextExecution.In(h.clock.Location()).Format("15:04")))
}

func (h *Handlers) handleStop(ctx context.Context, msg *tgbotapi.Message) {
	if err := h.sessions.StopTraining(ctx, msg.From.ID); err != nil {
		h.log.Error("failed to stop training", zap.Int64("owner_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg, "Failed to stop the training")
		return
	}
	h.reply(ctx, msg, "🎉 Great work! Training finished.")
}

func (h *Handlers) handleCancel(ctx context.Context, msg *tgbotapi.Message) {
	if err := h.sessions.CancelTraining(ctx, msg.From.ID); err != nil {
		h.log.Error("failed to cancel training", zap.Int64("owner_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg, "Failed to cancel the training")
		return
	}
	h.reply(ctx, msg, "❌ Training cancelled")
}

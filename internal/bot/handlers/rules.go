package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/hray3182/CoachLine/internal/models"
	"github.com/hray3182/CoachLine/internal/repository"
	"github.com/hray3182/CoachLine/internal/rrule"
	"go.uber.org/zap"
)

var (
	earliestMorning = models.TimeOfDay{Hour: 6}
	latestMorning   = models.TimeOfDay{Hour: 12}
)

func (h *Handlers) handleMorning(ctx context.Context, msg *tgbotapi.Message, args string) {
	tod, err := models.ParseTimeOfDay(args)
	if err != nil {
		h.reply(ctx, msg, "Usage: /morning HH:MM, for example /morning 08:00")
		return
	}
	if minutes(tod) < minutes(earliestMorning) || minutes(tod) > minutes(latestMorning) {
		h.reply(ctx, msg, "⏰ Morning time must be between 06:00 and 12:00")
		return
	}

	periodicity := models.Daily()
	next, err := rrule.ComputeNext(tod, periodicity, h.clock.Now(), h.clock.Location())
	if err != nil {
		h.log.Error("failed to compute morning schedule", zap.Error(err))
		h.reply(ctx, msg, "Failed to schedule the morning check-in")
		return
	}

	rule := &models.NotificationRule{
		OwnerID:       msg.From.ID,
		Kind:          models.KindMorning,
		TimeOfDay:     tod,
		Periodicity:   periodicity,
		NextExecution: next,
		Active:        true,
	}
	if err := h.store.Upsert(ctx, rule); err != nil {
		h.log.Error("failed to save morning rule", zap.Int64("owner_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg, "Failed to schedule the morning check-in")
		return
	}
	h.notify()
	h.reply(ctx, msg, fmt.Sprintf("🌞 Morning check-in set for **%s** every day", tod))
}

// handleRemind parses "HH:MM SCHEDULE Name | text".
func (h *Handlers) handleRemind(ctx context.Context, msg *tgbotapi.Message, args string) {
	const usage = "Usage: /remind HH:MM SCHEDULE Name | text\nExample: /remind 19:30 days:1,4 Stretch | Time for 10 minutes of stretching"

	fields := strings.SplitN(args, " ", 3)
	if len(fields) < 3 {
		h.reply(ctx, msg, usage)
		return
	}
	tod, err := models.ParseTimeOfDay(fields[0])
	if err != nil {
		h.reply(ctx, msg, usage)
		return
	}
	periodicity, err := models.ParsePeriodicity(fields[1])
	if err != nil {
		h.reply(ctx, msg, "Unknown schedule "+fields[1]+". Use daily, weekly:N, monthly:N or days:N,M")
		return
	}
	name, body, _ := strings.Cut(fields[2], "|")
	name, body = strings.TrimSpace(name), strings.TrimSpace(body)
	if name == "" {
		h.reply(ctx, msg, usage)
		return
	}
	if body == "" {
		body = name
	}

	now := h.clock.Now()
	next, err := rrule.ComputeNext(tod, periodicity, now, h.clock.Location())
	if err != nil {
		h.reply(ctx, msg, "Failed to compute the schedule: "+err.Error())
		return
	}

	rule := &models.NotificationRule{
		OwnerID:       msg.From.ID,
		Kind:          models.KindCustom,
		TimeOfDay:     tod,
		Periodicity:   periodicity,
		NextExecution: next,
		Active:        true,
		Custom:        &models.CustomContent{Name: name, MessageBody: body, CreatedAt: now},
	}
	if err := h.store.Create(ctx, rule); err != nil {
		h.log.Error("failed to create custom rule", zap.Int64("owner_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg, "Failed to create the reminder")
		return
	}
	h.notify()
	h.reply(ctx, msg, fmt.Sprintf("✅ Reminder #%d **%s** at %s, %s", rule.ID, name, tod, rrule.Describe(periodicity)))
}

func (h *Handlers) handleList(ctx context.Context, msg *tgbotapi.Message) {
	rules, err := h.store.ListByOwner(ctx, msg.From.ID)
	if err != nil {
		h.log.Error("failed to list rules", zap.Int64("owner_id", msg.From.ID), zap.Error(err))
		h.reply(ctx, msg, "Failed to load your reminders")
		return
	}

	var lines []string
	for _, r := range rules {
		if !r.IsRecurring() && r.Sent {
			continue
		}
		lines = append(lines, describeRule(r, h.clock.Location()))
	}
	if len(lines) == 0 {
		h.reply(ctx, msg, "📭 No reminders yet. Try /morning 08:00")
		return
	}
	h.reply(ctx, msg, "📋 **Your reminders**\n\n"+strings.Join(lines, "\n"))
}

func (h *Handlers) handleToggle(ctx context.Context, msg *tgbotapi.Message, args string) {
	rule, ok := h.ownedRule(ctx, msg, args)
	if !ok {
		return
	}
	active, err := h.store.ToggleActive(ctx, rule.ID)
	if err != nil {
		h.log.Error("failed to toggle rule", zap.Int64("rule_id", rule.ID), zap.Error(err))
		h.reply(ctx, msg, "Failed to update the reminder")
		return
	}
	if active && rule.IsRecurring() {
		// A resumed rule continues from its next occurrence, not from where it was paused.
		next, err := rrule.ComputeNext(rule.TimeOfDay, rule.Periodicity, h.clock.Now(), h.clock.Location())
		if err == nil {
			err = h.store.Reschedule(ctx, rule.ID, rule.TimeOfDay, next)
		}
		if err != nil {
			h.log.Error("failed to re-arm resumed rule", zap.Int64("rule_id", rule.ID), zap.Error(err))
		}
	}
	h.notify()
	if active {
		h.reply(ctx, msg, fmt.Sprintf("▶️ Reminder #%d resumed", rule.ID))
		return
	}
	h.reply(ctx, msg, fmt.Sprintf("⏸ Reminder #%d paused", rule.ID))
}

func (h *Handlers) handleReschedule(ctx context.Context, msg *tgbotapi.Message, args string) {
	idArg, timeArg, _ := strings.Cut(args, " ")
	rule, ok := h.ownedRule(ctx, msg, idArg)
	if !ok {
		return
	}
	if !rule.IsRecurring() {
		h.reply(ctx, msg, "Training reminders are rescheduled with /plan")
		return
	}
	tod, err := models.ParseTimeOfDay(strings.TrimSpace(timeArg))
	if err != nil {
		h.reply(ctx, msg, "Usage: /reschedule ID HH:MM")
		return
	}
	if rule.Kind == models.KindMorning && (minutes(tod) < minutes(earliestMorning) || minutes(tod) > minutes(latestMorning)) {
		h.reply(ctx, msg, "⏰ Morning time must be between 06:00 and 12:00")
		return
	}

	next, err := rrule.ComputeNext(tod, rule.Periodicity, h.clock.Now(), h.clock.Location())
	if err != nil {
		h.reply(ctx, msg, "Failed to compute the schedule: "+err.Error())
		return
	}
	if err := h.store.Reschedule(ctx, rule.ID, tod, next); err != nil {
		h.log.Error("failed to reschedule rule", zap.Int64("rule_id", rule.ID), zap.Error(err))
		h.reply(ctx, msg, "Failed to update the reminder")
		return
	}
	h.notify()
	h.reply(ctx, msg, fmt.Sprintf("🕒 Reminder #%d moved to %s", rule.ID, tod))
}

func (h *Handlers) handleDelete(ctx context.Context, msg *tgbotapi.Message, args string) {
	rule, ok := h.ownedRule(ctx, msg, args)
	if !ok {
		return
	}
	if err := h.store.Delete(ctx, rule.ID); err != nil {
		h.log.Error("failed to delete rule", zap.Int64("rule_id", rule.ID), zap.Error(err))
		h.reply(ctx, msg, "Failed to delete the reminder")
		return
	}
	h.notify()
	h.reply(ctx, msg, fmt.Sprintf("🗑 Reminder #%d deleted", rule.ID))
}

// ownedRule loads the rule named by arg and replies with an error unless it
// belongs to the sender.
func (h *Handlers) ownedRule(ctx context.Context, msg *tgbotapi.Message, arg string) (*models.NotificationRule, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		h.reply(ctx, msg, "Please give a reminder ID, see /reminders")
		return nil, false
	}
	rule, err := h.store.Get(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && rule.OwnerID != msg.From.ID) {
		h.reply(ctx, msg, fmt.Sprintf("Reminder #%d not found", id))
		return nil, false
	}
	if err != nil {
		h.log.Error("failed to load rule", zap.Int64("rule_id", id), zap.Error(err))
		h.reply(ctx, msg, "Failed to load the reminder")
		return nil, false
	}
	return rule, true
}

func describeRule(r models.NotificationRule, loc *time.Location) string {
	status := "✅"
	if !r.Active {
		status = "⏸"
	}
	label := string(r.Kind)
	if r.Custom != nil {
		label = r.Custom.Name
	}
	schedule := "once"
	if r.IsRecurring() {
		schedule = rrule.Describe(r.Periodicity)
	}
	return fmt.Sprintf("%s #%d **%s** %s, %s (next %s)",
		status, r.ID, label, r.TimeOfDay, schedule,
		r.NextExecution.In(loc).Format("Mon 02 Jan 15:04"))
}

func minutes(t models.TimeOfDay) int {
	return t.Hour*60 + t.Minute
}

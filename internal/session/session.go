// Package session creates and retires the one-shot rules of a training
// session.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/hray3182/CoachLine/internal/clock"
	"github.com/hray3182/CoachLine/internal/models"
	"github.com/hray3182/CoachLine/internal/repository"
	"go.uber.org/zap"
)

const (
	// StopAfter is how long a training may run before the user is asked
	// whether they forgot to stop it.
	StopAfter = time.Hour + 15*time.Minute
	// PreTrainingLead is how far ahead of a planned training the heads-up
	// reminder fires.
	PreTrainingLead = time.Hour
)

// Notifier wakes the poll loops after the rule set changed.
type Notifier interface {
	Notify()
}

type Service struct {
	rules    repository.RuleStore
	clock    clock.Clock
	notifier Notifier
	log      *zap.Logger
}

func New(rules repository.RuleStore, clk clock.Clock, notifier Notifier, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		rules:    rules,
		clock:    clk,
		notifier: notifier,
		log:      log.With(zap.String("component", "session")),
	}
}

// StartTraining arms the stop-training nudge for a session starting now.
func (s *Service) StartTraining(ctx context.Context, ownerID int64) (*models.NotificationRule, error) {
	next := s.clock.Now().Add(StopAfter)
	rule := &models.NotificationRule{
		OwnerID:       ownerID,
		Kind:          models.KindStopTraining,
		TimeOfDay:     models.TimeOfDayOf(next.In(s.clock.Location())),
		NextExecution: next,
		Active:        true,
	}
	if err := s.rules.Upsert(ctx, rule); err != nil {
		return nil, fmt.Errorf("arm stop reminder: %w", err)
	}
	s.log.Info("training started", zap.Int64("owner_id", ownerID), zap.Time("stop_reminder_at", next))
	s.notify()
	return rule, nil
}

// PlanTraining arms the heads-up and start reminders for a training at
// tod today.
func (s *Service) PlanTraining(ctx context.Context, ownerID int64, tod models.TimeOfDay) error {
	if err := tod.Validate(); err != nil {
		return err
	}
	start := tod.On(s.clock.Now(), s.clock.Location())

	reminders := []*models.NotificationRule{
		{
			OwnerID:       ownerID,
			Kind:          models.KindPreTrainingReminder,
			TimeOfDay:     tod,
			NextExecution: start.Add(-PreTrainingLead),
			Active:        true,
		},
		{
			OwnerID:       ownerID,
			Kind:          models.KindTrainingReminder,
			TimeOfDay:     tod,
			NextExecution: start,
			Active:        true,
		},
	}
	for _, r := range reminders {
		if err := s.rules.Upsert(ctx, r); err != nil {
			return fmt.Errorf("arm %s: %w", r.Kind, err)
		}
	}
	s.log.Info("training planned", zap.Int64("owner_id", ownerID), zap.String("time", tod.String()))
	s.notify()
	return nil
}

// StopTraining ends the session; the stop nudge will not fire.
func (s *Service) StopTraining(ctx context.Context, ownerID int64) error {
	if err := s.rules.MarkSent(ctx, ownerID, models.KindStopTraining); err != nil {
		return fmt.Errorf("retire stop reminder: %w", err)
	}
	s.log.Info("training stopped", zap.Int64("owner_id", ownerID))
	return nil
}

// CancelTraining drops a planned or running session and all its reminders.
func (s *Service) CancelTraining(ctx context.Context, ownerID int64) error {
	for _, k := range []models.Kind{models.KindPreTrainingReminder, models.KindTrainingReminder, models.KindStopTraining} {
		if err := s.rules.MarkSent(ctx, ownerID, k); err != nil {
			return fmt.Errorf("retire %s: %w", k, err)
		}
	}
	s.log.Info("training cancelled", zap.Int64("owner_id", ownerID))
	return nil
}

func (s *Service) notify() {
	if s.notifier != nil {
		s.notifier.Notify()
	}
}

package scheduler

import (
	"context"
	"fmt"

	"github.com/hray3182/CoachLine/internal/clock"
	"github.com/hray3182/CoachLine/internal/repository"
	"github.com/hray3182/CoachLine/internal/rrule"
	"go.uber.org/zap"
)

// Resync recomputes the next execution of every active recurring rule from
// its local time of day, repairing values written with a stale UTC offset.
// Rules that are already due keep their pending delivery. It returns the
// number of rules updated.
func Resync(ctx context.Context, rules repository.RuleStore, clk clock.Clock, log *zap.Logger) (int, error) {
	if log == nil {
		log = zap.NewNop()
	}
	active, err := rules.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list active rules: %w", err)
	}

	now := clk.Now()
	updated := 0
	for _, rule := range active {
		if !rule.IsRecurring() || !rule.NextExecution.After(now) {
			continue
		}
		next, err := rrule.ComputeNext(rule.TimeOfDay, rule.Periodicity, now, clk.Location())
		if err != nil {
			log.Warn("resync skipped rule", zap.Int64("rule_id", rule.ID), zap.Error(err))
			continue
		}
		if next.Equal(rule.NextExecution) {
			continue
		}
		if err := rules.SetNextExecution(ctx, rule.ID, next); err != nil {
			return updated, fmt.Errorf("update rule %d: %w", rule.ID, err)
		}
		log.Info("rule resynced",
			zap.Int64("rule_id", rule.ID),
			zap.Time("old", rule.NextExecution),
			zap.Time("new", next),
		)
		updated++
	}
	return updated, nil
}

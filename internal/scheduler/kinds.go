package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/hray3182/CoachLine/internal/models"
	"github.com/hray3182/CoachLine/internal/templates"
	"go.uber.org/zap"
)

const motivationTimeout = 5 * time.Second

var errNoContent = errors.New("custom rule has no content")

// contentFunc builds the template data of one kind.
type contentFunc func(ctx context.Context, d *Dispatcher, rule *models.NotificationRule) (templates.Data, error)

var contentByKind = map[models.Kind]contentFunc{
	models.KindMorning:             morningContent,
	models.KindCustom:              customContent,
	models.KindPreTrainingReminder: timeContent,
	models.KindTrainingReminder:    timeContent,
	models.KindStopTraining:        timeContent,
}

func timeContent(_ context.Context, _ *Dispatcher, rule *models.NotificationRule) (templates.Data, error) {
	return templates.Data{Time: rule.TimeOfDay.String()}, nil
}

func morningContent(ctx context.Context, d *Dispatcher, rule *models.NotificationRule) (templates.Data, error) {
	data := templates.Data{Time: rule.TimeOfDay.String()}
	if d.motivator == nil {
		return data, nil
	}

	data.Motivation = d.motivation(ctx, rule.ID)
	return data, nil
}

// motivation returns the rule's line for the current local day, asking the
// motivator at most once per day. A failed fetch caches an empty line.
func (d *Dispatcher) motivation(ctx context.Context, ruleID int64) string {
	today := models.DateOf(d.clock.Now(), d.clock.Location())

	d.motivationMu.Lock()
	cached, ok := d.motivations[ruleID]
	d.motivationMu.Unlock()
	if ok && models.SameDate(cached.date, today) {
		return cached.line
	}

	ctx, cancel := context.WithTimeout(ctx, motivationTimeout)
	defer cancel()
	line, err := d.motivator.Motivation(ctx)
	if err != nil {
		d.log.Debug("motivation unavailable", zap.Int64("rule_id", ruleID), zap.Error(err))
		line = ""
	}

	d.motivationMu.Lock()
	defer d.motivationMu.Unlock()
	for id, c := range d.motivations {
		if !models.SameDate(c.date, today) {
			delete(d.motivations, id)
		}
	}
	d.motivations[ruleID] = cachedMotivation{date: today, line: line}
	return line
}

func customContent(_ context.Context, _ *Dispatcher, rule *models.NotificationRule) (templates.Data, error) {
	if rule.Custom == nil {
		return templates.Data{}, errNoContent
	}
	return templates.Data{
		Time: rule.TimeOfDay.String(),
		Name: rule.Custom.Name,
		Body: rule.Custom.MessageBody,
	}, nil
}

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hray3182/CoachLine/internal/clock"
	"github.com/hray3182/CoachLine/internal/models"
	"github.com/hray3182/CoachLine/internal/repository"
	"github.com/hray3182/CoachLine/internal/rrule"
	"github.com/hray3182/CoachLine/internal/templates"
	"go.uber.org/zap"
)

// Messenger delivers text to a chat. Any non-nil error is a delivery failure.
type Messenger interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Motivator supplies an optional line appended to morning messages.
type Motivator interface {
	Motivation(ctx context.Context) (string, error)
}

type Outcome string

const (
	OutcomeDelivered Outcome = "delivered"
	OutcomeRetry     Outcome = "retry"
	OutcomeEscalated Outcome = "escalated"
	OutcomeSkipped   Outcome = "skipped"
)

// Report summarizes one dispatch pass.
type Report struct {
	Due      int
	Outcomes map[Outcome]int
}

func (r *Report) add(o Outcome) {
	if r.Outcomes == nil {
		r.Outcomes = make(map[Outcome]int)
	}
	r.Outcomes[o]++
}

func (r Report) Count(o Outcome) int {
	return r.Outcomes[o]
}

type DispatcherConfig struct {
	Rules        repository.RuleStore
	Users        repository.UserDirectory
	Messenger    Messenger
	Templates    *templates.Set
	Motivator    Motivator
	Clock        clock.Clock
	AdminChatIDs []int64
	Logger       *zap.Logger
}

// Dispatcher turns one due rule into a delivery attempt and records the
// result on the rule.
type Dispatcher struct {
	rules     repository.RuleStore
	users     repository.UserDirectory
	messenger Messenger
	templates *templates.Set
	motivator Motivator
	clock     clock.Clock
	admins    []int64
	log       *zap.Logger

	// Motivation lines are fetched once per rule and local day, so retries
	// of an undeliverable morning rule reuse the cached line.
	motivationMu sync.Mutex
	motivations  map[int64]cachedMotivation
}

type cachedMotivation struct {
	date time.Time
	line string
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		rules:     cfg.Rules,
		users:     cfg.Users,
		messenger: cfg.Messenger,
		templates: cfg.Templates,
		motivator: cfg.Motivator,
		clock:     cfg.Clock,
		admins:    append([]int64(nil), cfg.AdminChatIDs...),
		log:       cfg.Logger,

		motivations: make(map[int64]cachedMotivation),
	}
	if d.templates == nil {
		d.templates = templates.Default()
	}
	if d.clock == nil {
		d.clock = clock.System(time.UTC)
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	d.log = d.log.With(zap.String("component", "dispatcher"))
	return d
}

// DispatchAll processes every rule in turn. A failing or panicking rule
// never stops the rest of the pass.
func (d *Dispatcher) DispatchAll(ctx context.Context, rules []models.NotificationRule) Report {
	report := Report{Due: len(rules), Outcomes: make(map[Outcome]int)}
	for i := range rules {
		report.add(d.safeDispatch(ctx, rules[i]))
	}
	return report
}

func (d *Dispatcher) safeDispatch(ctx context.Context, rule models.NotificationRule) (outcome Outcome) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("dispatch panicked",
				zap.Int64("rule_id", rule.ID),
				zap.Any("panic", r),
			)
			outcome = OutcomeSkipped
		}
	}()
	return d.Dispatch(ctx, rule)
}

func (d *Dispatcher) Dispatch(ctx context.Context, rule models.NotificationRule) Outcome {
	now := d.clock.Now()
	loc := d.clock.Location()
	log := d.log.With(
		zap.Int64("rule_id", rule.ID),
		zap.String("kind", string(rule.Kind)),
		zap.Int64("owner_id", rule.OwnerID),
	)

	spec, ok := rule.Kind.Spec()
	content, hasContent := contentByKind[rule.Kind]
	if !ok || !hasContent {
		log.Error("unknown notification kind, skipping")
		return OutcomeSkipped
	}

	// A rule whose schedule cannot be computed is skipped before sending.
	var next *time.Time
	if spec.Recurring {
		n, err := rrule.ComputeNext(rule.TimeOfDay, rule.Periodicity, now, loc)
		if err != nil {
			log.Error("failed to compute next execution, skipping", zap.Error(err))
			return OutcomeSkipped
		}
		next = &n
	}

	chatID, err := d.users.Resolve(ctx, rule.OwnerID)
	if err != nil {
		return d.fail(ctx, log, &rule, spec, now, loc, err)
	}

	data, err := content(ctx, d, &rule)
	if err != nil {
		log.Error("failed to build message, skipping", zap.Error(err))
		return OutcomeSkipped
	}
	text, err := d.templates.Render(rule.Kind, data)
	if err != nil {
		log.Error("failed to render message, skipping", zap.Error(err))
		return OutcomeSkipped
	}

	if err := d.messenger.Send(ctx, chatID, text); err != nil {
		return d.fail(ctx, log, &rule, spec, now, loc, err)
	}

	if err := d.rules.MarkDelivered(ctx, rule.ID, now, next); err != nil {
		// The message went out; the rule stays due and will be sent again.
		log.Error("failed to record delivery", zap.Error(err))
		return OutcomeDelivered
	}
	if next != nil {
		log.Info("notification delivered", zap.Time("next_execution", *next))
	} else {
		log.Info("notification delivered, rule retired")
	}
	return OutcomeDelivered
}

func (d *Dispatcher) fail(ctx context.Context, log *zap.Logger, rule *models.NotificationRule, spec models.KindSpec,
	now time.Time, loc *time.Location, cause error,
) Outcome {
	if !spec.Escalates {
		log.Warn("delivery failed, will retry", zap.Error(cause))
		return OutcomeRetry
	}
	if rule.EscalatedToday(now, loc) {
		log.Warn("delivery failed, already escalated today", zap.Error(cause))
		return OutcomeRetry
	}

	notice, err := d.templates.RenderEscalation(templates.Data{
		OwnerID: rule.OwnerID,
		Time:    rule.TimeOfDay.String(),
		Error:   cause.Error(),
	})
	if err != nil {
		notice = fmt.Sprintf("Morning notification for user %d could not be delivered: %v", rule.OwnerID, cause)
	}
	for _, admin := range d.admins {
		if err := d.messenger.Send(ctx, admin, notice); err != nil {
			log.Error("failed to notify admin", zap.Int64("admin_chat_id", admin), zap.Error(err))
		}
	}

	today := models.DateOf(now, loc)
	if err := d.rules.MarkEscalated(ctx, rule.ID, today); err != nil {
		log.Error("failed to record escalation", zap.Error(err))
	}
	log.Warn("delivery failed, escalated to admins",
		zap.Error(cause),
		zap.Int("admins", len(d.admins)),
	)
	return OutcomeEscalated
}

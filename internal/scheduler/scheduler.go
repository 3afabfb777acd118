package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hray3182/CoachLine/internal/clock"
	"github.com/hray3182/CoachLine/internal/models"
	"github.com/hray3182/CoachLine/internal/repository"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	defaultInterval    = 30 * time.Second
	defaultTickTimeout = 2 * time.Minute
)

type Config struct {
	// Intervals is the poll period of each family; missing entries use 30s.
	Intervals   map[models.Family]time.Duration
	TickTimeout time.Duration
}

// FamilyStats is the last observed state of one poll loop.
type FamilyStats struct {
	Family    models.Family   `json:"family"`
	Interval  string          `json:"interval"`
	Ticks     int             `json:"ticks"`
	LastTick  *time.Time      `json:"last_tick,omitempty"`
	LastDue   int             `json:"last_due"`
	LastError string          `json:"last_error,omitempty"`
	Totals    map[Outcome]int `json:"totals"`
}

// Scheduler runs one poll loop per family. Ticks of the same family never
// overlap; different families run independently.
type Scheduler struct {
	rules       repository.RuleStore
	dispatcher  *Dispatcher
	clock       clock.Clock
	intervals   map[models.Family]time.Duration
	tickTimeout time.Duration
	log         *zap.Logger
	notifyCh    chan struct{}

	locks map[models.Family]*sync.Mutex

	statsMu sync.Mutex
	stats   map[models.Family]*FamilyStats

	runMu     sync.Mutex
	c         *cron.Cron
	runCancel context.CancelFunc
	stopCh    chan struct{}
	loopWG    sync.WaitGroup
}

func New(rules repository.RuleStore, dispatcher *Dispatcher, clk clock.Clock, cfg Config, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	if clk == nil {
		clk = clock.System(time.UTC)
	}
	s := &Scheduler{
		rules:       rules,
		dispatcher:  dispatcher,
		clock:       clk,
		intervals:   make(map[models.Family]time.Duration),
		tickTimeout: cfg.TickTimeout,
		log:         log.With(zap.String("component", "scheduler")),
		notifyCh:    make(chan struct{}, 1),
		locks:       make(map[models.Family]*sync.Mutex),
		stats:       make(map[models.Family]*FamilyStats),
	}
	if s.tickTimeout <= 0 {
		s.tickTimeout = defaultTickTimeout
	}
	for _, f := range models.Families() {
		interval := cfg.Intervals[f]
		if interval <= 0 {
			interval = defaultInterval
		}
		s.intervals[f] = interval
		s.locks[f] = &sync.Mutex{}
		s.stats[f] = &FamilyStats{Family: f, Interval: interval.String(), Totals: make(map[Outcome]int)}
	}
	return s
}

// Notify triggers an immediate pass over every family. Non-blocking if a
// pass is already pending.
func (s *Scheduler) Notify() {
	select {
	case s.notifyCh <- struct{}{}:
	default:
		// Channel already has a pending notification, skip
	}
}

// Start schedules the poll loops and returns. Running ticks keep their
// context until Stop gives up waiting for them.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.c != nil {
		return errors.New("scheduler already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	cl := cronLogger{l: s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(s.clock.Location()),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	for _, f := range models.Families() {
		family := f
		spec := fmt.Sprintf("@every %s", s.intervals[family])
		if _, err := c.AddFunc(spec, func() { s.runTick(runCtx, family) }); err != nil {
			cancel()
			return fmt.Errorf("schedule %s: %w", family, err)
		}
	}

	s.c = c
	s.runCancel = cancel
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh

	s.loopWG.Add(1)
	go func() {
		defer s.loopWG.Done()
		// First pass right away, then on demand.
		s.runAll(runCtx)
		for {
			select {
			case <-stopCh:
				return
			case <-s.notifyCh:
				s.log.Debug("scheduler triggered by notification")
				s.runAll(runCtx)
			}
		}
	}()

	c.Start()
	s.log.Info("scheduler started",
		zap.String("tz", s.clock.Location().String()),
		zap.Int("families", len(s.intervals)),
	)
	return nil
}

// Stop halts the poll loops and waits for in-flight ticks. If ctx expires
// first the ticks are cancelled and ctx's error is returned.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.runMu.Lock()
	c, cancel, stopCh := s.c, s.runCancel, s.stopCh
	s.c, s.runCancel, s.stopCh = nil, nil, nil
	s.runMu.Unlock()
	if c == nil {
		return nil
	}
	defer cancel()

	close(stopCh)
	cronDone := c.Stop().Done()
	loopDone := make(chan struct{})
	go func() {
		s.loopWG.Wait()
		close(loopDone)
	}()

	for _, done := range []<-chan struct{}{cronDone, loopDone} {
		select {
		case <-done:
		case <-ctx.Done():
			s.log.Warn("scheduler stop timed out, cancelling running ticks")
			return ctx.Err()
		}
	}
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) runAll(ctx context.Context) {
	for _, f := range models.Families() {
		s.runTick(ctx, f)
	}
}

func (s *Scheduler) runTick(ctx context.Context, family models.Family) {
	ctx, cancel := context.WithTimeout(ctx, s.tickTimeout)
	defer cancel()
	if _, err := s.Tick(ctx, family); err != nil {
		s.log.Error("tick failed", zap.String("family", string(family)), zap.Error(err))
	}
}

// Tick runs one poll of family: select its due rules and dispatch them.
// A store error aborts the tick; the rules are picked up next time.
func (s *Scheduler) Tick(ctx context.Context, family models.Family) (Report, error) {
	lock, ok := s.locks[family]
	if !ok {
		return Report{}, fmt.Errorf("unknown family %q", family)
	}
	lock.Lock()
	defer lock.Unlock()

	now := s.clock.Now()
	rules, err := s.rules.FindDueByKinds(ctx, now, family.Kinds())
	if err != nil {
		s.record(family, now, Report{}, err)
		return Report{}, fmt.Errorf("find due %s: %w", family, err)
	}
	if len(rules) == 0 {
		s.record(family, now, Report{}, nil)
		return Report{}, nil
	}

	tickID := uuid.NewString()
	s.log.Debug("tick",
		zap.String("tick_id", tickID),
		zap.String("family", string(family)),
		zap.Int("due", len(rules)),
	)
	report := s.dispatcher.DispatchAll(ctx, rules)
	s.record(family, now, report, nil)
	s.log.Info("tick finished",
		zap.String("tick_id", tickID),
		zap.String("family", string(family)),
		zap.Int("due", report.Due),
		zap.Int("delivered", report.Count(OutcomeDelivered)),
		zap.Int("retry", report.Count(OutcomeRetry)),
		zap.Int("escalated", report.Count(OutcomeEscalated)),
		zap.Int("skipped", report.Count(OutcomeSkipped)),
	)
	return report, nil
}

func (s *Scheduler) record(family models.Family, at time.Time, report Report, err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	st := s.stats[family]
	st.Ticks++
	st.LastTick = &at
	st.LastDue = report.Due
	st.LastError = ""
	if err != nil {
		st.LastError = err.Error()
	}
	for o, n := range report.Outcomes {
		st.Totals[o] += n
	}
}

// Snapshot returns a copy of the per-family stats in family order.
func (s *Scheduler) Snapshot() []FamilyStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()

	out := make([]FamilyStats, 0, len(s.stats))
	for _, f := range models.Families() {
		st := *s.stats[f]
		st.Totals = make(map[Outcome]int, len(s.stats[f].Totals))
		for o, n := range s.stats[f].Totals {
			st.Totals[o] = n
		}
		if st.LastTick != nil {
			t := *st.LastTick
			st.LastTick = &t
		}
		out = append(out, st)
	}
	return out
}

// cronLogger routes robfig/cron logs to zap.
type cronLogger struct {
	l *zap.SugaredLogger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "error", err)...)
}

package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hray3182/CoachLine/internal/models"
)

// storeFactory opens an empty store for one contract case.
type storeFactory func(t *testing.T) Store

// runStoreContract runs the behaviour every Store backend must share.
func runStoreContract(t *testing.T, open storeFactory) {
	cases := []struct {
		name string
		run  func(t *testing.T, s Store)
	}{
		{"FindDue", contractFindDue},
		{"FindDueByKinds", contractFindDueByKinds},
		{"MarkDelivered", contractMarkDelivered},
		{"MarkEscalatedKeepsRuleDue", contractMarkEscalatedKeepsRuleDue},
		{"UpsertReplacesPerKind", contractUpsertReplacesPerKind},
		{"CustomRulesAndCascadeDelete", contractCustomRulesAndCascadeDelete},
		{"ToggleAndReschedule", contractToggleAndReschedule},
		{"MarkSent", contractMarkSent},
		{"UserDirectory", contractUserDirectory},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.run(t, open(t))
		})
	}
}

var base = time.Date(2025, 3, 5, 6, 0, 0, 0, time.UTC)

func morningRule(owner int64, next time.Time) *models.NotificationRule {
	return &models.NotificationRule{
		OwnerID:       owner,
		Kind:          models.KindMorning,
		TimeOfDay:     models.TimeOfDay{Hour: 8},
		Periodicity:   models.Daily(),
		NextExecution: next,
		Active:        true,
	}
}

func customRule(owner int64, name string, next time.Time) *models.NotificationRule {
	return &models.NotificationRule{
		OwnerID:       owner,
		Kind:          models.KindCustom,
		TimeOfDay:     models.TimeOfDay{Hour: 19, Minute: 30},
		Periodicity:   models.SpecificDays(time.Monday, time.Thursday),
		NextExecution: next,
		Active:        true,
		Custom:        &models.CustomContent{Name: name, MessageBody: "drink water"},
	}
}

func ids(rules []models.NotificationRule) map[int64]bool {
	out := make(map[int64]bool, len(rules))
	for _, r := range rules {
		out[r.ID] = true
	}
	return out
}

func contractFindDue(t *testing.T, s Store) {
	ctx := context.Background()

	due := morningRule(1, base.Add(-time.Minute))
	future := morningRule(2, base.Add(time.Hour))
	inactive := morningRule(3, base.Add(-time.Hour))
	inactive.Active = false
	sent := &models.NotificationRule{
		OwnerID: 4, Kind: models.KindStopTraining, NextExecution: base.Add(-time.Hour), Active: true, Sent: true,
	}
	exact := customRule(5, "water", base)

	for _, r := range []*models.NotificationRule{due, future, inactive, sent, exact} {
		if err := s.Create(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.Kind, err)
		}
	}

	first, err := s.FindDue(ctx, base)
	if err != nil {
		t.Fatalf("FindDue: %v", err)
	}
	got := ids(first)
	if len(got) != 2 || !got[due.ID] || !got[exact.ID] {
		t.Fatalf("FindDue = %v, want rules %d and %d", got, due.ID, exact.ID)
	}

	second, err := s.FindDue(ctx, base)
	if err != nil {
		t.Fatalf("FindDue again: %v", err)
	}
	if len(second) != len(first) {
		t.Fatalf("FindDue is not idempotent: %d then %d", len(first), len(second))
	}

	for _, r := range first {
		if r.ID == exact.ID {
			if r.Custom == nil || r.Custom.Name != "water" || r.Custom.MessageBody != "drink water" {
				t.Fatalf("custom content not loaded: %+v", r.Custom)
			}
			if r.Periodicity.String() != "days:1,4" || r.TimeOfDay.String() != "19:30" {
				t.Fatalf("schedule not decoded: %s %s", r.TimeOfDay, r.Periodicity)
			}
		}
	}
}

func contractFindDueByKinds(t *testing.T, s Store) {
	ctx := context.Background()

	m := morningRule(1, base.Add(-time.Minute))
	c := customRule(1, "stretch", base.Add(-time.Minute))
	pre := &models.NotificationRule{OwnerID: 1, Kind: models.KindPreTrainingReminder, TimeOfDay: models.TimeOfDay{Hour: 18}, NextExecution: base.Add(-time.Minute), Active: true}
	for _, r := range []*models.NotificationRule{m, c, pre} {
		if err := s.Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	rules, err := s.FindDueByKinds(ctx, base, models.FamilyPreTraining.Kinds())
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 1 || rules[0].ID != pre.ID {
		t.Fatalf("pre-training family got %v", ids(rules))
	}

	rules, err = s.FindDueByKinds(ctx, base, []models.Kind{models.KindMorning, models.KindCustom})
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(rules); len(got) != 2 || !got[m.ID] || !got[c.ID] {
		t.Fatalf("morning+custom got %v", got)
	}

	if rules, err := s.FindDueByKinds(ctx, base, nil); err != nil || len(rules) != 0 {
		t.Fatalf("no kinds: %v, %v", rules, err)
	}
}

func contractMarkDelivered(t *testing.T, s Store) {
	ctx := context.Background()

	recurring := morningRule(1, base.Add(-time.Minute))
	oneShot := &models.NotificationRule{OwnerID: 1, Kind: models.KindTrainingReminder, TimeOfDay: models.TimeOfDay{Hour: 6}, NextExecution: base.Add(-time.Minute), Active: true}
	for _, r := range []*models.NotificationRule{recurring, oneShot} {
		if err := s.Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	next := base.Add(24 * time.Hour)
	if err := s.MarkDelivered(ctx, recurring.ID, base, &next); err != nil {
		t.Fatalf("MarkDelivered recurring: %v", err)
	}
	if err := s.MarkDelivered(ctx, oneShot.ID, base, nil); err != nil {
		t.Fatalf("MarkDelivered one-shot: %v", err)
	}

	r, err := s.Get(ctx, recurring.ID)
	if err != nil {
		t.Fatal(err)
	}
	if r.Sent || !r.NextExecution.Equal(next) || r.LastExecution == nil || !r.LastExecution.Equal(base) {
		t.Fatalf("recurring after delivery: sent=%v next=%s last=%v", r.Sent, r.NextExecution, r.LastExecution)
	}

	o, err := s.Get(ctx, oneShot.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !o.Sent || !o.NextExecution.Equal(base.Add(-time.Minute)) {
		t.Fatalf("one-shot after delivery: sent=%v next=%s", o.Sent, o.NextExecution)
	}

	due, err := s.FindDue(ctx, base.Add(48*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(due); got[oneShot.ID] || !got[recurring.ID] {
		t.Fatalf("due after delivery = %v", got)
	}

	err = s.MarkDelivered(ctx, 999, base, nil)
	if !errors.Is(err, ErrNotFound) || !strings.Contains(err.Error(), "rule 999") {
		t.Fatalf("MarkDelivered unknown = %v", err)
	}
	for name, err := range map[string]error{
		"MarkEscalated":    s.MarkEscalated(ctx, 999, base),
		"Reschedule":       s.Reschedule(ctx, 999, models.TimeOfDay{Hour: 9}, base),
		"SetNextExecution": s.SetNextExecution(ctx, 999, base),
		"Delete":           s.Delete(ctx, 999),
	} {
		if !errors.Is(err, ErrNotFound) || !strings.Contains(err.Error(), "rule 999") {
			t.Fatalf("%s unknown = %v", name, err)
		}
	}
}

func contractMarkEscalatedKeepsRuleDue(t *testing.T, s Store) {
	ctx := context.Background()

	r := morningRule(1, base.Add(-time.Minute))
	if err := s.Create(ctx, r); err != nil {
		t.Fatal(err)
	}
	day := models.DateOf(base, time.UTC)
	if err := s.MarkEscalated(ctx, r.ID, day); err != nil {
		t.Fatal(err)
	}

	due, err := s.FindDue(ctx, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(due) != 1 {
		t.Fatalf("escalated rule must stay due, got %d rules", len(due))
	}
	got := due[0]
	if got.EscalatedOn == nil || !models.SameDate(*got.EscalatedOn, day) {
		t.Fatalf("EscalatedOn = %v, want %s", got.EscalatedOn, day)
	}
	if got.Sent || !got.NextExecution.Equal(r.NextExecution) {
		t.Fatal("escalation must not touch sent or next execution")
	}
}

func contractUpsertReplacesPerKind(t *testing.T, s Store) {
	ctx := context.Background()

	first := &models.NotificationRule{OwnerID: 7, Kind: models.KindStopTraining, NextExecution: base, Active: true}
	if err := s.Upsert(ctx, first); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkDelivered(ctx, first.ID, base, nil); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkEscalated(ctx, first.ID, models.DateOf(base, time.UTC)); err != nil {
		t.Fatal(err)
	}

	second := &models.NotificationRule{OwnerID: 7, Kind: models.KindStopTraining, NextExecution: base.Add(2 * time.Hour), Active: true}
	if err := s.Upsert(ctx, second); err != nil {
		t.Fatal(err)
	}
	if second.ID != first.ID {
		t.Fatalf("upsert created a second rule: %d vs %d", second.ID, first.ID)
	}

	got, err := s.Get(ctx, first.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Sent || got.LastExecution != nil || got.EscalatedOn != nil {
		t.Fatalf("upsert did not reset the cycle: %+v", got)
	}
	if !got.NextExecution.Equal(base.Add(2 * time.Hour)) {
		t.Fatalf("next = %s", got.NextExecution)
	}

	dup := morningRule(7, base)
	if err := s.Create(ctx, dup); err != nil {
		t.Fatal(err)
	}
	if err := s.Create(ctx, morningRule(7, base)); err == nil {
		t.Fatal("second morning rule for the same owner must violate the unique index")
	}
}

func contractCustomRulesAndCascadeDelete(t *testing.T, s Store) {
	ctx := context.Background()

	a := customRule(1, "a", base)
	b := customRule(1, "b", base)
	for _, r := range []*models.NotificationRule{a, b} {
		if err := s.Create(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.ListByOwner(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("custom rules per owner = %d, want 2", len(list))
	}

	if err := s.Delete(ctx, a.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get deleted = %v", err)
	}

	rest, err := s.ListByOwner(ctx, 1)
	if err != nil || len(rest) != 1 || rest[0].Custom == nil || rest[0].Custom.Name != "b" {
		t.Fatalf("after delete: %+v, %v", rest, err)
	}
	if err := s.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete twice = %v", err)
	}

	if err := s.Create(ctx, &models.NotificationRule{OwnerID: 1, Kind: models.KindCustom, Periodicity: models.Daily(), NextExecution: base}); err == nil {
		t.Fatal("custom rule without content must be rejected")
	}
}

func contractToggleAndReschedule(t *testing.T, s Store) {
	ctx := context.Background()

	r := morningRule(1, base)
	if err := s.Create(ctx, r); err != nil {
		t.Fatal(err)
	}

	active, err := s.ToggleActive(ctx, r.ID)
	if err != nil || active {
		t.Fatalf("ToggleActive = %v, %v; want false", active, err)
	}
	if due, _ := s.FindDue(ctx, base); len(due) != 0 {
		t.Fatal("inactive rule selected as due")
	}
	if active, _ = s.ToggleActive(ctx, r.ID); !active {
		t.Fatal("second toggle should re-activate")
	}
	if _, err := s.ToggleActive(ctx, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("ToggleActive unknown = %v", err)
	}

	next := base.Add(90 * time.Minute)
	if err := s.Reschedule(ctx, r.ID, models.TimeOfDay{Hour: 9, Minute: 30}, next); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.TimeOfDay.String() != "09:30" || !got.NextExecution.Equal(next) {
		t.Fatalf("reschedule: %s %s", got.TimeOfDay, got.NextExecution)
	}

	if err := s.SetNextExecution(ctx, r.ID, base); err != nil {
		t.Fatal(err)
	}
	active2, err := s.ListActive(ctx)
	if err != nil || len(active2) != 1 || !active2[0].NextExecution.Equal(base) {
		t.Fatalf("ListActive = %v, %v", active2, err)
	}
}

func contractMarkSent(t *testing.T, s Store) {
	ctx := context.Background()

	stop := &models.NotificationRule{OwnerID: 3, Kind: models.KindStopTraining, NextExecution: base, Active: true}
	if err := s.Upsert(ctx, stop); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkSent(ctx, 3, models.KindStopTraining); err != nil {
		t.Fatal(err)
	}
	if due, _ := s.FindDue(ctx, base.Add(24*time.Hour)); len(due) != 0 {
		t.Fatal("retired rule still due")
	}
	if err := s.MarkSent(ctx, 99, models.KindStopTraining); err != nil {
		t.Fatalf("MarkSent without a rule = %v", err)
	}
}

func contractUserDirectory(t *testing.T, s Store) {
	ctx := context.Background()

	if _, err := s.Resolve(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve unknown = %v", err)
	}

	u := &models.User{UserID: 1, ChatID: 100, FullName: "Sam"}
	if err := s.Register(ctx, u); err != nil {
		t.Fatal(err)
	}
	chat, err := s.Resolve(ctx, 1)
	if err != nil || chat != 100 {
		t.Fatalf("Resolve = %d, %v", chat, err)
	}

	if err := s.Deactivate(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.Deactivate(ctx, 42); !errors.Is(err, ErrNotFound) || !strings.Contains(err.Error(), "user 42") {
		t.Fatalf("Deactivate unknown = %v", err)
	}
	if _, err := s.Resolve(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Resolve inactive = %v", err)
	}

	u.ChatID = 200
	if err := s.Register(ctx, u); err != nil {
		t.Fatal(err)
	}
	if chat, _ := s.Resolve(ctx, 1); chat != 200 {
		t.Fatalf("re-register chat = %d", chat)
	}
}

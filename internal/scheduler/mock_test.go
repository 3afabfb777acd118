package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hray3182/CoachLine/internal/models"
	"github.com/hray3182/CoachLine/internal/repository"
)

// ── Mock rule store ──

type mockStore struct {
	mu      sync.Mutex
	rules   map[int64]*models.NotificationRule
	chats   map[int64]int64
	nextID  int64
	findErr error
	markErr error
}

func newMockStore() *mockStore {
	return &mockStore{rules: make(map[int64]*models.NotificationRule), chats: make(map[int64]int64)}
}

func (m *mockStore) add(rule models.NotificationRule) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	rule.ID = m.nextID
	m.rules[rule.ID] = &rule
	return rule.ID
}

func (m *mockStore) get(id int64) models.NotificationRule {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rules[id]
}

func (m *mockStore) FindDue(ctx context.Context, now time.Time) ([]models.NotificationRule, error) {
	return m.FindDueByKinds(ctx, now, models.Kinds())
}

func (m *mockStore) FindDueByKinds(_ context.Context, now time.Time, kinds []models.Kind) ([]models.NotificationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	want := make(map[models.Kind]bool)
	for _, k := range kinds {
		want[k] = true
	}
	var out []models.NotificationRule
	for id := int64(1); id <= m.nextID; id++ {
		r, ok := m.rules[id]
		if !ok || !r.Active || r.Sent || r.NextExecution.After(now) || !want[r.Kind] {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

func (m *mockStore) MarkDelivered(_ context.Context, id int64, at time.Time, next *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.markErr != nil {
		return m.markErr
	}
	r, ok := m.rules[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.LastExecution = &at
	if next != nil {
		r.NextExecution = *next
		r.Sent = false
	} else {
		r.Sent = true
	}
	return nil
}

func (m *mockStore) MarkEscalated(_ context.Context, id int64, date time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.EscalatedOn = &date
	return nil
}

func (m *mockStore) ToggleActive(_ context.Context, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	r.Active = !r.Active
	return r.Active, nil
}

func (m *mockStore) Reschedule(_ context.Context, id int64, tod models.TimeOfDay, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.TimeOfDay, r.NextExecution, r.Sent = tod, next, false
	return nil
}

func (m *mockStore) Create(_ context.Context, rule *models.NotificationRule) error {
	rule.ID = m.add(*rule)
	return nil
}

func (m *mockStore) Upsert(ctx context.Context, rule *models.NotificationRule) error {
	m.mu.Lock()
	for id, r := range m.rules {
		if r.OwnerID == rule.OwnerID && r.Kind == rule.Kind && rule.Kind != models.KindCustom {
			copied := *rule
			copied.ID, copied.Sent, copied.LastExecution, copied.EscalatedOn = id, false, nil, nil
			m.rules[id] = &copied
			rule.ID = id
			m.mu.Unlock()
			return nil
		}
	}
	m.mu.Unlock()
	return m.Create(ctx, rule)
}

func (m *mockStore) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rules[id]; !ok {
		return repository.ErrNotFound
	}
	delete(m.rules, id)
	return nil
}

func (m *mockStore) Get(_ context.Context, id int64) (*models.NotificationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	copied := *r
	return &copied, nil
}

func (m *mockStore) ListByOwner(_ context.Context, ownerID int64) ([]models.NotificationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NotificationRule
	for id := int64(1); id <= m.nextID; id++ {
		if r, ok := m.rules[id]; ok && r.OwnerID == ownerID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockStore) ListActive(_ context.Context) ([]models.NotificationRule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.NotificationRule
	for id := int64(1); id <= m.nextID; id++ {
		if r, ok := m.rules[id]; ok && r.Active {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *mockStore) SetNextExecution(_ context.Context, id int64, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	if !ok {
		return repository.ErrNotFound
	}
	r.NextExecution = next
	return nil
}

func (m *mockStore) MarkSent(_ context.Context, ownerID int64, kind models.Kind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.OwnerID == ownerID && r.Kind == kind {
			r.Sent = true
		}
	}
	return nil
}

func (m *mockStore) Resolve(_ context.Context, ownerID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chat, ok := m.chats[ownerID]
	if !ok {
		return 0, fmt.Errorf("user %d: %w", ownerID, repository.ErrNotFound)
	}
	return chat, nil
}

func (m *mockStore) Register(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chats[u.UserID] = u.ChatID
	return nil
}

func (m *mockStore) Deactivate(_ context.Context, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.chats, userID)
	return nil
}

// ── Mock messenger ──

var errBlocked = errors.New("bot was blocked by the user")

type sentMessage struct {
	ChatID int64
	Text   string
}

type mockMessenger struct {
	mu      sync.Mutex
	sent    []sentMessage
	failFor map[int64]error
	panicOn map[int64]bool
}

func newMockMessenger() *mockMessenger {
	return &mockMessenger{failFor: make(map[int64]error), panicOn: make(map[int64]bool)}
}

func (m *mockMessenger) Send(_ context.Context, chatID int64, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.panicOn[chatID] {
		panic("send exploded")
	}
	if err := m.failFor[chatID]; err != nil {
		return err
	}
	m.sent = append(m.sent, sentMessage{ChatID: chatID, Text: text})
	return nil
}

func (m *mockMessenger) to(chatID int64) []sentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentMessage
	for _, s := range m.sent {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}

func (m *mockMessenger) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

// ── Mock motivator ──

type mockMotivator struct {
	line string
	err  error
}

func (m mockMotivator) Motivation(context.Context) (string, error) {
	return m.line, m.err
}

type countingMotivator struct {
	mu    sync.Mutex
	calls int
}

func (m *countingMotivator) Motivation(context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	return "Keep moving.", nil
}

func (m *countingMotivator) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

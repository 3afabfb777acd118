package models

import "time"

type NotificationRule struct {
	ID            int64       `json:"id"`
	OwnerID       int64       `json:"owner_id"`
	Kind          Kind        `json:"kind"`
	TimeOfDay     TimeOfDay   `json:"time_of_day"`
	Periodicity   Periodicity `json:"periodicity"`
	NextExecution time.Time   `json:"next_execution"`
	LastExecution *time.Time  `json:"last_execution"`
	Active        bool        `json:"active"`
	Sent          bool        `json:"sent"`
	// EscalatedOn is a calendar date (midnight UTC carrying the local date).
	EscalatedOn *time.Time     `json:"escalated_on"`
	Custom      *CustomContent `json:"custom,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// CustomContent is the user-authored payload of a custom rule.
type CustomContent struct {
	Name        string    `json:"name"`
	MessageBody string    `json:"message_body"`
	CreatedAt   time.Time `json:"created_at"`
}

// IsRecurring returns true if the rule is re-armed after each delivery.
func (r *NotificationRule) IsRecurring() bool {
	return r.Kind.Recurring()
}

// EscalatedToday reports whether an admin warning was already issued for
// the local date of now.
func (r *NotificationRule) EscalatedToday(now time.Time, loc *time.Location) bool {
	if r.EscalatedOn == nil {
		return false
	}
	return SameDate(*r.EscalatedOn, DateOf(now, loc))
}

// DateOf returns the local calendar date of t as midnight UTC.
func DateOf(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// SameDate compares two values produced by DateOf.
func SameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

type User struct {
	UserID   int64  `json:"user_id"`
	ChatID   int64  `json:"chat_id"`
	FullName string `json:"full_name"`
	Active   bool   `json:"active"`
}

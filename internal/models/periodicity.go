package models

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a local wall-clock time.
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	tod := TimeOfDay{Hour: hour, Minute: minute}
	if err := tod.Validate(); err != nil {
		return TimeOfDay{}, err
	}
	return tod, nil
}

func (t TimeOfDay) Validate() error {
	if t.Hour < 0 || t.Hour > 23 || t.Minute < 0 || t.Minute > 59 {
		return fmt.Errorf("%w: %02d:%02d", ErrInvalidTime, t.Hour, t.Minute)
	}
	return nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// On returns the instant the time of day falls on for the local date of day.
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// TimeOfDayOf extracts the local wall-clock time of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay{Hour: t.Hour(), Minute: t.Minute()}
}

type PeriodType string

const (
	PeriodDaily        PeriodType = "daily"
	PeriodWeekly       PeriodType = "weekly"
	PeriodMonthly      PeriodType = "monthly"
	PeriodSpecificDays PeriodType = "days"
)

// Periodicity tells how often a recurring rule fires. Only the fields
// relevant to Type are meaningful.
type Periodicity struct {
	Type       PeriodType     `json:"type"`
	Weekday    time.Weekday   `json:"weekday,omitempty"`
	DayOfMonth int            `json:"day_of_month,omitempty"`
	Days       []time.Weekday `json:"days,omitempty"`
}

func Daily() Periodicity {
	return Periodicity{Type: PeriodDaily}
}

func Weekly(wd time.Weekday) Periodicity {
	return Periodicity{Type: PeriodWeekly, Weekday: wd}
}

func Monthly(day int) Periodicity {
	return Periodicity{Type: PeriodMonthly, DayOfMonth: day}
}

// SpecificDays normalizes days to a sorted set without duplicates.
func SpecificDays(days ...time.Weekday) Periodicity {
	set := slices.Clone(days)
	slices.Sort(set)
	return Periodicity{Type: PeriodSpecificDays, Days: slices.Compact(set)}
}

func (p Periodicity) Validate() error {
	switch p.Type {
	case PeriodDaily:
		return nil
	case PeriodWeekly:
		if !validWeekday(p.Weekday) {
			return fmt.Errorf("%w: weekday %d", ErrInvalidPeriodicity, p.Weekday)
		}
		return nil
	case PeriodMonthly:
		if p.DayOfMonth < 1 || p.DayOfMonth > 31 {
			return fmt.Errorf("%w: day of month %d", ErrInvalidPeriodicity, p.DayOfMonth)
		}
		return nil
	case PeriodSpecificDays:
		if len(p.Days) == 0 {
			return fmt.Errorf("%w: empty day set", ErrInvalidPeriodicity)
		}
		for _, d := range p.Days {
			if !validWeekday(d) {
				return fmt.Errorf("%w: weekday %d", ErrInvalidPeriodicity, d)
			}
		}
		return nil
	default:
		return fmt.Errorf("%w: type %q", ErrInvalidPeriodicity, p.Type)
	}
}

// String encodes the periodicity for storage: "daily", "weekly:1",
// "monthly:31", "days:1,4". The zero value encodes to "".
func (p Periodicity) String() string {
	switch p.Type {
	case PeriodDaily:
		return string(PeriodDaily)
	case PeriodWeekly:
		return fmt.Sprintf("%s:%d", PeriodWeekly, p.Weekday)
	case PeriodMonthly:
		return fmt.Sprintf("%s:%d", PeriodMonthly, p.DayOfMonth)
	case PeriodSpecificDays:
		parts := make([]string, len(p.Days))
		for i, d := range p.Days {
			parts[i] = strconv.Itoa(int(d))
		}
		return fmt.Sprintf("%s:%s", PeriodSpecificDays, strings.Join(parts, ","))
	default:
		return ""
	}
}

func ParsePeriodicity(s string) (Periodicity, error) {
	kind, arg, _ := strings.Cut(strings.TrimSpace(s), ":")
	var p Periodicity
	switch PeriodType(kind) {
	case PeriodDaily:
		if arg != "" {
			return Periodicity{}, fmt.Errorf("%w: %q", ErrInvalidPeriodicity, s)
		}
		p = Daily()
	case PeriodWeekly:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return Periodicity{}, fmt.Errorf("%w: %q", ErrInvalidPeriodicity, s)
		}
		p = Weekly(time.Weekday(n))
	case PeriodMonthly:
		n, err := strconv.Atoi(arg)
		if err != nil {
			return Periodicity{}, fmt.Errorf("%w: %q", ErrInvalidPeriodicity, s)
		}
		p = Monthly(n)
	case PeriodSpecificDays:
		var days []time.Weekday
		for _, part := range strings.Split(arg, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				return Periodicity{}, fmt.Errorf("%w: %q", ErrInvalidPeriodicity, s)
			}
			days = append(days, time.Weekday(n))
		}
		p = SpecificDays(days...)
	default:
		return Periodicity{}, fmt.Errorf("%w: %q", ErrInvalidPeriodicity, s)
	}
	if err := p.Validate(); err != nil {
		return Periodicity{}, err
	}
	return p, nil
}

func validWeekday(d time.Weekday) bool {
	return d >= time.Sunday && d <= time.Saturday
}

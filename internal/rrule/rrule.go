package rrule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hray3182/CoachLine/internal/models"
	"github.com/teambition/rrule-go"
)

// lastShortMonthDay is the highest day number every month has.
const lastShortMonthDay = 28

var weekdays = map[time.Weekday]rrule.Weekday{
	time.Monday:    rrule.MO,
	time.Tuesday:   rrule.TU,
	time.Wednesday: rrule.WE,
	time.Thursday:  rrule.TH,
	time.Friday:    rrule.FR,
	time.Saturday:  rrule.SA,
	time.Sunday:    rrule.SU,
}

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "MO",
	time.Tuesday:   "TU",
	time.Wednesday: "WE",
	time.Thursday:  "TH",
	time.Friday:    "FR",
	time.Saturday:  "SA",
	time.Sunday:    "SU",
}

// ComputeNext returns the first occurrence of tod under p that is strictly
// after now, as an absolute time in loc. Occurrences are built from local
// calendar dates, so a daily rule keeps its wall-clock time across DST
// transitions.
func ComputeNext(tod models.TimeOfDay, p models.Periodicity, now time.Time, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if err := tod.Validate(); err != nil {
		return time.Time{}, err
	}

	rule, err := build(tod, p, now, loc)
	if err != nil {
		return time.Time{}, err
	}

	next := rule.After(now, false)
	if next.IsZero() {
		return time.Time{}, fmt.Errorf("%w: no occurrence after %s", models.ErrInvalidPeriodicity, now.Format(time.RFC3339))
	}
	return next, nil
}

func build(tod models.TimeOfDay, p models.Periodicity, now time.Time, loc *time.Location) (*rrule.RRule, error) {
	opt, err := options(p)
	if err != nil {
		return nil, err
	}
	// Anchor on today so the search starts at the current local date.
	opt.Dtstart = tod.On(now, loc)
	opt.Interval = 1
	opt.Byhour = []int{tod.Hour}
	opt.Byminute = []int{tod.Minute}
	opt.Bysecond = []int{0}

	rule, err := rrule.NewRRule(opt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPeriodicity, err)
	}
	return rule, nil
}

func options(p models.Periodicity) (rrule.ROption, error) {
	if err := p.Validate(); err != nil {
		return rrule.ROption{}, err
	}

	switch p.Type {
	case models.PeriodDaily:
		return rrule.ROption{Freq: rrule.DAILY}, nil
	case models.PeriodWeekly:
		return rrule.ROption{Freq: rrule.WEEKLY, Byweekday: []rrule.Weekday{weekdays[p.Weekday]}}, nil
	case models.PeriodSpecificDays:
		days := make([]rrule.Weekday, 0, len(p.Days))
		for _, d := range p.Days {
			days = append(days, weekdays[d])
		}
		return rrule.ROption{Freq: rrule.WEEKLY, Byweekday: days}, nil
	case models.PeriodMonthly:
		// Days past 28 clip to the last day the month has: pick the last
		// existing day among d's candidates.
		days, setpos := monthDays(p.DayOfMonth)
		return rrule.ROption{Freq: rrule.MONTHLY, Bymonthday: days, Bysetpos: setpos}, nil
	}
	return rrule.ROption{}, fmt.Errorf("%w: type %q", models.ErrInvalidPeriodicity, p.Type)
}

func monthDays(d int) ([]int, []int) {
	if d <= lastShortMonthDay {
		return []int{d}, nil
	}
	days := make([]int, 0, d-lastShortMonthDay+1)
	for day := lastShortMonthDay; day <= d; day++ {
		days = append(days, day)
	}
	return days, []int{-1}
}

// ToRRule renders the recurrence as an RFC 5545 RRULE string.
func ToRRule(tod models.TimeOfDay, p models.Periodicity) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}

	var parts []string
	switch p.Type {
	case models.PeriodDaily:
		parts = append(parts, "FREQ=DAILY")
	case models.PeriodWeekly:
		parts = append(parts, "FREQ=WEEKLY", "BYDAY="+weekdayCodes[p.Weekday])
	case models.PeriodSpecificDays:
		codes := make([]string, len(p.Days))
		for i, d := range p.Days {
			codes[i] = weekdayCodes[d]
		}
		parts = append(parts, "FREQ=WEEKLY", "BYDAY="+strings.Join(codes, ","))
	case models.PeriodMonthly:
		days, setpos := monthDays(p.DayOfMonth)
		nums := make([]string, len(days))
		for i, d := range days {
			nums[i] = strconv.Itoa(d)
		}
		parts = append(parts, "FREQ=MONTHLY", "BYMONTHDAY="+strings.Join(nums, ","))
		if len(setpos) > 0 {
			parts = append(parts, "BYSETPOS=-1")
		}
	}
	parts = append(parts, fmt.Sprintf("BYHOUR=%d", tod.Hour), fmt.Sprintf("BYMINUTE=%d", tod.Minute))
	return strings.Join(parts, ";"), nil
}

// Describe returns a short English description of p.
func Describe(p models.Periodicity) string {
	switch p.Type {
	case models.PeriodDaily:
		return "every day"
	case models.PeriodWeekly:
		return "every " + p.Weekday.String()
	case models.PeriodMonthly:
		if p.DayOfMonth > lastShortMonthDay {
			return fmt.Sprintf("monthly on day %d (or the last day of shorter months)", p.DayOfMonth)
		}
		return fmt.Sprintf("monthly on day %d", p.DayOfMonth)
	case models.PeriodSpecificDays:
		names := make([]string, len(p.Days))
		for i, d := range p.Days {
			names[i] = d.String()[:3]
		}
		return "every " + strings.Join(names, ", ")
	}
	return "unknown schedule"
}

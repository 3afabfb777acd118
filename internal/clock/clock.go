package clock

import (
	"sync"
	"time"
)

// Clock supplies the current instant and the configured local timezone.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type systemClock struct {
	loc *time.Location
}

// System returns a wall clock reporting times in loc.
func System(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return systemClock{loc: loc}
}

func (c systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c systemClock) Location() *time.Location {
	return c.loc
}

// Manual is a settable clock for tests and replays.
type Manual struct {
	mu  sync.Mutex
	now time.Time
	loc *time.Location
}

// Fixed returns a Manual clock frozen at t, using t's location.
func Fixed(t time.Time) *Manual {
	return &Manual{now: t, loc: t.Location()}
}

func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now.In(c.loc)
}

func (c *Manual) Location() *time.Location {
	return c.loc
}

func (c *Manual) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *Manual) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now.In(c.loc)
}

// LoadLocation resolves an IANA name, falling back to UTC on "".
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

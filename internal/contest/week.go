// Package contest runs the weekly meme contest: submissions and votes,
// one of each per user per contest week.
package contest

import "time"

// Week identifies a contest week. Number is ceil(day_of_year / 7), so week 1
// always starts on January 1st and the last week of a year may be one or
// two days long. The year is part of the key so week numbers do not collide
// across years.
type Week struct {
	Year   int
	Number int
}

// WeekOf returns the contest week containing t in loc.
func WeekOf(t time.Time, loc *time.Location) Week {
	if loc != nil {
		t = t.In(loc)
	}
	return Week{
		Year:   t.Year(),
		Number: (t.YearDay() + 6) / 7,
	}
}

// Clock returns the current contest week.
type Clock struct {
	loc *time.Location
	now func() time.Time
}

func NewClock(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc, now: time.Now}
}

func (c *Clock) Current() Week {
	return WeekOf(c.now(), c.loc)
}

package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// DueStatus is the presentation bucket of a bill relative to today.
type DueStatus int

const (
	Normal DueStatus = iota
	Overdue
	SoonDue
)

// soonDueDays is the lead time, in days, from which a bill counts as SoonDue.
const soonDueDays = 3

func (s DueStatus) String() string {
	switch s {
	case Overdue:
		return "overdue"
	case SoonDue:
		return "soon_due"
	case Normal:
		return "normal"
	default:
		return fmt.Sprintf("DueStatus(%d)", int(s))
	}
}

func (s DueStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *DueStatus) UnmarshalJSON(data []byte) error {
	var v string
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch v {
	case "overdue":
		*s = Overdue
	case "soon_due":
		*s = SoonDue
	case "normal":
		*s = Normal
	default:
		return fmt.Errorf("unknown due status: %q", v)
	}
	return nil
}

// Classify buckets a due date against today. Only the calendar day of each
// argument is considered.
//
// A bill is Overdue when due is before today, SoonDue when due minus three days
// is still on or after today (so three or more days out, with no upper bound),
// and Normal otherwise, which leaves today and the next two days.
func Classify(due, today time.Time) DueStatus {
	d := truncateDay(due)
	t := truncateDay(today)
	if d.Before(t) {
		return Overdue
	}
	if !d.AddDate(0, 0, -soonDueDays).Before(t) {
		return SoonDue
	}
	return Normal
}

// ClassifyDate is Classify for stored dates. A due date that does not parse
// falls in neither the Overdue nor the SoonDue bucket and is reported Normal.
func ClassifyDate(due, today Date) DueStatus {
	d, err := due.Time()
	if err != nil {
		return Normal
	}
	t, err := today.Time()
	if err != nil {
		return Normal
	}
	return Classify(d, t)
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Clock yields "today" in a fixed location.
type Clock struct {
	Now      func() time.Time
	Location *time.Location
}

// NewClock returns a wall clock for loc. A nil loc means time.Local.
func NewClock(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return Clock{Now: time.Now, Location: loc}
}

// FixedClock always reports the given day.
func FixedClock(today Date) Clock {
	t, err := today.Time()
	if err != nil {
		t = time.Time{}
	}
	return Clock{Now: func() time.Time { return t }, Location: time.UTC}
}

// Today returns the current calendar day.
func (c Clock) Today() Date {
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	loc := c.Location
	if loc == nil {
		loc = time.Local
	}
	return DateOf(now().In(loc))
}

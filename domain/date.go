package domain

import "time"

// DayOf truncates t to midnight UTC of the calendar day t falls on in its
// own location. All interval bounds are compared at this granularity.
func DayOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Today returns the current calendar day in loc as a DayOf value.
func Today(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DayOf(time.Now().In(loc))
}

// ParseDay parses a YYYY-MM-DD string into a DayOf value.
func ParseDay(value string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return time.Time{}, Invalidf("invalid date %q", value)
	}
	return t, nil
}

func dayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := DayOf(*t)
	return &d
}

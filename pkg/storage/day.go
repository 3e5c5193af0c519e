package storage

import "time"

// Day is a calendar day in a fixed time zone.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

func CalendarDay(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// SameDay reports whether a and b fall on the same calendar day in loc.
func SameDay(a, b time.Time, loc *time.Location) bool {
	return CalendarDay(a, loc) == CalendarDay(b, loc)
}

// EpochSeconds converts t to the fractional epoch seconds stored under
// LastUploadTimestampKey.
func EpochSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

func FromEpochSeconds(s float64) time.Time {
	return time.Unix(0, int64(s*float64(time.Second)))
}

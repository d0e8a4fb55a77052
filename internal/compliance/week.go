package compliance

import "time"

// WeekNumber returns the 1-indexed reporting week of t counted from January
// 1st of t's year: days 1-7 are week 1, days 8-14 week 2, and so on.
func WeekNumber(t time.Time) int {
	return (t.YearDay()-1)/7 + 1
}

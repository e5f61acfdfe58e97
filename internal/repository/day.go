package repository

import "time"

// DayStart returns UTC midnight of the day containing ts. Daily swap limits
// reset at this boundary.
func DayStart(ts time.Time) time.Time {
	y, m, d := ts.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

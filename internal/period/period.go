// Package period derives the three month anchors of a report run from the clock.
package period

import (
	"time"

	"cheque-report-service/internal/models"
)

// Clock supplies the current time
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in a fixed location
type SystemClock struct {
	Location *time.Location
}

// Now returns the current time in the clock's location
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns the same instant
type FixedClock struct {
	Time time.Time
}

// Now returns the fixed instant
func (c FixedClock) Now() time.Time {
	return c.Time
}

// Calculate derives the current, previous and pre-previous periods for now.
// Each anchor is the first day of the month containing the day before the next anchor.
func Calculate(now time.Time) models.ReportingPeriods {
	current := models.NewPeriod(now)
	previous := models.NewPeriod(current.Start.AddDate(0, 0, -1))
	prePrevious := models.NewPeriod(previous.Start.AddDate(0, 0, -1))

	return models.ReportingPeriods{
		Current:     current,
		Previous:    previous,
		PrePrevious: prePrevious,
	}
}

// FromClock calculates the reporting periods for the clock's current time
func FromClock(clock Clock) models.ReportingPeriods {
	return Calculate(clock.Now())
}

// ParseAsOf parses a YYYY-MM-DD run date in the given location.
// An empty value returns the zero time and no error.
func ParseAsOf(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if loc == nil {
		loc = time.Local
	}
	return time.ParseInLocation(models.DateLayout, value, loc)
}

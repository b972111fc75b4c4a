package enums

import (
	"fmt"
	"time"
)

// PerformancePeriod selects the window used when counting service responses.
type PerformancePeriod string

const (
	PeriodToday PerformancePeriod = "today"
	PeriodWeek  PerformancePeriod = "week"
	PeriodMonth PerformancePeriod = "month"
	PeriodAll   PerformancePeriod = "all"
)

var validPerformancePeriods = []PerformancePeriod{
	PeriodToday,
	PeriodWeek,
	PeriodMonth,
	PeriodAll,
}

// IsValid reports whether the value is a known PerformancePeriod.
func (p PerformancePeriod) IsValid() bool {
	for _, candidate := range validPerformancePeriods {
		if candidate == p {
			return true
		}
	}
	return false
}

// Since returns the inclusive lower bound of the window, or nil for all time.
func (p PerformancePeriod) Since(now time.Time) *time.Time {
	now = now.UTC()
	var since time.Time
	switch p {
	case PeriodToday:
		since = time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	case PeriodWeek:
		since = now.AddDate(0, 0, -7)
	case PeriodMonth:
		since = now.AddDate(0, -1, 0)
	default:
		return nil
	}
	return &since
}

// ParsePerformancePeriod converts raw input into a PerformancePeriod. Empty
// input defaults to today.
func ParsePerformancePeriod(value string) (PerformancePeriod, error) {
	if value == "" {
		return PeriodToday, nil
	}
	for _, candidate := range validPerformancePeriods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid performance period %q", value)
}

package timeseries

import (
	"fmt"
	"time"
)

// Granularity is the width of one aggregation period.
type Granularity string

const (
	Day     Granularity = "day"
	Week    Granularity = "week"
	Month   Granularity = "month"
	Quarter Granularity = "quarter"
)

// ParseGranularity validates a granularity string.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(s); g {
	case Day, Week, Month, Quarter:
		return g, nil
	}
	return "", fmt.Errorf("unknown granularity %q (want day, week, month or quarter)", s)
}

// Truncate returns the start of the period containing t. Weeks start on Monday.
func Truncate(t time.Time, g Granularity) time.Time {
	y, m, d := t.Date()
	loc := t.Location()
	switch g {
	case Week:
		day := time.Date(y, m, d, 0, 0, 0, 0, loc)
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc)
	case Quarter:
		first := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, first, 1, 0, 0, 0, 0, loc)
	default:
		return time.Date(y, m, d, 0, 0, 0, 0, loc)
	}
}

// Next returns the start of the period following the one starting at start.
func Next(start time.Time, g Granularity) time.Time {
	return Advance(start, g, 1)
}

// Advance moves start by n periods (n may be negative).
func Advance(start time.Time, g Granularity, n int) time.Time {
	switch g {
	case Week:
		return start.AddDate(0, 0, 7*n)
	case Month:
		return start.AddDate(0, n, 0)
	case Quarter:
		return start.AddDate(0, 3*n, 0)
	default:
		return start.AddDate(0, 0, n)
	}
}

// Label formats the period starting at start.
func Label(start time.Time, g Granularity) string {
	switch g {
	case Week:
		y, w := start.ISOWeek()
		return fmt.Sprintf("%d-W%02d", y, w)
	case Month:
		return start.Format("2006-01")
	case Quarter:
		return fmt.Sprintf("%d-Q%d", start.Year(), (int(start.Month())-1)/3+1)
	default:
		return start.Format("2006-01-02")
	}
}

// Duration approximates one period; used only to size lookback windows.
func (g Granularity) Duration() time.Duration {
	switch g {
	case Week:
		return 7 * 24 * time.Hour
	case Month:
		return 30 * 24 * time.Hour
	case Quarter:
		return 91 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

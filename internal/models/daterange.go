package models

import (
	"strings"
	"time"
)

// DateRange is a validated, inclusive analysis period.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// ParseDateRange validates YYYY-MM-DD bounds and the maximum span in days.
func ParseDateRange(start, end string, maxDays int) (DateRange, error) {
	s, err := time.Parse(DateLayout, strings.TrimSpace(start))
	if err != nil {
		return DateRange{}, NewValidationError("start_date", "expected YYYY-MM-DD, got %q", start)
	}
	e, err := time.Parse(DateLayout, strings.TrimSpace(end))
	if err != nil {
		return DateRange{}, NewValidationError("end_date", "expected YYYY-MM-DD, got %q", end)
	}
	if e.Before(s) {
		return DateRange{}, NewValidationError("end_date", "must not be before start_date")
	}
	if maxDays > 0 {
		if days := int(e.Sub(s).Hours() / 24); days > maxDays {
			return DateRange{}, NewValidationError("end_date", "range of %d days exceeds the %d day limit", days, maxDays)
		}
	}
	return DateRange{Start: s, End: e}, nil
}

// String renders the period as "start ~ end".
func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + " ~ " + r.End.Format(DateLayout)
}

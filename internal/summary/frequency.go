package summary

import (
	"fmt"
	"strings"
	"time"

	"github.com/banshee-data/reservoir/internal/reserr"
)

// Frequency selects a resampling axis.
type Frequency int

const (
	// None keeps the stored axis.
	None Frequency = iota
	Day
	Month
	Quarter
	Year
)

func (f Frequency) String() string {
	switch f {
	case None:
		return "none"
	case Day:
		return "day"
	case Month:
		return "month"
	case Quarter:
		return "quarter"
	case Year:
		return "year"
	default:
		return fmt.Sprintf("Frequency(%d)", int(f))
	}
}

// ParseFrequency accepts the names printed by String plus the common
// adjective forms ("daily", "monthly", "quarterly", "yearly"/"annual").
// An empty string means None.
func ParseFrequency(s string) (Frequency, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "raw":
		return None, nil
	case "day", "daily", "d":
		return Day, nil
	case "month", "monthly", "m":
		return Month, nil
	case "quarter", "quarterly", "q":
		return Quarter, nil
	case "year", "yearly", "annual", "y":
		return Year, nil
	}
	return None, fmt.Errorf("unknown frequency %q (valid: none, day, month, quarter, year): %w", s, reserr.ErrMalformed)
}

// periodStart truncates t (UTC) to the start of its calendar period.
func (f Frequency) periodStart(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	switch f {
	case Day:
		return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
	case Quarter:
		qm := time.Month((int(m)-1)/3*3 + 1)
		return time.Date(y, qm, 1, 0, 0, 0, 0, time.UTC)
	case Year:
		return time.Date(y, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// next advances a period start by one period. Starts always fall on day 1
// (or midnight for Day), so AddDate never normalises across months.
func (f Frequency) next(t time.Time) time.Time {
	switch f {
	case Day:
		return t.AddDate(0, 0, 1)
	case Month:
		return t.AddDate(0, 1, 0)
	case Quarter:
		return t.AddDate(0, 3, 0)
	case Year:
		return t.AddDate(1, 0, 0)
	}
	return t
}

// Boundaries returns every calendar period start from the period containing
// first up to last, inclusive.
func (f Frequency) Boundaries(first, last time.Time) []time.Time {
	if f == None || last.Before(first) {
		return nil
	}
	var out []time.Time
	for b := f.periodStart(first); !b.After(last); b = f.next(b) {
		out = append(out, b)
	}
	return out
}

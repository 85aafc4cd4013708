package money

import (
	"time"

	"github.com/shopspring/decimal"
)

var (
	Hundred    = decimal.NewFromInt(100)
	DaysInYear = decimal.NewFromInt(365)
	twelve     = decimal.NewFromInt(12)
)

// RoundCents rounds to 2 decimal places, half away from zero.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent returns base * (rate / 100), unrounded.
func Percent(base, rate decimal.Decimal) decimal.Decimal {
	return base.Mul(rate).Div(Hundred)
}

// AnnualToMonths converts a duration expressed in years to months.
func AnnualToMonths(years int) int {
	return years * 12
}

// YearsFraction returns durationMonths / 12 as a decimal.
func YearsFraction(durationMonths int) decimal.Decimal {
	return decimal.NewFromInt(int64(durationMonths)).Div(twelve)
}

// DateOf strips the time-of-day component.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// dateUTC is the calendar date of t, in t's own location, pinned to a UTC
// midnight. Pinning to UTC keeps day arithmetic exact across DST
// transitions and across times carrying different locations.
func dateUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateAfter reports whether a's calendar date falls after b's.
func DateAfter(a, b time.Time) bool {
	return dateUTC(a).After(dateUTC(b))
}

// DaysBetween counts whole calendar days from one date to another,
// ignoring time-of-day. Returns 0 when to's date is not after from's.
func DaysBetween(from, to time.Time) int {
	f := dateUTC(from)
	t := dateUTC(to)
	if !t.After(f) {
		return 0
	}
	return int(t.Sub(f) / (24 * time.Hour))
}

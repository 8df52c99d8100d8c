package anonymizer

import (
	"fmt"
	"math"
	"time"
)

// ComputeTimepoint computes a study's timepoint label relative to a
// patient's first observed study date (§4.4 step 3): the whole-month
// distance between first and study, snapped to the nearest multiple of six
// when within one month of it, clamped to M00 when the distance rounds to
// zero. Grounded on original_source's _compute_timepoint (months computed
// via a relativedelta-style year/month/day breakdown, average 30.44-day
// month for the day remainder).
func ComputeTimepoint(first, study time.Time) string {
	months := monthsBetween(first, study)
	rounded := int(math.Round(math.Abs(months)))
	if rounded == 0 {
		return "M00"
	}

	nearest6 := 6 * int(math.Round(float64(rounded)/6.0))
	if nearest6 == 0 {
		nearest6 = 6
	}
	if diff := rounded - nearest6; diff <= 1 && diff >= -1 {
		rounded = nearest6
	}
	return fmt.Sprintf("M%02d", rounded)
}

// monthsBetween returns the signed whole-calendar-month distance between
// first and study, plus the fractional remainder from any leftover days
// (divided by the average Gregorian month length), matching
// relativedelta(study, first).years*12 + .months + .days/30.44.
func monthsBetween(first, study time.Time) float64 {
	sign := 1.0
	a, b := first, study
	if b.Before(a) {
		a, b = b, a
		sign = -1.0
	}

	years := b.Year() - a.Year()
	months := int(b.Month()) - int(a.Month())
	days := b.Day() - a.Day()

	if days < 0 {
		months--
		// Days in the month preceding b.
		prevMonthEnd := time.Date(b.Year(), b.Month(), 0, 0, 0, 0, 0, b.Location())
		days += prevMonthEnd.Day()
	}
	if months < 0 {
		years--
		months += 12
	}

	total := float64(years*12+months) + float64(days)/30.44
	return sign * total
}

// Package scheduler decides, every scheduling tick, which miners should be
// running and which should be stopped, so that consumption stays within
// the energy the household is contractually allowed to draw back from the
// grid for the current billing period.
package scheduler

import "time"

// CurrentBillingPeriod returns the [start, end) bounds of the billing
// period containing now, given the contract's anchor month/year and its
// period length in months. It walks forward one period at a time from the
// anchor until it finds the period straddling now, exactly like the
// original's iterative current_biling_period.
func CurrentBillingPeriod(startYear, startMonth, billingPeriodMonths int, now time.Time) (start, end time.Time) {
	start, end = periodBounds(startYear, startMonth, billingPeriodMonths)
	for !end.After(now) {
		start, end = periodBounds(end.Year(), int(end.Month()), billingPeriodMonths)
	}
	return start, end
}

// periodBounds computes a single candidate period starting at
// (year,month) and spanning periodMonths months.
func periodBounds(year, month, periodMonths int) (start, end time.Time) {
	start = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)

	for periodMonths >= 12 {
		year++
		periodMonths -= 12
	}

	month += periodMonths
	for month > 12 {
		year++
		month -= 12
	}

	end = time.Date(year, time.Month(month), 1, 0, 0, 0, 0, time.UTC)
	return start, end
}

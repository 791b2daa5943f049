package recur

import "time"

// Iteration bounds for the monthly and yearly candidate scans. The math
// guarantees a hit well inside these, but a bound keeps the loops finite
// even if it didn't.
const (
	maxMonthScan = 24
	maxYearScan  = 8
)

// NextDue computes the due date of the next occurrence for a completed
// recurring task. currentDue may be nil for tasks without a due date.
// The second return value is false when the rule is nil or no candidate was
// found within the scan bound.
//
// The anchor for the computation is the later of the current due date and
// the completion date: completing a task early keeps the cadence anchored to
// its original due date, while completing it late re-anchors to the
// completion day so the next occurrence is not immediately overdue.
func NextDue(rule *Rule, currentDue *Date, completedOn Date) (Date, bool) {
	if rule == nil {
		return Date{}, false
	}

	anchor := completedOn
	if currentDue != nil && currentDue.After(completedOn) {
		anchor = *currentDue
	}

	switch rule.Freq {
	case FreqDaily:
		return anchor.AddDays(1), true

	case FreqWeekly:
		days := rule.ByWeekday
		if len(days) == 0 {
			days = []int{anchor.ISOWeekday()}
		}
		for i := 1; i <= 7; i++ {
			candidate := anchor.AddDays(i)
			wd := candidate.ISOWeekday()
			for _, d := range days {
				if d == wd {
					return candidate, true
				}
			}
		}

	case FreqMonthly:
		day := rule.ByMonthDay
		if day <= 0 {
			day = anchor.Day
		}
		year, month := anchor.Year, int(anchor.Month)
		for i := 0; i < maxMonthScan; i++ {
			cy := year + (month-1+i)/12
			cm := time.Month((month-1+i)%12 + 1)
			candidate := NewDate(cy, cm, day)
			if candidate.After(anchor) {
				return candidate, true
			}
		}

	case FreqYearly:
		month := rule.ByMonth
		if month < 1 || month > 12 {
			month = int(anchor.Month)
		}
		day := rule.ByMonthDay
		if day <= 0 {
			day = anchor.Day
		}
		for i := 0; i < maxYearScan; i++ {
			candidate := NewDate(anchor.Year+i, time.Month(month), day)
			if candidate.After(anchor) {
				return candidate, true
			}
		}
	}

	return Date{}, false
}

// Package recur implements recurrence rules for repeating tasks and the
// computation of a task's next occurrence once it is completed.
//
// Rules are stored as a small JSON payload in the tasks table:
//
//	{"freq":"daily"}
//	{"freq":"weekly","byweekday":[1..7]}   (Mon=1..Sun=7)
//	{"freq":"monthly","bymonthday":1..31}
//	{"freq":"yearly","bymonth":1..12,"bymonthday":1..31}
//
// This shape is a durable contract: import/export and admin tooling read the
// same payload.
package recur

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Frequency names accepted in the rule payload.
const (
	FreqDaily   = "daily"
	FreqWeekly  = "weekly"
	FreqMonthly = "monthly"
	FreqYearly  = "yearly"
)

var weekdayNames = [8]string{"", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}

// Rule describes when a task repeats, normalized from its stored JSON form.
type Rule struct {
	Freq       string `json:"freq"`
	ByWeekday  []int  `json:"byweekday,omitempty"`
	ByMonth    int    `json:"bymonth,omitempty"`
	ByMonthDay int    `json:"bymonthday,omitempty"`
}

// rawRule tolerates loosely typed numeric fields before normalization.
type rawRule struct {
	Freq       string            `json:"freq"`
	ByWeekday  []json.RawMessage `json:"byweekday"`
	ByMonth    json.RawMessage   `json:"bymonth"`
	ByMonthDay json.RawMessage   `json:"bymonthday"`
}

// Parse decodes and normalizes a rule payload. It returns nil for anything
// that is not a well-formed rule: unknown frequency, non-integer fields, or
// out-of-range month/day values. Callers treat a nil rule as non-recurring;
// a malformed payload never produces a partial rule.
func Parse(raw string) *Rule {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	var data rawRule
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(data.Freq)) {
	case FreqDaily:
		return &Rule{Freq: FreqDaily}

	case FreqWeekly:
		days := make([]int, 0, len(data.ByWeekday))
		seen := map[int]bool{}
		for _, m := range data.ByWeekday {
			n, ok := asInt(m)
			if !ok || n < 1 || n > 7 || seen[n] {
				continue
			}
			seen[n] = true
			days = append(days, n)
		}
		sort.Ints(days)
		return &Rule{Freq: FreqWeekly, ByWeekday: days}

	case FreqMonthly:
		day, ok := asInt(data.ByMonthDay)
		if !ok || day < 1 || day > 31 {
			return nil
		}
		return &Rule{Freq: FreqMonthly, ByMonthDay: day}

	case FreqYearly:
		month, ok := asInt(data.ByMonth)
		if !ok || month < 1 || month > 12 {
			return nil
		}
		day, ok := asInt(data.ByMonthDay)
		if !ok || day < 1 || day > 31 {
			return nil
		}
		return &Rule{Freq: FreqYearly, ByMonth: month, ByMonthDay: day}
	}

	return nil
}

// asInt accepts JSON numbers and digit-only strings.
func asInt(m json.RawMessage) (int, bool) {
	if len(m) == 0 {
		return 0, false
	}
	var n int
	if err := json.Unmarshal(m, &n); err == nil {
		return n, true
	}
	var s string
	if err := json.Unmarshal(m, &s); err == nil {
		n = 0
		if s == "" {
			return 0, false
		}
		for _, r := range s {
			if r < '0' || r > '9' {
				return 0, false
			}
			n = n*10 + int(r-'0')
		}
		return n, true
	}
	return 0, false
}

// Serialize renders the rule as its canonical JSON payload.
func (r *Rule) Serialize() string {
	if r == nil {
		return ""
	}
	b, err := json.Marshal(r)
	if err != nil {
		return ""
	}
	return string(b)
}

// Describe renders a short human label for the rule, e.g. "Weekdays",
// "Monthly (day 15)" or "Yearly (Jun 3)".
func (r *Rule) Describe() string {
	if r == nil {
		return ""
	}

	switch r.Freq {
	case FreqDaily:
		return "Daily"

	case FreqWeekly:
		if len(r.ByWeekday) == 5 && r.ByWeekday[0] == 1 && r.ByWeekday[4] == 5 {
			isWeekdays := true
			for i, d := range r.ByWeekday {
				if d != i+1 {
					isWeekdays = false
					break
				}
			}
			if isWeekdays {
				return "Weekdays"
			}
		}
		if len(r.ByWeekday) == 1 {
			return fmt.Sprintf("Weekly (%s)", weekdayNames[r.ByWeekday[0]])
		}
		return "Weekly"

	case FreqMonthly:
		if r.ByMonthDay >= 1 && r.ByMonthDay <= 31 {
			return fmt.Sprintf("Monthly (day %d)", r.ByMonthDay)
		}
		return "Monthly"

	case FreqYearly:
		if r.ByMonth >= 1 && r.ByMonth <= 12 && r.ByMonthDay >= 1 && r.ByMonthDay <= 31 {
			d := NewDate(time.Now().Year(), time.Month(r.ByMonth), r.ByMonthDay)
			return fmt.Sprintf("Yearly (%s %d)", d.Month.String()[:3], d.Day)
		}
		return "Yearly"
	}

	return ""
}

// FromPreset maps a named preset to a concrete rule anchored on a reference
// date (a task's due date, or today when the task has none). Unknown presets
// and "none" yield nil.
func FromPreset(preset string, ref Date) *Rule {
	switch strings.ToLower(strings.TrimSpace(preset)) {
	case "", "none":
		return nil
	case "daily":
		return &Rule{Freq: FreqDaily}
	case "weekdays":
		return &Rule{Freq: FreqWeekly, ByWeekday: []int{1, 2, 3, 4, 5}}
	case "weekly":
		return &Rule{Freq: FreqWeekly, ByWeekday: []int{ref.ISOWeekday()}}
	case "monthly":
		return &Rule{Freq: FreqMonthly, ByMonthDay: ref.Day}
	case "yearly":
		return &Rule{Freq: FreqYearly, ByMonth: int(ref.Month), ByMonthDay: ref.Day}
	}
	return nil
}

// Package streak computes consecutive-day completion counts from a habit's history.
package streak

import (
	"sort"
	"time"
)

// DateLayout is the calendar-date format used in completion histories.
const DateLayout = "2006-01-02"

// Compute returns the number of consecutive calendar days, ending today or
// yesterday, that appear in history. Order and duplicates in history do not
// matter. Entries that are not valid dates are ignored.
func Compute(history []string, today time.Time) int {
	days := dayNumbers(history)
	if len(days) == 0 {
		return 0
	}
	sort.Sort(sort.Reverse(sort.IntSlice(days)))

	if dayNumber(today)-days[0] > 1 {
		return 0
	}

	count := 1
	for i := 1; i < len(days); i++ {
		gap := days[i-1] - days[i]
		if gap == 0 {
			continue
		}
		if gap > 1 {
			break
		}
		count++
	}
	return count
}

// Toggle adds day to history when absent and removes it when present.
// The result is normalized.
func Toggle(history []string, day string) []string {
	out := make([]string, 0, len(history)+1)
	found := false
	for _, d := range history {
		if d == day {
			found = true
			continue
		}
		out = append(out, d)
	}
	if !found {
		out = append(out, day)
	}
	return Normalize(out)
}

// Normalize returns history deduplicated and sorted ascending. It never returns nil.
func Normalize(history []string) []string {
	seen := make(map[string]struct{}, len(history))
	out := make([]string, 0, len(history))
	for _, d := range history {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}

// Contains reports whether day is recorded in history.
func Contains(history []string, day string) bool {
	for _, d := range history {
		if d == day {
			return true
		}
	}
	return false
}

// Format renders the calendar date of t in DateLayout, in t's own location.
func Format(t time.Time) string {
	return t.Format(DateLayout)
}

func dayNumbers(history []string) []int {
	seen := make(map[int]struct{}, len(history))
	out := make([]int, 0, len(history))
	for _, raw := range history {
		t, err := time.Parse(DateLayout, raw)
		if err != nil {
			continue
		}
		n := dayNumber(t)
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// dayNumber maps the calendar date of t (in its own location) to a day count.
func dayNumber(t time.Time) int {
	y, m, d := t.Date()
	return int(time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / 86400)
}

package orchestrator

import "github.com/warp/overtime-engine/civil"

// ExpandRange returns every date in [start, end] inclusive - used for
// absence decisions and user schedule changes.
func ExpandRange(start, end civil.Date) []civil.Date {
	var out []civil.Date
	start.Range(end, func(d civil.Date) bool {
		out = append(out, d)
		return true
	})
	return out
}

// ExpandSingle wraps one date, used for time-entry and correction
// mutations.
func ExpandSingle(d civil.Date) []civil.Date {
	return []civil.Date{d}
}

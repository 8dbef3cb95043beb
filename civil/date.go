/*
date.go - Fixed civil-timezone date abstraction

PURPOSE:
  Every date the engine reasons about (hire dates, time entries, absence
  ranges, holidays, "today") lives in one tenant-configured civil timezone,
  never UTC midnight. Date narrows to day granularity only: the engine has
  no use for hour/minute resolution anywhere in its domain.

SEE ALSO:
  - clock.go: Now() in the configured zone
  - format.go: signed-hours display helper
*/
package civil

import (
	"fmt"
	"math"
	"time"
)

// Date is a calendar day, independent of time-of-day and timezone once
// constructed. Comparisons are by (year, month, day) only.
type Date struct {
	t time.Time // always normalized to 00:00:00 in the location it was built with
}

// New builds a Date for year/month/day in the given location.
func New(loc *time.Location, year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, loc)}
}

// Parse reads a "YYYY-MM-DD" string in the given location.
func Parse(loc *time.Location, s string) (Date, error) {
	t, err := time.ParseInLocation("2006-01-02", s, loc)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return Date{t: t}, nil
}

// IsZero reports whether d was never set.
func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Year() int         { return d.t.Year() }
func (d Date) Month() time.Month { return d.t.Month() }
func (d Date) Day() int          { return d.t.Day() }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }

func (d Date) IsWeekend() bool {
	wd := d.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (d Date) Before(o Date) bool         { return d.t.Before(o.t) }
func (d Date) After(o Date) bool          { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool          { return d.t.Equal(o.t) }
func (d Date) BeforeOrEqual(o Date) bool  { return d.Before(o) || d.Equal(o) }
func (d Date) AfterOrEqual(o Date) bool   { return d.After(o) || d.Equal(o) }

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// YearMonth returns the "YYYY-MM" key used by the monthly cache.
func (d Date) YearMonth() string { return d.t.Format("2006-01") }

func (d Date) String() string { return d.t.Format("2006-01-02") }

// Location returns the timezone d was constructed with.
func (d Date) Location() *time.Location { return d.t.Location() }

// MarshalJSON renders as the wire "YYYY-MM-DD" string.
func (d Date) MarshalJSON() ([]byte, error) {
	return []byte(`"` + d.String() + `"`), nil
}

// StartOfMonth returns the first day of d's month in the same location.
func (d Date) StartOfMonth() Date {
	return Date{t: time.Date(d.t.Year(), d.t.Month(), 1, 0, 0, 0, 0, d.t.Location())}
}

// EndOfMonth returns the last day of d's month in the same location.
func (d Date) EndOfMonth() Date {
	firstNext := time.Date(d.t.Year(), d.t.Month()+1, 1, 0, 0, 0, 0, d.t.Location())
	return Date{t: firstNext.AddDate(0, 0, -1)}
}

// StartOfYear returns Jan 1 of year y in loc.
func StartOfYear(loc *time.Location, y int) Date { return New(loc, y, time.January, 1) }

// EndOfYear returns Dec 31 of year y in loc.
func EndOfYear(loc *time.Location, y int) Date { return New(loc, y, time.December, 31) }

// DaysUntil returns the number of days from d to o (may be negative).
func (d Date) DaysUntil(o Date) int {
	return int(math.Round(o.t.Sub(d.t).Hours() / 24))
}

// Range walks every date from d to end inclusive, calling fn for each.
// Stops early if fn returns false.
func (d Date) Range(end Date, fn func(Date) bool) {
	for cur := d; !cur.After(end); cur = cur.AddDays(1) {
		if !fn(cur) {
			return
		}
	}
}

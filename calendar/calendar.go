/*
calendar.go - Day classification (C1)

PURPOSE:
  Centralizes the single most bug-prone rule in the source system: the
  priority order between hire/termination gating, holidays, per-user
  schedule and the Mon-Fri default. Every other component consults this
  instead of re-deriving it.

PRIORITY:
  1. outside [hireDate, endDate]   -> 0
  2. holiday                       -> 0
  3. workSchedule present          -> workSchedule[weekday] ?? 0
  4. weekend                       -> 0
  5. otherwise                     -> weeklyHours / 5

SEE ALSO:
  - daily package: consumes dailyTargetHours per day
*/
package calendar

import (
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/model"
)

// HolidaySet answers whether a date is a holiday. Implemented by timestore.
type HolidaySet interface {
	IsHoliday(d civil.Date) (bool, error)
}

type Calendar struct {
	Holidays HolidaySet
}

func New(holidays HolidaySet) *Calendar {
	return &Calendar{Holidays: holidays}
}

func (c *Calendar) IsHoliday(d civil.Date) (bool, error) {
	return c.Holidays.IsHoliday(d)
}

func (c *Calendar) IsWeekend(d civil.Date) bool {
	return d.IsWeekend()
}

// DailyTargetHours implements the five-step priority contract above,
// exactly in order.
func (c *Calendar) DailyTargetHours(u model.User, d civil.Date) (float64, error) {
	if !u.IsActiveOn(d) {
		return 0, nil
	}

	holiday, err := c.IsHoliday(d)
	if err != nil {
		return 0, err
	}
	if holiday {
		return 0, nil
	}

	if u.WorkSchedule != nil {
		return u.WorkSchedule[d.Weekday()], nil
	}

	if c.IsWeekend(d) {
		return 0, nil
	}

	return u.WeeklyHours / 5, nil
}

// CountWorkingDays counts days in [start, end] where DailyTargetHours > 0.
func (c *Calendar) CountWorkingDays(u model.User, start, end civil.Date) (int, error) {
	count := 0
	var firstErr error
	start.Range(end, func(d civil.Date) bool {
		target, err := c.DailyTargetHours(u, d)
		if err != nil {
			firstErr = err
			return false
		}
		if target > 0 {
			count++
		}
		return true
	})
	return count, firstErr
}

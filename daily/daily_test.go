package daily_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/daily"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/store/memory"
)

func mustLoc(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func sumRange(t *testing.T, calc *daily.Calculator, u model.User, from, to civil.Date) (target, actual float64) {
	ctx := context.Background()
	from.Range(to, func(d civil.Date) bool {
		b, err := calc.Compute(ctx, u, d)
		require.NoError(t, err)
		target += b.Target
		actual += b.Actual
		return true
	})
	return
}

func TestPartTimeSchedule(t *testing.T) {
	loc := mustLoc(t)
	ctx := context.Background()
	store := memory.New()

	u := model.User{
		ID:       "u1",
		HireDate: civil.New(loc, 2020, time.January, 1),
		WorkSchedule: model.WorkSchedule{
			time.Monday:  4,
			time.Tuesday: 4,
		},
	}
	require.NoError(t, store.CreateUser(ctx, u))

	require.NoError(t, store.CreateTimeEntry(ctx, model.TimeEntry{
		ID: "e1", UserID: u.ID, Date: civil.New(loc, 2026, time.January, 5), Hours: decimal.NewFromInt(4),
	}))
	require.NoError(t, store.CreateTimeEntry(ctx, model.TimeEntry{
		ID: "e2", UserID: u.ID, Date: civil.New(loc, 2026, time.January, 13), Hours: decimal.NewFromInt(4),
	}))

	cal := calendar.New(timestoreHolidayAdapter{store})
	calc := daily.New(cal, store)

	from := civil.New(loc, 2026, time.January, 1)
	to := civil.New(loc, 2026, time.January, 14)
	target, actual := sumRange(t, calc, u, from, to)

	require.Equal(t, 16.0, target)
	require.Equal(t, 8.0, actual)
	require.Equal(t, -8.0, actual-target)
}

func TestHolidayOverridesSchedule(t *testing.T) {
	loc := mustLoc(t)
	ctx := context.Background()
	store := memory.New()

	u := model.User{
		ID:       "u2",
		HireDate: civil.New(loc, 2020, time.January, 1),
		WorkSchedule: model.WorkSchedule{
			time.Monday:  4,
			time.Tuesday: 4,
		},
	}
	require.NoError(t, store.CreateUser(ctx, u))
	require.NoError(t, store.CreateHoliday(ctx, model.Holiday{Date: civil.New(loc, 2026, time.January, 6), Name: "Epiphany"}))
	require.NoError(t, store.CreateAbsence(ctx, model.AbsenceRequest{
		ID: "a1", UserID: u.ID, Type: model.AbsenceVacation, Status: model.AbsenceApproved,
		StartDate: civil.New(loc, 2026, time.January, 1),
		EndDate:   civil.New(loc, 2026, time.January, 25),
	}))

	cal := calendar.New(timestoreHolidayAdapter{store})
	calc := daily.New(cal, store)

	target, err := cal.DailyTargetHours(u, civil.New(loc, 2026, time.January, 6))
	require.NoError(t, err)
	require.Equal(t, 0.0, target)

	creditDays := []int{5, 12, 13, 19, 20}
	for _, day := range creditDays {
		b, err := calc.Compute(ctx, u, civil.New(loc, 2026, time.January, day))
		require.NoError(t, err)
		require.Equalf(t, 4.0, b.AbsenceCredit, "day %d", day)
	}

	b6, err := calc.Compute(ctx, u, civil.New(loc, 2026, time.January, 6))
	require.NoError(t, err)
	require.Equal(t, 0.0, b6.AbsenceCredit)
}

func TestUnpaidVsPaidOverlap(t *testing.T) {
	loc := mustLoc(t)
	ctx := context.Background()
	store := memory.New()

	u := model.User{
		ID:          "u3",
		HireDate:    civil.New(loc, 2020, time.January, 1),
		WeeklyHours: 40,
	}
	require.NoError(t, store.CreateUser(ctx, u))

	require.NoError(t, store.CreateAbsence(ctx, model.AbsenceRequest{
		ID: "a1", UserID: u.ID, Type: model.AbsenceUnpaid, Status: model.AbsenceApproved,
		StartDate: civil.New(loc, 2025, time.August, 11),
		EndDate:   civil.New(loc, 2025, time.August, 12),
	}))
	require.NoError(t, store.CreateAbsence(ctx, model.AbsenceRequest{
		ID: "a2", UserID: u.ID, Type: model.AbsenceVacation, Status: model.AbsenceApproved,
		StartDate: civil.New(loc, 2025, time.August, 18),
		EndDate:   civil.New(loc, 2025, time.August, 19),
	}))

	cal := calendar.New(timestoreHolidayAdapter{store})
	calc := daily.New(cal, store)

	for _, day := range []int{11, 12} {
		b, err := calc.Compute(ctx, u, civil.New(loc, 2025, time.August, day))
		require.NoError(t, err)
		require.Equalf(t, 0.0, b.EffectiveTarget, "day %d", day)
		require.Equalf(t, 0.0, b.AbsenceCredit, "day %d", day)
		require.Equalf(t, 0.0, b.Overtime, "day %d", day)
	}

	for _, day := range []int{18, 19} {
		b, err := calc.Compute(ctx, u, civil.New(loc, 2025, time.August, day))
		require.NoError(t, err)
		require.Equalf(t, 8.0, b.AbsenceCredit, "day %d", day)
	}
}

func TestTerminatedUserHasNoTargetAfterEndDate(t *testing.T) {
	loc := mustLoc(t)
	ctx := context.Background()
	store := memory.New()

	end := civil.New(loc, 2026, time.January, 15)
	u := model.User{
		ID:          "u4",
		HireDate:    civil.New(loc, 2020, time.January, 1),
		EndDate:     &end,
		WeeklyHours: 40,
	}
	require.NoError(t, store.CreateUser(ctx, u))

	cal := calendar.New(timestoreHolidayAdapter{store})
	calc := daily.New(cal, store)

	before, err := calc.Compute(ctx, u, civil.New(loc, 2026, time.January, 14))
	require.NoError(t, err)
	require.Greater(t, before.Target, 0.0, "weekday before termination still carries a target")

	after, err := calc.Compute(ctx, u, civil.New(loc, 2026, time.January, 16))
	require.NoError(t, err)
	require.Equal(t, 0.0, after.Target, "no target accrues after the user's end date")
	require.Equal(t, 0.0, after.Overtime)

	require.NoError(t, store.CreateCorrection(ctx, model.Correction{
		ID:     "corr1",
		UserID: u.ID,
		Date:   civil.New(loc, 2026, time.January, 16),
		Hours:  decimal.NewFromInt(5),
		Reason: "late-filed correction",
	}))

	afterCorrection, err := calc.Compute(ctx, u, civil.New(loc, 2026, time.January, 16))
	require.NoError(t, err)
	require.Equal(t, 0.0, afterCorrection.CorrectionHours, "corrections after the user's end date contribute nothing")
	require.Equal(t, 0.0, afterCorrection.Actual)
	require.Equal(t, 0.0, afterCorrection.Overtime)
}

type timestoreHolidayAdapter struct {
	store *memory.Store
}

func (a timestoreHolidayAdapter) IsHoliday(d civil.Date) (bool, error) {
	return a.store.IsHoliday(context.Background(), d)
}

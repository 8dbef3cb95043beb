/*
daily.go - Daily Calculator (C4)

PURPOSE:
  Pure function: (user, date) -> {target, actual, components}. No side
  effects, no writes; the orchestrator is the only caller and owns turning
  this into journal entries.

RULES:
  hasUnpaid      = any absence of type unpaid active on date
  hasPaidCredit  = any absence of type {vacation,sick,overtime_comp,special}
  effectiveTarget = hasUnpaid ? 0 : target
  absenceCredit   = (hasPaidCredit && target > 0 && !hasUnpaid) ? target : 0
  actual          = worked + absenceCredit + corrHours
  overtime        = actual - effectiveTarget

Unpaid wins over any paid credit on the same day (data-error case).
Corrections apply on any day, working or not, but, like worked hours,
contribute nothing outside [hireDate, endDate] — a terminated user accrues no actual
hours past their end date regardless of what's recorded against them.
*/
package daily

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/timestore"
)

type Calculator struct {
	Calendar *calendar.Calendar
	Store    timestore.Store
}

func New(cal *calendar.Calendar, store timestore.Store) *Calculator {
	return &Calculator{Calendar: cal, Store: store}
}

// Compute derives the full breakdown for (user, date). Pure aside from the
// read-only store/calendar calls.
func (c *Calculator) Compute(ctx context.Context, u model.User, d civil.Date) (model.DailyBreakdown, error) {
	target, err := c.Calendar.DailyTargetHours(u, d)
	if err != nil {
		return model.DailyBreakdown{}, err
	}

	active := u.IsActiveOn(d)

	worked, err := c.Store.Worked(ctx, u.ID, d)
	if err != nil {
		return model.DailyBreakdown{}, err
	}
	if !active {
		worked = decimal.Zero
	}

	absences, err := c.Store.ActiveAbsences(ctx, u.ID, d)
	if err != nil {
		return model.DailyBreakdown{}, err
	}

	corrections, err := c.Store.Corrections(ctx, u.ID, d)
	if err != nil {
		return model.DailyBreakdown{}, err
	}
	corrHours := decimal.Zero
	if active {
		for _, cor := range corrections {
			corrHours = corrHours.Add(cor.Hours)
		}
	}

	hasUnpaid := false
	hasPaidCredit := false
	for _, a := range absences {
		if a.Type == model.AbsenceUnpaid {
			hasUnpaid = true
		}
		if a.Type.IsPaidCredit() {
			hasPaidCredit = true
		}
	}

	effectiveTarget := target
	if hasUnpaid {
		effectiveTarget = 0
	}

	absenceCredit := 0.0
	if hasPaidCredit && target > 0 && !hasUnpaid {
		absenceCredit = target
	}

	workedF, _ := worked.Float64()
	corrF, _ := corrHours.Float64()

	actual := workedF + absenceCredit + corrF
	overtime := actual - effectiveTarget

	return model.DailyBreakdown{
		Date:            d,
		Target:          round2(target),
		Worked:          round2(workedF),
		AbsenceCredit:   round2(absenceCredit),
		CorrectionHours: round2(corrF),
		EffectiveTarget: round2(effectiveTarget),
		Actual:          round2(actual),
		Overtime:        round2(overtime),
		HasUnpaid:       hasUnpaid,
		HasPaidCredit:   hasPaidCredit,
	}, nil
}

// round2 keeps two decimal places for storage; full precision is kept in
// the decimal.Decimal intermediates above.
func round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}

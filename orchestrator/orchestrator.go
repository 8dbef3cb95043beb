/*
orchestrator.go - Recompute Orchestrator (C5)

PURPOSE:
  The hardest component. Every mutation is expressed as a set of (userId,
  date) pairs whose journal entries may change. For each affected date,
  delete-then-reinsert the day's split entries, re-chain the whole user,
  refresh every touched month's cache, then publish.

  Entry style (OQ-1 in DESIGN.md): up to three entries per day (earned,
  absence_credit, correction), in that order, each omitted per the rules
  in computeEntries.

IDEMPOTENCE: delete-then-reinsert plus re-chain guarantees that running
  the orchestrator twice for the same mutation yields the same journal and
  cache.

ORDERING: a per-user lock is held across the full mutation -> recompute ->
  publish sequence; across users, mutations run concurrently.
*/
package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/overtime-engine/apperr"
	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/daily"
	"github.com/warp/overtime-engine/eventbus"
	"github.com/warp/overtime-engine/ledger"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/timestore"
)

// Publisher is the narrow slice of eventbus.Bus the orchestrator needs,
// letting tests supply a stub.
type Publisher interface {
	Publish(ctx context.Context, evt eventbus.Event)
}

type Orchestrator struct {
	Store    timestore.Store
	Calendar *calendar.Calendar
	Calc     *daily.Calculator
	Journal  *ledger.Journal
	Bus      Publisher
	Clock    civil.Clock
	Locker   *Locker
	Log      zerolog.Logger
}

func New(store timestore.Store, cal *calendar.Calendar, calc *daily.Calculator, journal *ledger.Journal, bus Publisher, clock civil.Clock, log zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		Store:    store,
		Calendar: cal,
		Calc:     calc,
		Journal:  journal,
		Bus:      bus,
		Clock:    clock,
		Locker:   NewLocker(),
		Log:      log,
	}
}

// Recompute re-derives the journal for userID across dates (the affected
// date set), refreshes every month they touch, and publishes one
// BalanceChanged event. Holds the per-user lock across the whole sequence.
func (o *Orchestrator) Recompute(ctx context.Context, userID string, dates []civil.Date) error {
	if len(dates) == 0 {
		return nil
	}

	unlock := o.Locker.Lock(userID)
	defer unlock()

	u, err := o.Store.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	dates = dedupSortDates(dates)
	dateStrs := make([]string, len(dates))
	for i, d := range dates {
		dateStrs[i] = d.String()
	}

	if err := o.Journal.DeleteWhere(ctx, userID, dateStrs, model.RecomputedKinds); err != nil {
		return err
	}

	var newEntries []model.OvertimeTransaction
	for _, d := range dates {
		breakdown, err := o.Calc.Compute(ctx, u, d)
		if err != nil {
			return err
		}
		newEntries = append(newEntries, computeEntries(userID, d, breakdown)...)
	}

	if len(newEntries) > 0 {
		if _, err := o.Journal.AppendBatch(ctx, userID, newEntries); err != nil {
			return err
		}
	}

	if err := o.Journal.Rechain(ctx, userID); err != nil {
		return err
	}

	months := monthsTouched(dates)
	today := o.Clock.Now()
	for _, month := range months {
		if err := o.refreshMonth(ctx, u, month, today); err != nil {
			return err
		}
	}

	newBalance, err := o.Journal.BalanceAsOf(ctx, userID, "")
	if err != nil {
		return err
	}
	bf, _ := newBalance.Float64()

	o.Bus.Publish(ctx, eventbus.Event{
		Kind:         eventbus.EventOvertimeUpdated,
		UserID:       userID,
		Data:         eventbus.BalanceChangedPayload{Dates: dateStrs, NewBalance: bf},
		TimestampUTC: time.Now().UTC(),
	})

	return nil
}

// computeEntries splits one day's breakdown into the journal entries it
// produces: an earned/shortfall entry, a paid-absence-credit entry, and a
// correction entry. The credit and correction entries are omitted when
// zero; a zero earned entry is still written on a day with an absence or a
// correction, and nothing is written for a day whose parts are all zero.
func computeEntries(userID string, d civil.Date, b model.DailyBreakdown) []model.OvertimeTransaction {
	earned := b.Worked - b.EffectiveTarget
	hasAbsenceOrCorrection := b.HasPaidCredit || b.HasUnpaid || b.CorrectionHours != 0
	anyNonzero := b.Overtime != 0 || earned != 0 || b.AbsenceCredit != 0 || b.CorrectionHours != 0
	if !anyNonzero {
		return nil
	}

	var out []model.OvertimeTransaction
	if earned != 0 || hasAbsenceOrCorrection {
		out = append(out, model.OvertimeTransaction{
			UserID:        userID,
			Date:          d,
			Type:          model.TxEarned,
			Hours:         decimal.NewFromFloat(earned),
			ReferenceKind: model.RefTimeEntry,
			ReferenceID:   d.String(),
			Description:   "daily recompute: worked vs effective target",
		})
	}
	if b.AbsenceCredit != 0 {
		out = append(out, model.OvertimeTransaction{
			UserID:        userID,
			Date:          d,
			Type:          model.TxAbsenceCredit,
			Hours:         decimal.NewFromFloat(b.AbsenceCredit),
			ReferenceKind: model.RefAbsence,
			Description:   "paid absence credit",
		})
	}
	if b.CorrectionHours != 0 {
		out = append(out, model.OvertimeTransaction{
			UserID:        userID,
			Date:          d,
			Type:          model.TxCorrection,
			Hours:         decimal.NewFromFloat(b.CorrectionHours),
			ReferenceKind: model.RefCorrection,
			Description:   "manual correction",
		})
	}
	return out
}

// refreshMonth recomputes the MonthlyBalance cache for (user, month) by
// summing daily effectiveTarget/actual up to min(today, monthEnd), never
// into the future.
func (o *Orchestrator) refreshMonth(ctx context.Context, u model.User, month string, today civil.Date) error {
	start, end, err := monthBounds(month, today)
	if err != nil {
		return err
	}

	var targetSum, actualSum float64
	var firstErr error
	start.Range(end, func(d civil.Date) bool {
		b, err := o.Calc.Compute(ctx, u, d)
		if err != nil {
			firstErr = err
			return false
		}
		targetSum += b.EffectiveTarget
		actualSum += b.Actual
		return true
	})
	if firstErr != nil {
		return firstErr
	}

	return o.Store.PutMonthlyBalance(ctx, model.MonthlyBalance{
		UserID:      u.ID,
		Month:       month,
		TargetHours: decimal.NewFromFloat(targetSum).Round(2).InexactFloat64(),
		ActualHours: decimal.NewFromFloat(actualSum).Round(2).InexactFloat64(),
	})
}

// monthBounds derives [start, min(today, monthEnd)] for "YYYY-MM" using the
// timezone carried by today.
func monthBounds(month string, today civil.Date) (civil.Date, civil.Date, error) {
	d, err := civil.Parse(today.Location(), month+"-01")
	if err != nil {
		return civil.Date{}, civil.Date{}, apperr.Wrap(apperr.InvalidInput, "invalid month "+month, err)
	}
	start := d.StartOfMonth()
	end := d.EndOfMonth()
	if today.Before(end) {
		end = today
	}
	return start, end, nil
}

func dedupSortDates(dates []civil.Date) []civil.Date {
	seen := make(map[string]civil.Date, len(dates))
	for _, d := range dates {
		seen[d.String()] = d
	}
	out := make([]civil.Date, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func monthsTouched(dates []civil.Date) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range dates {
		m := d.YearMonth()
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

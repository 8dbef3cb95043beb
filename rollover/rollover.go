/*
rollover.go - Year-End Rollover (C7)

PURPOSE:
  Scheduled once-per-year job: for every active user, marks the prior year
  closed with a zero-hours `carryover` journal entry (the chain already
  carries the balance forward; the entry is a marker per the Open Question
  resolution in DESIGN.md §OQ-3) and rolls the vacation entitlement/
  carryover forward.

IDEMPOTENCE: the job is idempotent per (userId, year) via a uniqueness
  check on the carryover marker before inserting. The year's lease is
  claimed once: a later run for the same year (scheduled or manual) does
  nothing, so users that a crashed or failed run did not roll are not
  picked up by it.

SCHEDULING: robfig/cron/v3 drives the "January 1 at 00:05 local time"
  trigger - a cron spec expresses a yearly wall-clock trigger far more
  directly than a polling ticker.
*/
package rollover

import (
	"context"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/overtime-engine/apperr"
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/config"
	"github.com/warp/overtime-engine/ledger"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/timestore"
)

// Lease prevents two process instances from running the same year's
// rollover concurrently: only one instance executes per year.
type Lease interface {
	// Acquire returns true if the caller won the lease for year, false if
	// another instance already holds or has completed it.
	Acquire(ctx context.Context, year int) (bool, error)
}

type Rollover struct {
	Store   timestore.Store
	Journal *ledger.Journal
	Lease   Lease
	Cfg     config.EngineConfig
	Log     zerolog.Logger

	cronID cron.EntryID
	c      *cron.Cron
}

func New(store timestore.Store, journal *ledger.Journal, lease Lease, cfg config.EngineConfig, log zerolog.Logger) *Rollover {
	return &Rollover{Store: store, Journal: journal, Lease: lease, Cfg: cfg, Log: log}
}

// Start schedules RunForYear(today.Year()-1) per the configured cron spec
// and begins running in the background. Call Stop to halt it.
func (r *Rollover) Start() error {
	c := cron.New(cron.WithLocation(r.Cfg.Location))
	id, err := c.AddFunc(r.Cfg.RolloverCronSpec, func() {
		ctx := context.Background()
		now := civil.NewSystemClock(r.Cfg.Location).Now()
		year := now.Year() - 1
		if err := r.RunForYear(ctx, year); err != nil {
			r.Log.Error().Err(err).Int("year", year).Msg("year-end rollover failed")
		}
	})
	if err != nil {
		return err
	}
	r.cronID = id
	r.c = c
	c.Start()
	return nil
}

func (r *Rollover) Stop() {
	if r.c != nil {
		r.c.Stop()
	}
}

// RunForYear rolls every user forward for completed year y. Safe to call
// manually (admin-triggered) or from the scheduler.
func (r *Rollover) RunForYear(ctx context.Context, y int) error {
	won, err := r.Lease.Acquire(ctx, y)
	if err != nil {
		return err
	}
	if !won {
		r.Log.Info().Int("year", y).Msg("rollover lease already held for year, skipping")
		return nil
	}

	users, err := r.Store.ListUsers(ctx)
	if err != nil {
		return err
	}

	for _, u := range users {
		if u.DeletedAt != nil {
			continue
		}
		if err := r.rollUser(ctx, u, y); err != nil {
			r.Log.Error().Err(err).Str("user", u.ID).Int("year", y).Msg("rollover failed for user, continuing")
			continue
		}
	}
	return nil
}

func (r *Rollover) rollUser(ctx context.Context, u model.User, y int) error {
	loc := u.HireDate.Location()
	newYearDay1 := civil.New(loc, y+1, time.January, 1)

	marker := "carryover:" + u.ID + ":" + strconv.Itoa(y)
	endOfYear, err := r.Journal.BalanceAsOf(ctx, u.ID, civil.New(loc, y, time.December, 31).String())
	if err != nil {
		return err
	}

	_, err = r.Journal.Append(ctx, u.ID, model.OvertimeTransaction{
		Date:           newYearDay1,
		Type:           model.TxCarryover,
		Hours:          decimal.Zero,
		ReferenceKind:  model.RefYear,
		ReferenceID:    strconv.Itoa(y),
		Description:    "year-end carryover marker, balance carried: " + endOfYear.String(),
		IdempotencyKey: marker,
	})
	if err != nil {
		if apperr.Is(err, apperr.Conflict) {
			return nil // already rolled this user for this year
		}
		return err
	}
	if err := r.Journal.Rechain(ctx, u.ID); err != nil {
		return err
	}

	return r.rollVacation(ctx, u, y)
}

func (r *Rollover) rollVacation(ctx context.Context, u model.User, y int) error {
	vb, err := r.Store.GetVacationBalance(ctx, u.ID, y)
	if err != nil {
		return err
	}

	carryover := vb.Remaining()
	if carryover < 0 {
		carryover = 0
	}
	if r.Cfg.VacationCarryoverCap > 0 && carryover > r.Cfg.VacationCarryoverCap {
		carryover = r.Cfg.VacationCarryoverCap
	}

	return r.Store.PutVacationBalance(ctx, model.VacationBalance{
		UserID:      u.ID,
		Year:        y + 1,
		Entitlement: u.VacationDaysPerYear,
		Carryover:   carryover,
	})
}


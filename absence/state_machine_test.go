package absence_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/warp/overtime-engine/absence"
	"github.com/warp/overtime-engine/calendar"
	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/daily"
	"github.com/warp/overtime-engine/eventbus"
	"github.com/warp/overtime-engine/ledger"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/orchestrator"
	"github.com/warp/overtime-engine/store/memory"
	"github.com/warp/overtime-engine/timestore"
)

func berlin(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func TestCircularAbsenceIdempotence(t *testing.T) {
	loc := berlin(t)
	today := civil.New(loc, 2026, time.January, 31)
	ctx := context.Background()

	store := memory.New()
	cal := calendar.New(timestore.HolidayAdapter{Store: store})
	calc := daily.New(cal, store)
	jbe := memory.NewJournalBackend()
	journal := ledger.New(jbe)
	bus := eventbus.New(zerolog.Nop())
	clock := civil.NewFixed(today, loc)
	orch := orchestrator.New(store, cal, calc, journal, bus, clock, zerolog.Nop())
	machine := absence.New(store, cal, orch, journal)

	u := model.User{ID: "u15", HireDate: civil.New(loc, 2020, time.January, 1), WeeklyHours: 40}
	require.NoError(t, store.CreateUser(ctx, u))

	req, err := machine.Create(ctx, model.AbsenceRequest{
		UserID: u.ID, Type: model.AbsenceVacation,
		StartDate: civil.New(loc, 2026, time.January, 20),
		EndDate:   civil.New(loc, 2026, time.January, 21),
	})
	require.NoError(t, err)

	_, err = machine.Decide(ctx, req.ID, absence.Approve, "admin")
	require.NoError(t, err)

	txsAfterFirstApprove, err := jbe.TransactionsForUser(ctx, u.ID)
	require.NoError(t, err)
	vbAfterFirstApprove, err := store.GetVacationBalance(ctx, u.ID, 2026)
	require.NoError(t, err)

	_, err = machine.Decide(ctx, req.ID, absence.Reject, "admin")
	require.NoError(t, err)
	_, err = machine.Decide(ctx, req.ID, absence.Approve, "admin")
	require.NoError(t, err)

	txsAfterSecondApprove, err := jbe.TransactionsForUser(ctx, u.ID)
	require.NoError(t, err)
	vbAfterSecondApprove, err := store.GetVacationBalance(ctx, u.ID, 2026)
	require.NoError(t, err)

	require.Equal(t, len(txsAfterFirstApprove), len(txsAfterSecondApprove), "journal size must match after approve-reject-approve")
	require.Equal(t, vbAfterFirstApprove.Taken, vbAfterSecondApprove.Taken, "VacationBalance.taken must be identical")

	sumHours := func(txs []model.OvertimeTransaction) string {
		total := 0.0
		for _, tx := range txs {
			f, _ := tx.Hours.Float64()
			total += f
		}
		return civil.FormatSignedHours(total)
	}
	require.Equal(t, sumHours(txsAfterFirstApprove), sumHours(txsAfterSecondApprove))
}

func TestOvertimeCompCircularIdempotence(t *testing.T) {
	loc := berlin(t)
	today := civil.New(loc, 2026, time.January, 31)
	ctx := context.Background()

	store := memory.New()
	cal := calendar.New(timestore.HolidayAdapter{Store: store})
	calc := daily.New(cal, store)
	jbe := memory.NewJournalBackend()
	journal := ledger.New(jbe)
	bus := eventbus.New(zerolog.Nop())
	clock := civil.NewFixed(today, loc)
	orch := orchestrator.New(store, cal, calc, journal, bus, clock, zerolog.Nop())
	machine := absence.New(store, cal, orch, journal)

	u := model.User{ID: "u16", HireDate: civil.New(loc, 2020, time.January, 1), WeeklyHours: 40}
	require.NoError(t, store.CreateUser(ctx, u))

	req, err := machine.Create(ctx, model.AbsenceRequest{
		UserID: u.ID, Type: model.AbsenceOvertimeComp,
		StartDate: civil.New(loc, 2026, time.January, 20),
		EndDate:   civil.New(loc, 2026, time.January, 20),
	})
	require.NoError(t, err)

	_, err = machine.Decide(ctx, req.ID, absence.Approve, "admin")
	require.NoError(t, err)

	compensationEntries := func() []model.OvertimeTransaction {
		txs, err := jbe.TransactionsForUser(ctx, u.ID)
		require.NoError(t, err)
		var out []model.OvertimeTransaction
		for _, tx := range txs {
			if tx.Type == model.TxCompensation {
				out = append(out, tx)
			}
		}
		return out
	}

	afterFirstApprove := compensationEntries()
	require.Len(t, afterFirstApprove, 1, "approval emits exactly one compensation entry")

	_, err = machine.Decide(ctx, req.ID, absence.Reject, "admin")
	require.NoError(t, err)
	require.Empty(t, compensationEntries(), "rejecting an overtime_comp absence must reverse its compensation spend")

	_, err = machine.Decide(ctx, req.ID, absence.Approve, "admin")
	require.NoError(t, err)

	afterSecondApprove := compensationEntries()
	require.Len(t, afterSecondApprove, 1, "approve-reject-approve must not double the compensation spend")
	require.True(t, afterFirstApprove[0].Hours.Equal(afterSecondApprove[0].Hours))
}

func TestApprovalRejectsOverlappingSameTypeAbsence(t *testing.T) {
	loc := berlin(t)
	today := civil.New(loc, 2026, time.January, 31)
	ctx := context.Background()

	store := memory.New()
	cal := calendar.New(timestore.HolidayAdapter{Store: store})
	calc := daily.New(cal, store)
	jbe := memory.NewJournalBackend()
	journal := ledger.New(jbe)
	bus := eventbus.New(zerolog.Nop())
	clock := civil.NewFixed(today, loc)
	orch := orchestrator.New(store, cal, calc, journal, bus, clock, zerolog.Nop())
	machine := absence.New(store, cal, orch, journal)

	u := model.User{ID: "u17", HireDate: civil.New(loc, 2020, time.January, 1), WeeklyHours: 40}
	require.NoError(t, store.CreateUser(ctx, u))

	first, err := machine.Create(ctx, model.AbsenceRequest{
		UserID: u.ID, Type: model.AbsenceVacation,
		StartDate: civil.New(loc, 2026, time.January, 10),
		EndDate:   civil.New(loc, 2026, time.January, 14),
	})
	require.NoError(t, err)
	_, err = machine.Decide(ctx, first.ID, absence.Approve, "admin")
	require.NoError(t, err)

	second, err := machine.Create(ctx, model.AbsenceRequest{
		UserID: u.ID, Type: model.AbsenceVacation,
		StartDate: civil.New(loc, 2026, time.January, 13),
		EndDate:   civil.New(loc, 2026, time.January, 16),
	})
	require.NoError(t, err)

	_, err = machine.Decide(ctx, second.ID, absence.Approve, "admin")
	require.Error(t, err, "overlapping approved vacation for the same user must be rejected")

	nonOverlapping, err := machine.Create(ctx, model.AbsenceRequest{
		UserID: u.ID, Type: model.AbsenceVacation,
		StartDate: civil.New(loc, 2026, time.January, 15),
		EndDate:   civil.New(loc, 2026, time.January, 16),
	})
	require.NoError(t, err)
	_, err = machine.Decide(ctx, nonOverlapping.ID, absence.Approve, "admin")
	require.NoError(t, err, "adjacent, non-overlapping vacation must still be approvable")
}

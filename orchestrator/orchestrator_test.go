package orchestrator_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

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

type harness struct {
	store *memory.Store
	orch  *orchestrator.Orchestrator
	jbe   *memory.JournalBackend
	loc   *time.Location
}

func newHarness(t *testing.T, today civil.Date) harness {
	loc := today.Location()
	store := memory.New()
	cal := calendar.New(timestore.HolidayAdapter{Store: store})
	calc := daily.New(cal, store)
	jbe := memory.NewJournalBackend()
	journal := ledger.New(jbe)
	bus := eventbus.New(zerolog.Nop())
	clock := civil.NewFixed(today, loc)
	orch := orchestrator.New(store, cal, calc, journal, bus, clock, zerolog.Nop())
	return harness{store: store, orch: orch, jbe: jbe, loc: loc}
}

func berlin(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func TestCorrectionIdempotence(t *testing.T) {
	loc := berlin(t)
	today := civil.New(loc, 2026, time.January, 31)
	h := newHarness(t, today)
	ctx := context.Background()

	u := model.User{ID: "u1", HireDate: civil.New(loc, 2020, time.January, 1), WeeklyHours: 40}
	require.NoError(t, h.store.CreateUser(ctx, u))

	date := civil.New(loc, 2026, time.January, 15)
	require.NoError(t, h.store.CreateCorrection(ctx, model.Correction{
		ID: "c1", UserID: u.ID, Date: date, Hours: decimal.NewFromInt(5),
	}))

	require.NoError(t, h.orch.Recompute(ctx, u.ID, orchestrator.ExpandSingle(date)))
	require.NoError(t, h.orch.Recompute(ctx, u.ID, orchestrator.ExpandSingle(date)))

	txs, err := h.jbe.TransactionsForUser(ctx, u.ID)
	require.NoError(t, err)

	correctionCount := 0
	for _, tx := range txs {
		if tx.Type == model.TxCorrection {
			correctionCount++
		}
	}
	require.Equal(t, 1, correctionCount, "recomputing twice must not duplicate the correction entry")

	require.NoError(t, h.store.DeleteCorrection(ctx, "c1"))
	require.NoError(t, h.orch.Recompute(ctx, u.ID, orchestrator.ExpandSingle(date)))

	txs, err = h.jbe.TransactionsForUser(ctx, u.ID)
	require.NoError(t, err)
	for _, tx := range txs {
		require.NotEqual(t, model.TxCorrection, tx.Type, "deleting the correction row must remove its journal entry")
	}
}

func TestChainIntegrityAfterMultipleRecomputes(t *testing.T) {
	loc := berlin(t)
	today := civil.New(loc, 2026, time.January, 31)
	h := newHarness(t, today)
	ctx := context.Background()

	u := model.User{ID: "u1", HireDate: civil.New(loc, 2020, time.January, 1), WeeklyHours: 40}
	require.NoError(t, h.store.CreateUser(ctx, u))

	d1 := civil.New(loc, 2026, time.January, 5)
	d2 := civil.New(loc, 2026, time.January, 6)
	require.NoError(t, h.store.CreateTimeEntry(ctx, model.TimeEntry{ID: "e1", UserID: u.ID, Date: d1, Hours: decimal.NewFromInt(10)}))
	require.NoError(t, h.store.CreateTimeEntry(ctx, model.TimeEntry{ID: "e2", UserID: u.ID, Date: d2, Hours: decimal.NewFromInt(6)}))

	require.NoError(t, h.orch.Recompute(ctx, u.ID, orchestrator.ExpandSingle(d1)))
	require.NoError(t, h.orch.Recompute(ctx, u.ID, orchestrator.ExpandSingle(d2)))

	txs, err := h.jbe.TransactionsForUser(ctx, u.ID)
	require.NoError(t, err)
	require.NotEmpty(t, txs)

	prevAfter := decimal.Zero
	for _, tx := range orderedByDate(txs) {
		require.True(t, tx.BalanceBefore.Equal(prevAfter), "chain broken at %s", tx.Date)
		require.True(t, tx.BalanceAfter.Equal(tx.BalanceBefore.Add(tx.Hours)))
		prevAfter = tx.BalanceAfter
	}
}

// TestRecomputeOrderIndependentAcrossUsers verifies that each user's chain
// depends only on that user's own entries, never on which user was
// recomputed first.
func TestRecomputeOrderIndependentAcrossUsers(t *testing.T) {
	loc := berlin(t)
	today := civil.New(loc, 2026, time.January, 31)
	ctx := context.Background()

	d := civil.New(loc, 2026, time.January, 5)

	runOrder := func(first, second string) decimal.Decimal {
		h := newHarness(t, today)
		for _, id := range []string{"ua", "ub"} {
			u := model.User{ID: id, HireDate: civil.New(loc, 2020, time.January, 1), WeeklyHours: 40}
			require.NoError(t, h.store.CreateUser(ctx, u))
		}
		require.NoError(t, h.store.CreateTimeEntry(ctx, model.TimeEntry{ID: "ea", UserID: "ua", Date: d, Hours: decimal.NewFromInt(10)}))
		require.NoError(t, h.store.CreateTimeEntry(ctx, model.TimeEntry{ID: "eb", UserID: "ub", Date: d, Hours: decimal.NewFromInt(6)}))

		require.NoError(t, h.orch.Recompute(ctx, first, orchestrator.ExpandSingle(d)))
		require.NoError(t, h.orch.Recompute(ctx, second, orchestrator.ExpandSingle(d)))

		txs, err := h.jbe.TransactionsForUser(ctx, "ua")
		require.NoError(t, err)
		require.Len(t, txs, 1)
		return txs[0].BalanceAfter
	}

	require.True(t, runOrder("ua", "ub").Equal(runOrder("ub", "ua")),
		"user ua's resulting balance must not depend on recompute order relative to user ub")
}

func orderedByDate(txs []model.OvertimeTransaction) []model.OvertimeTransaction {
	out := make([]model.OvertimeTransaction, len(txs))
	copy(out, txs)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Date.After(out[j].Date); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

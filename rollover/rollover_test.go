package rollover_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/config"
	"github.com/warp/overtime-engine/ledger"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/rollover"
	"github.com/warp/overtime-engine/store/memory"
)

func TestRunForYearIsIdempotentPerUser(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	ctx := context.Background()

	store := memory.New()
	u := model.User{ID: "u1", HireDate: civil.New(loc, 2020, time.January, 1), VacationDaysPerYear: 25}
	require.NoError(t, store.CreateUser(ctx, u))

	jbe := memory.NewJournalBackend()
	journal := ledger.New(jbe)
	lease := memory.NewLease()
	cfg := config.EngineConfig{Location: loc}

	r := rollover.New(store, journal, lease, cfg, zerolog.Nop())

	require.NoError(t, r.RunForYear(ctx, 2026))
	txsAfterFirst, err := jbe.TransactionsForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, txsAfterFirst, 1)
	require.Equal(t, model.TxCarryover, txsAfterFirst[0].Type)

	// A second run for the same year must not double the marker: the
	// rollover lease is already claimed, so RunForYear is a no-op.
	require.NoError(t, r.RunForYear(ctx, 2026))
	txsAfterSecond, err := jbe.TransactionsForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, txsAfterSecond, 1)

	vb, err := store.GetVacationBalance(ctx, u.ID, 2027)
	require.NoError(t, err)
	require.Equal(t, 25.0, vb.Entitlement)
}

package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/warp/overtime-engine/civil"
	"github.com/warp/overtime-engine/ledger"
	"github.com/warp/overtime-engine/model"
	"github.com/warp/overtime-engine/store/memory"
)

func berlin(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)
	return loc
}

func TestChainIntegrity(t *testing.T) {
	loc := berlin(t)
	ctx := context.Background()
	backend := memory.NewJournalBackend()
	j := ledger.New(backend)

	d1 := civil.New(loc, 2026, time.January, 1)
	d2 := civil.New(loc, 2026, time.January, 2)
	d3 := civil.New(loc, 2026, time.January, 3)

	_, err := j.Append(ctx, "u1", model.OvertimeTransaction{Date: d1, Type: model.TxEarned, Hours: decimal.NewFromInt(2)})
	require.NoError(t, err)
	_, err = j.Append(ctx, "u1", model.OvertimeTransaction{Date: d2, Type: model.TxEarned, Hours: decimal.NewFromInt(-1)})
	require.NoError(t, err)
	_, err = j.Append(ctx, "u1", model.OvertimeTransaction{Date: d3, Type: model.TxCorrection, Hours: decimal.NewFromInt(5)})
	require.NoError(t, err)

	txs, err := j.Transactions(ctx, "u1", "", "")
	require.NoError(t, err)
	require.Len(t, txs, 3)

	prev := decimal.Zero
	for _, tx := range txs {
		require.True(t, tx.BalanceBefore.Equal(prev))
		require.True(t, tx.BalanceAfter.Equal(prev.Add(tx.Hours)))
		prev = tx.BalanceAfter
	}

	balance, err := j.BalanceAsOf(ctx, "u1", "")
	require.NoError(t, err)
	require.True(t, balance.Equal(decimal.NewFromInt(6)))
}

func TestRechainAfterDelete(t *testing.T) {
	loc := berlin(t)
	ctx := context.Background()
	backend := memory.NewJournalBackend()
	j := ledger.New(backend)

	d1 := civil.New(loc, 2026, time.January, 1)
	d2 := civil.New(loc, 2026, time.January, 2)
	d3 := civil.New(loc, 2026, time.January, 3)

	_, err := j.AppendBatch(ctx, "u1", []model.OvertimeTransaction{
		{Date: d1, Type: model.TxEarned, Hours: decimal.NewFromInt(3)},
		{Date: d2, Type: model.TxEarned, Hours: decimal.NewFromInt(-2)},
		{Date: d3, Type: model.TxEarned, Hours: decimal.NewFromInt(4)},
	})
	require.NoError(t, err)

	require.NoError(t, j.DeleteWhere(ctx, "u1", []string{d2.String()}, []model.TransactionType{model.TxEarned}))

	txs, err := j.Transactions(ctx, "u1", "", "")
	require.NoError(t, err)
	require.Len(t, txs, 2)

	require.True(t, txs[0].BalanceBefore.Equal(decimal.Zero))
	require.True(t, txs[0].BalanceAfter.Equal(decimal.NewFromInt(3)))
	require.True(t, txs[1].BalanceBefore.Equal(decimal.NewFromInt(3)))
	require.True(t, txs[1].BalanceAfter.Equal(decimal.NewFromInt(7)))
}

func TestDeleteByReferenceRechains(t *testing.T) {
	loc := berlin(t)
	ctx := context.Background()
	backend := memory.NewJournalBackend()
	j := ledger.New(backend)

	d1 := civil.New(loc, 2026, time.January, 1)
	d2 := civil.New(loc, 2026, time.January, 2)
	d3 := civil.New(loc, 2026, time.January, 3)

	_, err := j.AppendBatch(ctx, "u1", []model.OvertimeTransaction{
		{Date: d1, Type: model.TxEarned, Hours: decimal.NewFromInt(3)},
		{Date: d2, Type: model.TxCompensation, Hours: decimal.NewFromInt(-2), ReferenceKind: model.RefAbsence, ReferenceID: "abs1"},
		{Date: d3, Type: model.TxEarned, Hours: decimal.NewFromInt(4)},
	})
	require.NoError(t, err)

	require.NoError(t, j.DeleteByReference(ctx, "u1", model.RefAbsence, "abs1"))

	txs, err := j.Transactions(ctx, "u1", "", "")
	require.NoError(t, err)
	require.Len(t, txs, 2)
	for _, tx := range txs {
		require.NotEqual(t, model.TxCompensation, tx.Type)
	}

	require.True(t, txs[0].BalanceBefore.Equal(decimal.Zero))
	require.True(t, txs[0].BalanceAfter.Equal(decimal.NewFromInt(3)))
	require.True(t, txs[1].BalanceBefore.Equal(decimal.NewFromInt(3)))
	require.True(t, txs[1].BalanceAfter.Equal(decimal.NewFromInt(7)))

	require.NoError(t, j.DeleteByReference(ctx, "u1", model.RefAbsence, "no-such-id"))
	unchanged, err := j.Transactions(ctx, "u1", "", "")
	require.NoError(t, err)
	require.Len(t, unchanged, 2, "deleting a reference with no matching entries is a no-op")
}

func TestIdempotencyKeyRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	backend := memory.NewJournalBackend()
	j := ledger.New(backend)
	loc := berlin(t)
	d := civil.New(loc, 2026, time.January, 15)

	_, err := j.Append(ctx, "u1", model.OvertimeTransaction{
		Date: d, Type: model.TxCorrection, Hours: decimal.NewFromInt(5), IdempotencyKey: "corr-c1",
	})
	require.NoError(t, err)

	_, err = j.Append(ctx, "u1", model.OvertimeTransaction{
		Date: d, Type: model.TxCorrection, Hours: decimal.NewFromInt(5), IdempotencyKey: "corr-c1",
	})
	require.Error(t, err)
}

/*
ledger.go - Overtime Journal (C3)

PURPOSE:
  Durable append-only list of balance-delta transactions per user, each
  carrying an explicit balanceBefore/balanceAfter stored alongside the
  row so the chain is re-derivable after a delete without resumming the
  whole history.

CRITICAL INVARIANTS:
  1. APPEND-ONLY at the row level: entries are never edited in place.
  2. The chain invariant: entries[i].balanceBefore == entries[i-1].balanceAfter,
     ordered by (date, createdAt, id), balanceBefore == 0 for i == 0.
  3. DeleteWhere + re-chain happens atomically: partial application would
     corrupt every subsequent entry's balance.

SEE ALSO:
  - store/memory, store/sqlite: persistence backing this interface
  - orchestrator: writes the date-level entries (earned, absence_credit,
    correction); absence appends and removes overtime_comp compensation
    entries and rollover appends carryover markers directly as well
*/
package ledger

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/overtime-engine/apperr"
	"github.com/warp/overtime-engine/model"
)

// Backend is the minimal persistence contract the Journal needs. store/sqlite
// and store/memory both implement it.
type Backend interface {
	InsertTransactions(ctx context.Context, txs []model.OvertimeTransaction) error
	DeleteTransactionsWhere(ctx context.Context, userID string, dates []string, types []model.TransactionType) error
	TransactionsForUser(ctx context.Context, userID string) ([]model.OvertimeTransaction, error)
	ReplaceChainForUser(ctx context.Context, userID string, txs []model.OvertimeTransaction) error
	ExistsIdempotencyKey(ctx context.Context, key string) (bool, error)
}

// Journal is the Overtime Journal (C3).
type Journal struct {
	backend Backend
}

func New(backend Backend) *Journal {
	return &Journal{backend: backend}
}

// Append records one transaction for userID, computing balanceBefore from
// the current tail (0 if the journal is empty) and balanceAfter = before + hours.
// This is a convenience wrapper around AppendBatch for a single entry.
func (j *Journal) Append(ctx context.Context, userID string, entry model.OvertimeTransaction) (model.OvertimeTransaction, error) {
	out, err := j.AppendBatch(ctx, userID, []model.OvertimeTransaction{entry})
	if err != nil {
		return model.OvertimeTransaction{}, err
	}
	return out[0], nil
}

// AppendBatch appends multiple entries in order, chaining balances across
// them, then against the existing tail. Used by the orchestrator when a
// single recompute produces several split entries for one day, or several
// days for one mutation.
func (j *Journal) AppendBatch(ctx context.Context, userID string, entries []model.OvertimeTransaction) ([]model.OvertimeTransaction, error) {
	if len(entries) == 0 {
		return nil, nil
	}

	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		exists, err := j.backend.ExistsIdempotencyKey(ctx, e.IdempotencyKey)
		if err != nil {
			return nil, apperr.Wrap(apperr.Transient, "checking idempotency key", err)
		}
		if exists {
			return nil, apperr.Newf(apperr.Conflict, "duplicate idempotency key %s", e.IdempotencyKey)
		}
	}

	tail, err := j.tailBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		entries[i].UserID = userID
		entries[i].BalanceBefore = tail
		entries[i].BalanceAfter = tail.Add(entries[i].Hours)
		tail = entries[i].BalanceAfter
	}

	if err := j.backend.InsertTransactions(ctx, entries); err != nil {
		return nil, apperr.Wrap(apperr.Transient, "inserting journal entries", err)
	}
	return entries, nil
}

func (j *Journal) tailBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	all, err := j.backend.TransactionsForUser(ctx, userID)
	if err != nil {
		return decimal.Zero, apperr.Wrap(apperr.Transient, "loading journal tail", err)
	}
	sortChain(all)
	if len(all) == 0 {
		return decimal.Zero, nil
	}
	return all[len(all)-1].BalanceAfter, nil
}

// DeleteWhere removes every transaction for userID on the given dates whose
// type is in kinds, then re-chains every remaining transaction for that
// user so balanceBefore/balanceAfter stay monotonic.
// The delete and the re-chain MUST be applied as one atomic unit; the
// Backend implementations run both under a single store transaction.
func (j *Journal) DeleteWhere(ctx context.Context, userID string, dates []string, kinds []model.TransactionType) error {
	if err := j.backend.DeleteTransactionsWhere(ctx, userID, dates, kinds); err != nil {
		return apperr.Wrap(apperr.Transient, "deleting journal entries", err)
	}
	return j.Rechain(ctx, userID)
}

// DeleteByReference removes every transaction for userID whose
// (referenceKind, referenceID) matches, then re-chains the remainder. Used
// to reverse a single out-of-band entry (e.g. an overtime_comp compensation
// spend) without touching the date-keyed entries DeleteWhere owns.
func (j *Journal) DeleteByReference(ctx context.Context, userID string, refKind model.ReferenceKind, refID string) error {
	all, err := j.backend.TransactionsForUser(ctx, userID)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "loading journal for reference delete", err)
	}

	kept := all[:0:0]
	for _, tx := range all {
		if tx.ReferenceKind == refKind && tx.ReferenceID == refID {
			continue
		}
		kept = append(kept, tx)
	}
	if len(kept) == len(all) {
		return nil
	}
	sortChain(kept)

	tail := decimal.Zero
	for i := range kept {
		kept[i].BalanceBefore = tail
		kept[i].BalanceAfter = tail.Add(kept[i].Hours)
		tail = kept[i].BalanceAfter
	}

	if err := j.backend.ReplaceChainForUser(ctx, userID, kept); err != nil {
		return apperr.Wrap(apperr.Transient, "persisting journal after reference delete", err)
	}
	return nil
}

// Rechain recomputes balanceBefore/balanceAfter for every transaction of
// userID in (date, createdAt, id) order. Called after any delete, and
// idempotent if called with nothing changed.
func (j *Journal) Rechain(ctx context.Context, userID string) error {
	all, err := j.backend.TransactionsForUser(ctx, userID)
	if err != nil {
		return apperr.Wrap(apperr.Transient, "loading journal for rechain", err)
	}
	sortChain(all)

	tail := decimal.Zero
	for i := range all {
		all[i].BalanceBefore = tail
		all[i].BalanceAfter = tail.Add(all[i].Hours)
		tail = all[i].BalanceAfter
	}

	if err := j.backend.ReplaceChainForUser(ctx, userID, all); err != nil {
		return apperr.Wrap(apperr.Transient, "persisting rechained journal", err)
	}
	return nil
}

// BalanceAsOf sums hours up to and including date (or the current tail if
// date is the zero value).
func (j *Journal) BalanceAsOf(ctx context.Context, userID string, date string) (decimal.Decimal, error) {
	all, err := j.backend.TransactionsForUser(ctx, userID)
	if err != nil {
		return decimal.Zero, apperr.Wrap(apperr.Transient, "loading journal", err)
	}
	sortChain(all)

	if date == "" {
		if len(all) == 0 {
			return decimal.Zero, nil
		}
		return all[len(all)-1].BalanceAfter, nil
	}

	balance := decimal.Zero
	for _, tx := range all {
		if tx.Date.String() > date {
			break
		}
		balance = balance.Add(tx.Hours)
	}
	return balance, nil
}

// Transactions returns every transaction for userID ordered by (date,
// createdAt, id), optionally narrowed to [from, to] (inclusive, "YYYY-MM-DD";
// empty means unbounded).
func (j *Journal) Transactions(ctx context.Context, userID, from, to string) ([]model.OvertimeTransaction, error) {
	all, err := j.backend.TransactionsForUser(ctx, userID)
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "loading journal", err)
	}
	sortChain(all)

	if from == "" && to == "" {
		return all, nil
	}
	var out []model.OvertimeTransaction
	for _, tx := range all {
		ds := tx.Date.String()
		if from != "" && ds < from {
			continue
		}
		if to != "" && ds > to {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}

func sortChain(txs []model.OvertimeTransaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		if !txs[i].CreatedAt.Equal(txs[j].CreatedAt) {
			return txs[i].CreatedAt.Before(txs[j].CreatedAt)
		}
		return txs[i].ID < txs[j].ID
	})
}

package memory

import (
	"context"
	"sync"

	"github.com/warp/overtime-engine/ledger"
	"github.com/warp/overtime-engine/model"
)

// JournalBackend is an in-memory ledger.Backend, independent of Store so
// tests can construct a ledger without a full timestore.
type JournalBackend struct {
	mu           sync.Mutex
	byUser       map[string][]model.OvertimeTransaction
	idempotency  map[string]bool
}

func NewJournalBackend() *JournalBackend {
	return &JournalBackend{
		byUser:      make(map[string][]model.OvertimeTransaction),
		idempotency: make(map[string]bool),
	}
}

var _ ledger.Backend = (*JournalBackend)(nil)

func (b *JournalBackend) InsertTransactions(_ context.Context, txs []model.OvertimeTransaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, tx := range txs {
		b.byUser[tx.UserID] = append(b.byUser[tx.UserID], tx)
		if tx.IdempotencyKey != "" {
			b.idempotency[tx.IdempotencyKey] = true
		}
	}
	return nil
}

func (b *JournalBackend) DeleteTransactionsWhere(_ context.Context, userID string, dates []string, types []model.TransactionType) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	dateSet := make(map[string]bool, len(dates))
	for _, d := range dates {
		dateSet[d] = true
	}
	typeSet := make(map[model.TransactionType]bool, len(types))
	for _, t := range types {
		typeSet[t] = true
	}

	existing := b.byUser[userID]
	kept := existing[:0:0]
	for _, tx := range existing {
		if dateSet[tx.Date.String()] && typeSet[tx.Type] {
			continue
		}
		kept = append(kept, tx)
	}
	b.byUser[userID] = kept
	return nil
}

func (b *JournalBackend) TransactionsForUser(_ context.Context, userID string) ([]model.OvertimeTransaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.OvertimeTransaction, len(b.byUser[userID]))
	copy(out, b.byUser[userID])
	return out, nil
}

func (b *JournalBackend) ReplaceChainForUser(_ context.Context, userID string, txs []model.OvertimeTransaction) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]model.OvertimeTransaction, len(txs))
	copy(cp, txs)
	b.byUser[userID] = cp
	return nil
}

func (b *JournalBackend) ExistsIdempotencyKey(_ context.Context, key string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.idempotency[key], nil
}

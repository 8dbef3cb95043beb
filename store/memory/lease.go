package memory

import (
	"context"
	"sync"

	"github.com/warp/overtime-engine/rollover"
)

// Lease is an in-memory implementation of rollover.Lease: a single
// process's set of years already claimed. Production uses the sqlite
// store's "INSERT OR IGNORE" unique-index variant instead.
type Lease struct {
	mu     sync.Mutex
	claimed map[int]bool
}

func NewLease() *Lease {
	return &Lease{claimed: make(map[int]bool)}
}

var _ rollover.Lease = (*Lease)(nil)

func (l *Lease) Acquire(_ context.Context, year int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.claimed[year] {
		return false, nil
	}
	l.claimed[year] = true
	return true, nil
}

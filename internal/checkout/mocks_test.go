package checkout

import (
	"context"
	"sync"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/fjod/meiduo/internal/repository"
	"github.com/shopspring/decimal"
)

// flakyCarts wraps a real cart store and fails Remove on demand.
type flakyCarts struct {
	CartStore
	removeErr error

	mu      sync.Mutex
	removed [][]int64
}

func (f *flakyCarts) Remove(ctx context.Context, userID int64, productIDs ...int64) error {
	f.mu.Lock()
	f.removed = append(f.removed, productIDs)
	f.mu.Unlock()
	if f.removeErr != nil {
		return f.removeErr
	}
	return f.CartStore.Remove(ctx, userID, productIDs...)
}

type staticCarts struct {
	lines []domain.CartLine
	err   error
}

func (s staticCarts) Selected(context.Context, int64) ([]domain.CartLine, error) {
	return s.lines, s.err
}

func (s staticCarts) Remove(context.Context, int64, ...int64) error {
	return nil
}

// failingTxStore delegates to a real repository but fails one transactional write.
type failingTxStore struct {
	Store
	totalsErr error
}

func (f *failingTxStore) WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	return f.Store.WithinTx(ctx, func(tx repository.Tx) error {
		return fn(&failingTx{Tx: tx, totalsErr: f.totalsErr})
	})
}

type failingTx struct {
	repository.Tx
	totalsErr error
}

func (f *failingTx) UpdateOrderTotals(context.Context, string, int, decimal.Decimal) error {
	return f.totalsErr
}

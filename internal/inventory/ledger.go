package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/fjod/meiduo/internal/repository"
	"github.com/rs/zerolog"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrTooManyConflicts  = errors.New("stock update kept conflicting")
)

// StockStore is the slice of the product table the ledger reads and writes.
// UpdateStock must only write when the stored stock equals expectedStock.
type StockStore interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	UpdateStock(ctx context.Context, id int64, expectedStock, newStock, newSales int) (bool, error)
}

// Ledger decrements stock with an optimistic compare-and-swap loop. A lost race
// is retried against a fresh read after a bounded backoff.
type Ledger struct {
	backoff     Backoff
	maxAttempts int // 0 retries until success, insufficient stock or ctx is done
	log         zerolog.Logger
}

type Option func(*Ledger)

func WithBackoff(b Backoff) Option {
	return func(l *Ledger) { l.backoff = b }
}

func WithMaxAttempts(n int) Option {
	return func(l *Ledger) { l.maxAttempts = n }
}

func WithLogger(log zerolog.Logger) Option {
	return func(l *Ledger) { l.log = log }
}

func NewLedger(opts ...Option) *Ledger {
	l := &Ledger{backoff: DefaultBackoff, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Purchase takes quantity units of productID out of stock and adds them to
// sales. It returns the product as it was written, so callers can capture the
// price the units were sold at.
func (l *Ledger) Purchase(ctx context.Context, store StockStore, productID int64, quantity int) (*domain.Product, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("purchase product %d: quantity %d must be positive", productID, quantity)
	}

	for attempt := 0; ; attempt++ {
		p, err := store.GetProduct(ctx, productID)
		if errors.Is(err, repository.ErrProductNotFound) {
			return nil, fmt.Errorf("product %d: %w", productID, ErrProductNotFound)
		}
		if err != nil {
			return nil, err
		}

		if quantity > p.Stock {
			return p, fmt.Errorf("product %d has %d, wants %d: %w", productID, p.Stock, quantity, ErrInsufficientStock)
		}

		newStock, newSales := p.Stock-quantity, p.Sales+quantity
		ok, err := store.UpdateStock(ctx, productID, p.Stock, newStock, newSales)
		if err != nil {
			return nil, err
		}
		if ok {
			p.Stock, p.Sales = newStock, newSales
			return p, nil
		}

		if l.maxAttempts > 0 && attempt+1 >= l.maxAttempts {
			return nil, fmt.Errorf("product %d after %d attempts: %w", productID, attempt+1, ErrTooManyConflicts)
		}
		l.log.Debug().Int64("product_id", productID).Int("attempt", attempt+1).Msg("stock changed underneath, retrying")
		if err := sleep(ctx, l.backoff.Delay(attempt)); err != nil {
			return nil, fmt.Errorf("purchase product %d: %w", productID, err)
		}
	}
}

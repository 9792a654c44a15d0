package checkout

import (
	"context"
	"time"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/fjod/meiduo/internal/inventory"
	"github.com/fjod/meiduo/internal/repository"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// CartStore is the authenticated cart backend.
type CartStore interface {
	Selected(ctx context.Context, userID int64) ([]domain.CartLine, error)
	Remove(ctx context.Context, userID int64, productIDs ...int64) error
}

type Store interface {
	GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error)
	WithinTx(ctx context.Context, fn func(tx repository.Tx) error) error
	MarkCartCleared(ctx context.Context, orderID string) error
}

type Purchaser interface {
	Purchase(ctx context.Context, store inventory.StockStore, productID int64, quantity int) (*domain.Product, error)
}

var DefaultFreight = decimal.RequireFromString("10.00")

const cleanupTimeout = 2 * time.Second

type Service struct {
	store   Store
	carts   CartStore
	ledger  Purchaser
	freight decimal.Decimal
	now     func() time.Time
	loc     *time.Location
	log     zerolog.Logger
	tracer  trace.Tracer
}

type Option func(*Service)

func WithFreight(f decimal.Decimal) Option {
	return func(s *Service) { s.freight = f }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocation sets the time zone order IDs are stamped in. Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) { s.loc = loc }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

func NewService(store Store, carts CartStore, ledger Purchaser, opts ...Option) *Service {
	s := &Service{
		store:   store,
		carts:   carts,
		ledger:  ledger,
		freight: DefaultFreight,
		now:     time.Now,
		loc:     time.UTC,
		log:     zerolog.Nop(),
		tracer:  otel.Tracer("github.com/fjod/meiduo/internal/checkout"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

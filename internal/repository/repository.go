package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fjod/meiduo/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrDuplicateOrder  = errors.New("order with this id already exists")
)

type Dialect string

const (
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type Credentials struct {
	Dialect    Dialect
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SQLitePath string
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type OutboxEvent struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// Tx is the set of writes an order submission performs inside one transaction.
type Tx interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	UpdateStock(ctx context.Context, id int64, expectedStock, newStock, newSales int) (bool, error)
	CreateOrder(ctx context.Context, header *domain.OrderHeader) error
	AddOrderLine(ctx context.Context, line domain.OrderLine) error
	UpdateOrderTotals(ctx context.Context, orderID string, totalCount int, totalAmount decimal.Decimal) error
	AddOutboxEvent(ctx context.Context, event *OutboxEvent) error
}

type ProductRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []int64) (map[int64]*domain.Product, error)
}

type OrderRepository interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]*domain.OrderHeader, error)
	MarkCartCleared(ctx context.Context, orderID string) error
}

type OutboxRepository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id string) error
}

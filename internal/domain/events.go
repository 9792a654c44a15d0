package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

const EventOrderCreated = "order.created"

// OrderCreatedEvent is the outbox payload written alongside every committed order.
type OrderCreatedEvent struct {
	OrderID     string          `json:"order_id"`
	UserID      int64           `json:"user_id"`
	ProductIDs  []int64         `json:"product_ids"`
	TotalCount  int             `json:"total_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	CreatedAt   time.Time       `json:"created_at"`
}

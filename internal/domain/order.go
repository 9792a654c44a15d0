package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type PayMethod int

const (
	PayMethodCash   PayMethod = 1 // cash on delivery
	PayMethodAlipay PayMethod = 2
)

func (p PayMethod) Valid() bool {
	return p == PayMethodCash || p == PayMethodAlipay
}

type OrderStatus int

const (
	OrderStatusUnpaid     OrderStatus = 1
	OrderStatusUnsend     OrderStatus = 2
	OrderStatusUnreceived OrderStatus = 3
	OrderStatusUncomment  OrderStatus = 4
	OrderStatusFinished   OrderStatus = 5
	OrderStatusCanceled   OrderStatus = 6
)

func (s OrderStatus) String() string {
	switch s {
	case OrderStatusUnpaid:
		return "UNPAID"
	case OrderStatusUnsend:
		return "UNSEND"
	case OrderStatusUnreceived:
		return "UNRECEIVED"
	case OrderStatusUncomment:
		return "UNCOMMENT"
	case OrderStatusFinished:
		return "FINISHED"
	case OrderStatusCanceled:
		return "CANCELED"
	default:
		return fmt.Sprintf("OrderStatus(%d)", int(s))
	}
}

// InitialStatus is the status a freshly committed order starts in.
// Cash on delivery ships straight away, everything else waits for payment.
func InitialStatus(method PayMethod) OrderStatus {
	if method == PayMethodCash {
		return OrderStatusUnsend
	}
	return OrderStatusUnpaid
}

// NewOrderID derives the order identifier from the submission time and the user.
func NewOrderID(at time.Time, userID int64) string {
	return at.Format("20060102150405") + fmt.Sprintf("%09d", userID)
}

type OrderHeader struct {
	ID          string          `json:"order_id"`
	UserID      int64           `json:"user_id"`
	AddressID   int64           `json:"address_id"`
	PayMethod   PayMethod       `json:"pay_method"`
	TotalCount  int             `json:"total_count"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Freight     decimal.Decimal `json:"freight"`
	Status      OrderStatus     `json:"status"`
	CartCleared bool            `json:"-"`
	CreatedAt   time.Time       `json:"created_at"`
}

type OrderLine struct {
	OrderID   string          `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type Order struct {
	OrderHeader
	Lines []OrderLine `json:"lines"`
}

type SettlementLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	ImageURL  string          `json:"image_url,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

// Settlement is a read-only preview of the order the current selection would produce.
type Settlement struct {
	Freight decimal.Decimal  `json:"freight"`
	Lines   []SettlementLine `json:"lines"`
}

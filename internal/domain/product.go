package domain

import "github.com/shopspring/decimal"

type Product struct {
	ID       int64
	Name     string
	Price    decimal.Decimal
	Stock    int
	Sales    int
	ImageURL string
}

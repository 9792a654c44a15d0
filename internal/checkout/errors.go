package checkout

import (
	"errors"
	"fmt"
)

var (
	ErrEmptySelection   = errors.New("no cart lines are selected")
	ErrInvalidPayMethod = errors.New("unsupported pay method")
)

// StockError names the product that made a submission fail. It unwraps to
// inventory.ErrInsufficientStock or inventory.ErrProductNotFound.
type StockError struct {
	ProductID   int64
	ProductName string
	Err         error
}

func (e *StockError) Error() string {
	if e.ProductName != "" {
		return fmt.Sprintf("%s (product %d): %v", e.ProductName, e.ProductID, e.Err)
	}
	return fmt.Sprintf("product %d: %v", e.ProductID, e.Err)
}

func (e *StockError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err is a business-rule rejection of the order
// rather than a system failure.
func IsRejected(err error) bool {
	var stockErr *StockError
	return errors.As(err, &stockErr) ||
		errors.Is(err, ErrEmptySelection) ||
		errors.Is(err, ErrInvalidPayMethod)
}

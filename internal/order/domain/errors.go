package domain

import (
	"errors"
	"fmt"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrUnknownPaymentMethod = errors.New("unknown payment method")
	ErrPaymentDeclined      = errors.New("payment declined")
	ErrPersistence          = errors.New("order could not be saved")

	ErrProductNotFound  = errors.New("product not found")
	ErrCartItemNotFound = errors.New("cart item not found")
	ErrInvalidQuantity  = errors.New("quantity must be greater than zero")
	ErrOrderNotFound    = errors.New("order not found")
)

// InsufficientStockError names the product whose live stock cannot cover the
// requested quantity. It matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	ProductID   int64
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = fmt.Sprintf("product %d", e.ProductID)
	}
	return fmt.Sprintf("insufficient stock for %s", name)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

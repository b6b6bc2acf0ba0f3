package service

import (
	"errors"
	"fmt"

	"github.com/kartshart/kartshart-backend/internal/app/model"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrOutOfStock        = errors.New("product is out of stock")
	ErrStockLimitReached = errors.New("stock limit reached")
	ErrInvalidVariation  = errors.New("invalid variation for product")
	ErrItemUnavailable   = errors.New("cart item is no longer available")
	ErrOwnerRequired     = errors.New("cart owner is required")
)

// StockLimitError reports the stock that capped an add.
type StockLimitError struct {
	ProductID uint
	Stock     int
}

func (e *StockLimitError) Error() string {
	return fmt.Sprintf("Cannot add more. Only %d items available in stock.", e.Stock)
}

func (e *StockLimitError) Unwrap() error {
	return ErrStockLimitReached
}

// ItemUnavailableError identifies the item that blocked a checkout.
type ItemUnavailableError struct {
	ProductID   uint
	ProductName string
	Status      model.StockStatus
}

func (e *ItemUnavailableError) Error() string {
	return fmt.Sprintf("%s is no longer available.", e.ProductName)
}

func (e *ItemUnavailableError) Unwrap() error {
	return ErrItemUnavailable
}

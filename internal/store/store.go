// Package store defines the persistence contracts shared by the checkout and
// cart services. Every repository is reached through a Tx so that cart,
// catalog and order writes commit or roll back together.
package store

import (
	"context"
	"errors"

	"github.com/nazeru/quickmart-checkout-go/internal/checkout/sequencer"
	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
	"github.com/nazeru/quickmart-checkout-go/pkg/contracts"
)

// ErrDuplicateKey reports a unique constraint violation, for example a reused
// idempotency key.
var ErrDuplicateKey = errors.New("duplicate key")

type Store interface {
	// InTx runs fn in one transaction. It commits when fn returns nil and rolls
	// back otherwise.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type Tx interface {
	Carts() CartRepository
	Catalog() CatalogRepository
	Orders() OrderRepository
	Sequence() sequencer.Counter
	Events() EventWriter
}

type CartRepository interface {
	// GetByUser returns nil and no error when the user has no cart yet.
	GetByUser(ctx context.Context, userID int64) (*domain.Cart, error)
	// LockByUser is GetByUser holding a row lock on the cart until the
	// transaction ends, so a cart is checked out at most once.
	LockByUser(ctx context.Context, userID int64) (*domain.Cart, error)
	Create(ctx context.Context, userID int64) (*domain.Cart, error)
	AddItem(ctx context.Context, item *domain.CartItem) error
	UpdateItem(ctx context.Context, item domain.CartItem) error
	RemoveItem(ctx context.Context, cartID, itemID int64) error
	ClearItems(ctx context.Context, cartID int64) error
}

type CatalogRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	// LockProduct reads a product and holds a row lock on it until the
	// transaction ends.
	LockProduct(ctx context.Context, id int64) (*domain.Product, error)
	// DecrementStock subtracts qty only if the stock covers it; otherwise it
	// returns domain.ErrInsufficientStock and changes nothing.
	DecrementStock(ctx context.Context, id int64, qty int) error
}

type OrderRepository interface {
	// Create inserts the order with its items and payment, filling in the
	// generated ids and timestamps.
	Create(ctx context.Context, order *domain.Order) error
	GetWithDetails(ctx context.Context, id int64) (*domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	FindByIdempotencyKey(ctx context.Context, userID int64, key string) (int64, error)
	SaveIdempotencyKey(ctx context.Context, userID int64, key string, orderID int64) error
}

type EventWriter interface {
	Append(ctx context.Context, evt contracts.Event) error
}

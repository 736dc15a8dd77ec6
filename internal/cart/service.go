package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/nazeru/quickmart-checkout-go/internal/checkout/pricing"
	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
	"github.com/nazeru/quickmart-checkout-go/internal/store"
)

type ItemView struct {
	CartItemID     int64            `json:"cart_item_id"`
	ProductID      int64            `json:"product_id"`
	ProductName    string           `json:"product_name"`
	Unit           string           `json:"unit"`
	Price          decimal.Decimal  `json:"price"`
	DiscountPrice  *decimal.Decimal `json:"discount_price,omitempty"`
	EffectivePrice decimal.Decimal  `json:"final_price"`
	Quantity       int              `json:"quantity"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
}

type View struct {
	CartID      int64           `json:"cart_id"`
	Items       []ItemView      `json:"items"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	TotalItems  int             `json:"total_items"`
}

type Service struct {
	store store.Store
}

func NewService(st store.Store) *Service {
	return &Service{store: st}
}

// Get returns the user's cart, creating an empty one on first access.
func (s *Service) Get(ctx context.Context, userID int64) (*View, error) {
	var view *View
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := getOrCreate(ctx, tx, userID)
		if err != nil {
			return err
		}
		view, err = render(ctx, tx, c)
		return err
	})
	return view, err
}

func (s *Service) AddItem(ctx context.Context, userID, productID int64, qty int) (*View, error) {
	if qty <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, func(ctx context.Context, tx store.Tx, c *domain.Cart) error {
		p, err := tx.Catalog().GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		if !p.Active {
			return domain.ErrProductNotFound
		}
		existing := c.ItemForProduct(productID)
		want := qty
		if existing != nil {
			want += existing.Quantity
		}
		if p.StockQuantity < want {
			return &domain.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: want, Available: p.StockQuantity}
		}
		if existing != nil {
			existing.Quantity = want
			existing.PriceAtAdd = p.EffectivePrice()
			return tx.Carts().UpdateItem(ctx, *existing)
		}
		return tx.Carts().AddItem(ctx, &domain.CartItem{
			CartID:     c.ID,
			ProductID:  productID,
			Quantity:   qty,
			PriceAtAdd: p.EffectivePrice(),
		})
	})
}

// UpdateItem sets the quantity of a line. Zero removes it.
func (s *Service) UpdateItem(ctx context.Context, userID, itemID int64, qty int) (*View, error) {
	if qty < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	return s.mutate(ctx, userID, func(ctx context.Context, tx store.Tx, c *domain.Cart) error {
		it := c.Item(itemID)
		if it == nil {
			return domain.ErrCartItemNotFound
		}
		if qty == 0 {
			return tx.Carts().RemoveItem(ctx, c.ID, itemID)
		}
		p, err := tx.Catalog().GetProduct(ctx, it.ProductID)
		if err != nil {
			return err
		}
		if p.StockQuantity < qty {
			return &domain.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: qty, Available: p.StockQuantity}
		}
		it.Quantity = qty
		return tx.Carts().UpdateItem(ctx, *it)
	})
}

// RemoveItem drops a line. Unknown lines are ignored.
func (s *Service) RemoveItem(ctx context.Context, userID, itemID int64) (*View, error) {
	return s.mutate(ctx, userID, func(ctx context.Context, tx store.Tx, c *domain.Cart) error {
		if c.Item(itemID) == nil {
			return nil
		}
		return tx.Carts().RemoveItem(ctx, c.ID, itemID)
	})
}

func (s *Service) Clear(ctx context.Context, userID int64) error {
	_, err := s.mutate(ctx, userID, func(ctx context.Context, tx store.Tx, c *domain.Cart) error {
		return tx.Carts().ClearItems(ctx, c.ID)
	})
	return err
}

func (s *Service) mutate(ctx context.Context, userID int64, fn func(context.Context, store.Tx, *domain.Cart) error) (*View, error) {
	var view *View
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		c, err := getOrCreate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, c); err != nil {
			return err
		}
		// Re-read so the view carries ids assigned by the store.
		c, err = tx.Carts().GetByUser(ctx, userID)
		if err != nil {
			return err
		}
		view, err = render(ctx, tx, c)
		return err
	})
	return view, err
}

func getOrCreate(ctx context.Context, tx store.Tx, userID int64) (*domain.Cart, error) {
	c, err := tx.Carts().GetByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if c != nil {
		return c, nil
	}
	c, err = tx.Carts().Create(ctx, userID)
	if errors.Is(err, store.ErrDuplicateKey) {
		return tx.Carts().GetByUser(ctx, userID)
	}
	return c, err
}

func render(ctx context.Context, tx store.Tx, c *domain.Cart) (*View, error) {
	view := &View{CartID: c.ID, Items: make([]ItemView, 0, len(c.Items)), TotalAmount: decimal.Zero}
	for _, it := range c.Items {
		p, err := tx.Catalog().GetProduct(ctx, it.ProductID)
		if err != nil {
			return nil, fmt.Errorf("load product %d: %w", it.ProductID, err)
		}
		line := pricing.Line{ListPrice: p.Price, DiscountPrice: p.DiscountPrice, Quantity: it.Quantity}
		view.Items = append(view.Items, ItemView{
			CartItemID:     it.ID,
			ProductID:      p.ID,
			ProductName:    p.Name,
			Unit:           p.Unit,
			Price:          p.Price,
			DiscountPrice:  p.DiscountPrice,
			EffectivePrice: line.EffectivePrice(),
			Quantity:       it.Quantity,
			Subtotal:       line.Total(),
		})
		view.TotalAmount = view.TotalAmount.Add(line.Total())
		view.TotalItems += it.Quantity
	}
	return view, nil
}

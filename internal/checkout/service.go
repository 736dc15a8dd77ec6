// Package checkout turns a user's cart into a committed order. It is the only
// write path for orders and payments.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nazeru/quickmart-checkout-go/internal/checkout/payment"
	"github.com/nazeru/quickmart-checkout-go/internal/checkout/pricing"
	"github.com/nazeru/quickmart-checkout-go/internal/checkout/sequencer"
	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
	"github.com/nazeru/quickmart-checkout-go/internal/store"
	"github.com/nazeru/quickmart-checkout-go/pkg/contracts"
	"github.com/nazeru/quickmart-checkout-go/pkg/logging"
	"github.com/nazeru/quickmart-checkout-go/pkg/metrics"
)

const serviceName = "checkout-service"

type CreateOrderRequest struct {
	ShippingAddress string `json:"shipping_address"`
	ShippingCity    string `json:"shipping_city"`
	ShippingZipCode string `json:"shipping_zip_code"`
	PaymentMethod   string `json:"payment_method"`
	CardNumber      string `json:"card_number"`
	CardExpiry      string `json:"card_expiry"`
	CardCVV         string `json:"card_cvv"`
	CardHolderName  string `json:"card_holder_name"`

	// IdempotencyKey makes a repeated request return the order committed by
	// the first one.
	IdempotencyKey string `json:"-"`
}

type Service struct {
	store    store.Store
	pricing  *pricing.Engine
	payments payment.Processor
	counter  sequencer.Counter
	now      func() time.Time
	metrics  *metrics.CheckoutMetrics
}

type Option func(*Service)

// WithCounter allocates order numbers from counter instead of the store's
// transactional counter.
func WithCounter(counter sequencer.Counter) Option {
	return func(s *Service) { s.counter = counter }
}

func WithPaymentProcessor(p payment.Processor) Option {
	return func(s *Service) { s.payments = p }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithMetrics(m *metrics.CheckoutMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(st store.Store, engine *pricing.Engine, opts ...Option) *Service {
	s := &Service{
		store:   st,
		pricing: engine,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.payments == nil {
		s.payments = payment.NewSimulator(s.now)
	}
	return s
}

// CreateOrder validates the user's cart against live stock, prices it, takes
// payment and commits the order, stock decrements and cart clearing as one
// unit. The returned order is read back after the commit.
func (s *Service) CreateOrder(ctx context.Context, userID int64, req CreateOrderRequest) (*domain.Order, error) {
	start := time.Now()
	key := strings.TrimSpace(req.IdempotencyKey)

	orderID, number, replayed, err := s.commit(ctx, userID, req, key)
	if err != nil && key != "" && errors.Is(err, store.ErrDuplicateKey) {
		// A concurrent request with the same key committed first.
		if id, lookupErr := s.lookupIdempotent(ctx, userID, key); lookupErr == nil {
			orderID, replayed, err = id, true, nil
		}
	}
	if err != nil {
		err = classify(err)
		s.metrics.Observe(resultLabel(err), start, 0)
		logging.Log(logging.Fields{Service: serviceName, UserID: userID, Step: "create_order", Status: "rejected", DurationMS: logging.Since(start), Error: err.Error()})
		return nil, err
	}

	order, err := s.readOrder(ctx, orderID)
	if err != nil {
		// The order is committed; only the response is lost.
		s.metrics.Observe("committed", start, 0)
		logging.Log(logging.Fields{Service: serviceName, UserID: userID, OrderID: orderID, OrderNumber: number, Step: "read_committed_order", Status: "error", DurationMS: logging.Since(start), Error: err.Error()})
		return nil, persistence("read committed order", err)
	}

	status := "committed"
	if replayed {
		status = "idempotent_replay"
	}
	final, _ := order.FinalAmount.Float64()
	if replayed {
		final = 0
	}
	s.metrics.Observe(status, start, final)
	logging.Log(logging.Fields{Service: serviceName, UserID: userID, OrderID: order.ID, OrderNumber: order.OrderNumber, Step: "create_order", Status: status, DurationMS: logging.Since(start)})
	return order, nil
}

func (s *Service) commit(ctx context.Context, userID int64, req CreateOrderRequest, key string) (orderID int64, number string, replayed bool, err error) {
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if key != "" {
			id, err := tx.Orders().FindByIdempotencyKey(ctx, userID, key)
			if err == nil {
				orderID, replayed = id, true
				return nil
			}
			if !errors.Is(err, domain.ErrOrderNotFound) {
				return persistence("idempotency lookup", err)
			}
		}
		var err error
		orderID, number, err = s.checkout(ctx, tx, userID, req, key)
		return err
	})
	return orderID, number, replayed, err
}

func (s *Service) checkout(ctx context.Context, tx store.Tx, userID int64, req CreateOrderRequest, key string) (int64, string, error) {
	cart, err := tx.Carts().LockByUser(ctx, userID)
	if err != nil {
		return 0, "", persistence("lock cart", err)
	}
	if cart.Empty() {
		return 0, "", domain.ErrEmptyCart
	}

	products, err := s.lockStock(ctx, tx, cart)
	if err != nil {
		return 0, "", err
	}

	method, err := domain.ParsePaymentMethod(req.PaymentMethod)
	if err != nil {
		return 0, "", err
	}

	lines := make([]pricing.Line, 0, len(cart.Items))
	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, it := range cart.Items {
		p := products[it.ProductID]
		line := pricing.Line{ListPrice: p.Price, DiscountPrice: p.DiscountPrice, Quantity: it.Quantity}
		lines = append(lines, line)
		items = append(items, domain.OrderItem{
			ProductID:     p.ID,
			ProductName:   p.Name,
			Quantity:      it.Quantity,
			UnitPrice:     p.Price,
			DiscountPrice: p.DiscountPrice,
			TotalPrice:    line.Total(),
		})
	}
	totals := s.pricing.Compute(lines)

	counter := s.counter
	if counter == nil {
		counter = tx.Sequence()
	}
	number, err := sequencer.New(counter, s.now).NextOrderNumber(ctx)
	if err != nil {
		return 0, "", persistence("allocate order number", err)
	}

	order := &domain.Order{
		UserID:          userID,
		OrderNumber:     number,
		TotalAmount:     totals.TotalAmount,
		DiscountAmount:  totals.DiscountAmount,
		TaxAmount:       totals.TaxAmount,
		FinalAmount:     totals.FinalAmount,
		Status:          domain.OrderStatusPending,
		ShippingAddress: req.ShippingAddress,
		ShippingCity:    req.ShippingCity,
		ShippingZipCode: req.ShippingZipCode,
		Items:           items,
	}

	res, err := s.payments.Process(ctx, payment.Request{
		Method:         method,
		Amount:         totals.FinalAmount,
		CardNumber:     req.CardNumber,
		CardExpiry:     req.CardExpiry,
		CardCVV:        req.CardCVV,
		CardHolderName: req.CardHolderName,
	})
	if err != nil {
		return 0, "", fmt.Errorf("%w: %v", domain.ErrPaymentDeclined, err)
	}
	if !res.Succeeded() {
		return 0, "", fmt.Errorf("%w: %s", domain.ErrPaymentDeclined, res.Reason)
	}
	paid := res.Payment
	order.Payment = &paid
	order.Status = domain.OrderStatusProcessing

	for _, it := range cart.Items {
		if err := tx.Catalog().DecrementStock(ctx, it.ProductID, it.Quantity); err != nil {
			if errors.Is(err, domain.ErrInsufficientStock) {
				p := products[it.ProductID]
				return 0, "", &domain.InsufficientStockError{ProductID: p.ID, ProductName: p.Name, Requested: it.Quantity}
			}
			return 0, "", persistence("decrement stock", err)
		}
	}

	if err := tx.Orders().Create(ctx, order); err != nil {
		return 0, "", persistence("insert order", err)
	}
	if key != "" {
		if err := tx.Orders().SaveIdempotencyKey(ctx, userID, key, order.ID); err != nil {
			return 0, "", persistence("save idempotency key", err)
		}
	}
	if err := tx.Carts().ClearItems(ctx, cart.ID); err != nil {
		return 0, "", persistence("clear cart", err)
	}
	events := []contracts.Event{
		contracts.NewEvent(contracts.EventOrderCreated, order.ID, order.OrderNumber, userID, map[string]any{
			"final_amount":   order.FinalAmount.StringFixed(2),
			"items":          len(order.Items),
			"transaction_id": paid.TransactionID,
		}),
		contracts.NewEvent(contracts.EventPaymentCaptured, order.ID, order.OrderNumber, userID, map[string]any{
			"amount":         paid.Amount.StringFixed(2),
			"payment_method": string(paid.Method),
			"transaction_id": paid.TransactionID,
		}),
	}
	for _, evt := range events {
		if err := tx.Events().Append(ctx, evt); err != nil {
			return 0, "", persistence("append outbox event", err)
		}
	}
	return order.ID, order.OrderNumber, nil
}

// lockStock re-reads every product in the cart under a row lock and checks the
// live stock. Locks are taken in product id order so concurrent checkouts of
// overlapping carts cannot deadlock.
func (s *Service) lockStock(ctx context.Context, tx store.Tx, cart *domain.Cart) (map[int64]*domain.Product, error) {
	lines := append([]domain.CartItem(nil), cart.Items...)
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })

	products := make(map[int64]*domain.Product, len(lines))
	for _, it := range lines {
		p, err := tx.Catalog().LockProduct(ctx, it.ProductID)
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, &domain.InsufficientStockError{ProductID: it.ProductID, Requested: it.Quantity}
		}
		if err != nil {
			return nil, persistence("load product", err)
		}
		if p.StockQuantity < it.Quantity {
			return nil, &domain.InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Requested:   it.Quantity,
				Available:   p.StockQuantity,
			}
		}
		products[p.ID] = p
	}
	return products, nil
}

func (s *Service) lookupIdempotent(ctx context.Context, userID int64, key string) (int64, error) {
	var id int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		id, err = tx.Orders().FindByIdempotencyKey(ctx, userID, key)
		return err
	})
	return id, err
}

func (s *Service) readOrder(ctx context.Context, orderID int64) (*domain.Order, error) {
	var order *domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		order, err = tx.Orders().GetWithDetails(ctx, orderID)
		return err
	})
	return order, err
}

// ListOrders returns the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	var out []domain.Order
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Orders().ListByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, persistence("list orders", err)
	}
	return out, nil
}

// GetOrder returns ErrOrderNotFound for orders owned by someone else.
func (s *Service) GetOrder(ctx context.Context, userID, orderID int64) (*domain.Order, error) {
	order, err := s.readOrder(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, persistence("get order", err)
	}
	if order.UserID != userID {
		return nil, domain.ErrOrderNotFound
	}
	return order, nil
}

func persistence(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrPersistence, op, err)
}

// classify leaves pipeline errors alone and turns anything else, such as a
// failed commit, into a persistence failure.
func classify(err error) error {
	for _, known := range []error{
		domain.ErrEmptyCart,
		domain.ErrInsufficientStock,
		domain.ErrUnknownPaymentMethod,
		domain.ErrPaymentDeclined,
		domain.ErrPersistence,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	return persistence("commit", err)
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, domain.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, domain.ErrUnknownPaymentMethod):
		return "unknown_payment_method"
	case errors.Is(err, domain.ErrPaymentDeclined):
		return "payment_declined"
	default:
		return "persistence_failure"
	}
}

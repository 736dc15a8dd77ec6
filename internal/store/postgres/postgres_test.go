package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nazeru/quickmart-checkout-go/internal/checkout"
	"github.com/nazeru/quickmart-checkout-go/internal/checkout/pricing"
	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
	"github.com/nazeru/quickmart-checkout-go/internal/store"
	"github.com/nazeru/quickmart-checkout-go/pkg/contracts"
	"github.com/nazeru/quickmart-checkout-go/pkg/outbox"
)

// openTestStore connects to TEST_DATABASE_URL; tests are skipped without it.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return New(pool, "")
}

func seedProduct(t *testing.T, s *Store, stock int) domain.Product {
	t.Helper()
	p := domain.Product{Name: "test-" + uuid.NewString(), Price: decimal.RequireFromString("40.00"), StockQuantity: stock, Active: true}
	require.NoError(t, s.SeedProducts(context.Background(), []domain.Product{p}))
	err := s.pool.QueryRow(context.Background(), `SELECT product_id FROM products WHERE product_name=$1`, p.Name).Scan(&p.ID)
	require.NoError(t, err)
	return p
}

func fillCart(t *testing.T, s *Store, userID int64, p domain.Product, qty int) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		c, err := tx.Carts().Create(ctx, userID)
		if err != nil {
			return err
		}
		return tx.Carts().AddItem(ctx, &domain.CartItem{CartID: c.ID, ProductID: p.ID, Quantity: qty, PriceAtAdd: p.Price})
	})
	require.NoError(t, err)
}

func TestCheckoutCommitsEverything(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 10)
	userID := time.Now().UnixNano()
	fillCart(t, s, userID, p, 3)

	svc := checkout.NewService(s, pricing.NewEngine(pricing.DefaultTaxRate))
	order, err := svc.CreateOrder(ctx, userID, checkout.CreateOrderRequest{PaymentMethod: "Cash"})
	require.NoError(t, err)

	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("120")))
	assert.True(t, order.TaxAmount.Equal(decimal.RequireFromString("6")))
	require.NotNil(t, order.Payment)
	require.Len(t, order.Items, 1)

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Catalog().GetProduct(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 7, got.StockQuantity)

		c, err := tx.Carts().GetByUser(ctx, userID)
		require.NoError(t, err)
		assert.True(t, c.Empty())
		return nil
	})
	require.NoError(t, err)

	pending, err := outbox.FetchPending(ctx, s.pool, 1000)
	require.NoError(t, err)
	var kinds []string
	for _, rec := range pending {
		if rec.Key != order.OrderNumber {
			continue
		}
		var evt contracts.Event
		require.NoError(t, json.Unmarshal(rec.Payload, &evt))
		kinds = append(kinds, evt.Type)
	}
	assert.ElementsMatch(t, []string{contracts.EventOrderCreated, contracts.EventPaymentCaptured}, kinds)
}

func TestFailedCheckoutLeavesNoTrace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	p := seedProduct(t, s, 2)
	userID := time.Now().UnixNano()
	fillCart(t, s, userID, p, 2)
	_, err := s.pool.Exec(ctx, `UPDATE products SET stock_quantity=1 WHERE product_id=$1`, p.ID)
	require.NoError(t, err)

	svc := checkout.NewService(s, pricing.NewEngine(pricing.DefaultTaxRate))
	_, err = svc.CreateOrder(ctx, userID, checkout.CreateOrderRequest{PaymentMethod: "Cash"})
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	var count int
	require.NoError(t, s.pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE user_id=$1`, userID).Scan(&count))
	assert.Zero(t, count)
}

func TestConcurrentCheckoutsNeverOversell(t *testing.T) {
	s := openTestStore(t)
	p := seedProduct(t, s, 5)
	base := time.Now().UnixNano()
	const shoppers = 12
	for i := 0; i < shoppers; i++ {
		fillCart(t, s, base+int64(i), p, 1)
	}

	svc := checkout.NewService(s, pricing.NewEngine(pricing.DefaultTaxRate))
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		numbers  = map[string]bool{}
		rejected int
	)
	for i := 0; i < shoppers; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			o, err := svc.CreateOrder(context.Background(), userID, checkout.CreateOrderRequest{PaymentMethod: "UPI"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				numbers[o.OrderNumber] = true
			case errors.Is(err, domain.ErrInsufficientStock):
				rejected++
			default:
				assert.NoError(t, err, fmt.Sprintf("user %d", userID))
			}
		}(base + int64(i))
	}
	wg.Wait()

	assert.Len(t, numbers, 5)
	assert.Equal(t, shoppers-5, rejected)
	var stock int
	require.NoError(t, s.pool.QueryRow(context.Background(), `SELECT stock_quantity FROM products WHERE product_id=$1`, p.ID).Scan(&stock))
	assert.Zero(t, stock)
}

func TestIdempotencyKeyIsUniquePerUser(t *testing.T) {
	s := openTestStore(t)
	p := seedProduct(t, s, 5)
	userID := time.Now().UnixNano()
	fillCart(t, s, userID, p, 1)

	svc := checkout.NewService(s, pricing.NewEngine(pricing.DefaultTaxRate))
	req := checkout.CreateOrderRequest{PaymentMethod: "Cash", IdempotencyKey: uuid.NewString()}
	first, err := svc.CreateOrder(context.Background(), userID, req)
	require.NoError(t, err)
	second, err := svc.CreateOrder(context.Background(), userID, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
}

func TestConcurrentCheckoutsOfOneCartCreateOneOrder(t *testing.T) {
	s := openTestStore(t)
	p := seedProduct(t, s, 10)
	userID := time.Now().UnixNano()
	fillCart(t, s, userID, p, 2)

	svc := checkout.NewService(s, pricing.NewEngine(pricing.DefaultTaxRate))
	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateOrder(context.Background(), userID, checkout.CreateOrderRequest{PaymentMethod: "Cash"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrEmptyCart)
	}
	assert.Equal(t, 1, succeeded)

	var orders, stock int
	require.NoError(t, s.pool.QueryRow(context.Background(), `SELECT count(*) FROM orders WHERE user_id=$1`, userID).Scan(&orders))
	require.NoError(t, s.pool.QueryRow(context.Background(), `SELECT stock_quantity FROM products WHERE product_id=$1`, p.ID).Scan(&stock))
	assert.Equal(t, 1, orders)
	assert.Equal(t, 8, stock)
}

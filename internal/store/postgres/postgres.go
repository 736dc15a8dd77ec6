// Package postgres implements the store contracts on PostgreSQL through pgx.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/nazeru/quickmart-checkout-go/internal/checkout/sequencer"
	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
	"github.com/nazeru/quickmart-checkout-go/internal/store"
	"github.com/nazeru/quickmart-checkout-go/pkg/contracts"
	"github.com/nazeru/quickmart-checkout-go/pkg/outbox"
)

//go:embed schema.sql
var schema string

// DefaultTopic receives order events when no topic is configured.
const DefaultTopic = "quickmart.orders"

type Store struct {
	pool  *pgxpool.Pool
	topic string
}

func New(pool *pgxpool.Pool, topic string) *Store {
	if topic == "" {
		topic = DefaultTopic
	}
	return &Store{pool: pool, topic: topic}
}

// Connect opens a pool and checks the server answers.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, err
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate creates missing tables. It is safe to run on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = pgtx.Rollback(ctx) }()

	if err := fn(ctx, &tx{q: pgtx, topic: s.topic}); err != nil {
		return err
	}
	return mapErr(pgtx.Commit(ctx))
}

// SeedProducts inserts products that are not present yet, keyed by name.
func (s *Store) SeedProducts(ctx context.Context, products []domain.Product) error {
	for _, p := range products {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO products(product_name, category_id, unit, price, discount_price, stock_quantity, is_active)
			SELECT $1, $2, $3, $4, $5, $6, $7
			WHERE NOT EXISTS (SELECT 1 FROM products WHERE product_name=$1)`,
			p.Name, p.CategoryID, p.Unit, p.Price, nullDecimal(p.DiscountPrice), p.StockQuantity, p.Active,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %v", store.ErrDuplicateKey, err)
	}
	return err
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func decimalPtr(n decimal.NullDecimal) *decimal.Decimal {
	if !n.Valid {
		return nil
	}
	d := n.Decimal
	return &d
}

type tx struct {
	q     pgx.Tx
	topic string
}

func (t *tx) Carts() store.CartRepository { return carts{t} }
func (t *tx) Catalog() store.CatalogRepository { return catalog{t} }
func (t *tx) Orders() store.OrderRepository { return orders{t} }
func (t *tx) Sequence() sequencer.Counter { return sequences{t} }
func (t *tx) Events() store.EventWriter { return events{t} }

type carts struct{ *tx }

func (r carts) GetByUser(ctx context.Context, userID int64) (*domain.Cart, error) {
	return r.load(ctx, `SELECT cart_id FROM carts WHERE user_id=$1`, userID)
}

func (r carts) LockByUser(ctx context.Context, userID int64) (*domain.Cart, error) {
	return r.load(ctx, `SELECT cart_id FROM carts WHERE user_id=$1 FOR UPDATE`, userID)
}

// load reads the cart row with cartSQL and then its items, in a separate
// statement that sees changes committed while waiting on a row lock.
func (r carts) load(ctx context.Context, cartSQL string, userID int64) (*domain.Cart, error) {
	c := &domain.Cart{UserID: userID}
	err := r.q.QueryRow(ctx, cartSQL, userID).Scan(&c.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.q.Query(ctx, `
		SELECT cart_item_id, product_id, quantity, price_at_add, added_at
		FROM cart_items WHERE cart_id=$1 ORDER BY cart_item_id`, c.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		it := domain.CartItem{CartID: c.ID}
		if err := rows.Scan(&it.ID, &it.ProductID, &it.Quantity, &it.PriceAtAdd, &it.AddedAt); err != nil {
			return nil, err
		}
		c.Items = append(c.Items, it)
	}
	return c, rows.Err()
}

func (r carts) Create(ctx context.Context, userID int64) (*domain.Cart, error) {
	c := &domain.Cart{UserID: userID}
	// ON CONFLICT keeps the transaction usable when a concurrent request
	// created the cart first.
	err := r.q.QueryRow(ctx,
		`INSERT INTO carts(user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING RETURNING cart_id`, userID,
	).Scan(&c.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrDuplicateKey
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (r carts) AddItem(ctx context.Context, item *domain.CartItem) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO cart_items(cart_id, product_id, quantity, price_at_add)
		VALUES ($1, $2, $3, $4)
		RETURNING cart_item_id, added_at`,
		item.CartID, item.ProductID, item.Quantity, item.PriceAtAdd,
	).Scan(&item.ID, &item.AddedAt)
	return mapErr(err)
}

func (r carts) UpdateItem(ctx context.Context, item domain.CartItem) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE cart_items SET quantity=$3, price_at_add=$4
		WHERE cart_item_id=$1 AND cart_id=$2`,
		item.ID, item.CartID, item.Quantity, item.PriceAtAdd,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCartItemNotFound
	}
	return nil
}

func (r carts) RemoveItem(ctx context.Context, cartID, itemID int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1 AND cart_item_id=$2`, cartID, itemID)
	return err
}

func (r carts) ClearItems(ctx context.Context, cartID int64) error {
	_, err := r.q.Exec(ctx, `DELETE FROM cart_items WHERE cart_id=$1`, cartID)
	return err
}

type catalog struct{ *tx }

const productColumns = `product_id, category_id, product_name, unit, price, discount_price, stock_quantity, is_active`

func (r catalog) scanProduct(row pgx.Row) (*domain.Product, error) {
	var (
		p        domain.Product
		discount decimal.NullDecimal
	)
	err := row.Scan(&p.ID, &p.CategoryID, &p.Name, &p.Unit, &p.Price, &discount, &p.StockQuantity, &p.Active)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}
	p.DiscountPrice = decimalPtr(discount)
	return &p, nil
}

func (r catalog) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return r.scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE product_id=$1`, id))
}

func (r catalog) LockProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return r.scanProduct(r.q.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE product_id=$1 FOR UPDATE`, id))
}

func (r catalog) DecrementStock(ctx context.Context, id int64, qty int) error {
	tag, err := r.q.Exec(ctx, `
		UPDATE products SET stock_quantity = stock_quantity - $2
		WHERE product_id=$1 AND stock_quantity >= $2`, id, qty)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientStock
	}
	return nil
}

type orders struct{ *tx }

func (r orders) Create(ctx context.Context, o *domain.Order) error {
	err := r.q.QueryRow(ctx, `
		INSERT INTO orders(user_id, order_number, total_amount, discount_amount, tax_amount, final_amount,
			status, shipping_address, shipping_city, shipping_zip_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING order_id, order_date`,
		o.UserID, o.OrderNumber, o.TotalAmount, o.DiscountAmount, o.TaxAmount, o.FinalAmount,
		string(o.Status), o.ShippingAddress, o.ShippingCity, o.ShippingZipCode,
	).Scan(&o.ID, &o.CreatedAt)
	if err != nil {
		return mapErr(err)
	}

	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err := r.q.QueryRow(ctx, `
			INSERT INTO order_items(order_id, product_id, product_name, quantity, unit_price, discount_price, total_price)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING order_item_id`,
			o.ID, it.ProductID, it.ProductName, it.Quantity, it.UnitPrice, nullDecimal(it.DiscountPrice), it.TotalPrice,
		).Scan(&it.ID)
		if err != nil {
			return mapErr(err)
		}
	}

	if p := o.Payment; p != nil {
		p.OrderID = o.ID
		err := r.q.QueryRow(ctx, `
			INSERT INTO payments(order_id, payment_method, transaction_id, payment_status, amount, payment_date,
				card_last_four_digits, card_type)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING payment_id`,
			o.ID, string(p.Method), p.TransactionID, string(p.Status), p.Amount, p.PaidAt, p.CardLastFour, p.CardType,
		).Scan(&p.ID)
		if err != nil {
			return mapErr(err)
		}
	}
	return nil
}

const orderColumns = `order_id, user_id, order_number, order_date, total_amount, discount_amount, tax_amount,
	final_amount, status, shipping_address, shipping_city, shipping_zip_code`

func scanOrder(row pgx.Row) (domain.Order, error) {
	var (
		o      domain.Order
		status string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.OrderNumber, &o.CreatedAt, &o.TotalAmount, &o.DiscountAmount,
		&o.TaxAmount, &o.FinalAmount, &status, &o.ShippingAddress, &o.ShippingCity, &o.ShippingZipCode)
	o.Status = domain.OrderStatus(status)
	return o, err
}

func (r orders) GetWithDetails(ctx context.Context, id int64) (*domain.Order, error) {
	o, err := scanOrder(r.q.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	list := []domain.Order{o}
	if err := r.loadDetails(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

func (r orders) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1 ORDER BY order_date DESC, order_id DESC`, userID)
	if err != nil {
		return nil, err
	}
	var out []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := r.loadDetails(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadDetails fills items and payments for all orders with two queries.
func (r orders) loadDetails(ctx context.Context, list []domain.Order) error {
	if len(list) == 0 {
		return nil
	}
	ids := make([]int64, len(list))
	index := make(map[int64]int, len(list))
	for i, o := range list {
		ids[i] = o.ID
		index[o.ID] = i
	}

	rows, err := r.q.Query(ctx, `
		SELECT order_item_id, order_id, product_id, product_name, quantity, unit_price, discount_price, total_price
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_item_id`, ids)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			it       domain.OrderItem
			discount decimal.NullDecimal
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity,
			&it.UnitPrice, &discount, &it.TotalPrice); err != nil {
			rows.Close()
			return err
		}
		it.DiscountPrice = decimalPtr(discount)
		o := &list[index[it.OrderID]]
		o.Items = append(o.Items, it)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	rows, err = r.q.Query(ctx, `
		SELECT payment_id, order_id, payment_method, transaction_id, payment_status, amount, payment_date,
			card_last_four_digits, card_type
		FROM payments WHERE order_id = ANY($1)`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p              domain.Payment
			method, status string
		)
		if err := rows.Scan(&p.ID, &p.OrderID, &method, &p.TransactionID, &status, &p.Amount, &p.PaidAt,
			&p.CardLastFour, &p.CardType); err != nil {
			return err
		}
		p.Method = domain.PaymentMethod(method)
		p.Status = domain.PaymentStatus(status)
		list[index[p.OrderID]].Payment = &p
	}
	return rows.Err()
}

func (r orders) FindByIdempotencyKey(ctx context.Context, userID int64, key string) (int64, error) {
	var id int64
	err := r.q.QueryRow(ctx,
		`SELECT order_id FROM order_idempotency WHERE user_id=$1 AND idempotency_key=$2`, userID, key,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrOrderNotFound
	}
	return id, err
}

func (r orders) SaveIdempotencyKey(ctx context.Context, userID int64, key string, orderID int64) error {
	_, err := r.q.Exec(ctx,
		`INSERT INTO order_idempotency(user_id, idempotency_key, order_id) VALUES ($1, $2, $3)`,
		userID, key, orderID,
	)
	return mapErr(err)
}

type sequences struct{ *tx }

// Next bumps the day's row. A missing row is seeded from the highest number
// already stored for the day so a fresh counter table never reissues one.
// The row lock is held until the checkout commits, and a rollback returns the
// number.
func (r sequences) Next(ctx context.Context, day string) (int64, error) {
	prefix := sequencer.DayPrefix(day)
	var n int64
	err := r.q.QueryRow(ctx, `
		INSERT INTO order_sequences(day, last_value)
		VALUES ($1, COALESCE((
			SELECT MAX(CAST(SUBSTRING(order_number FROM $3::int) AS BIGINT))
			FROM orders WHERE order_number LIKE $2 || '%'
		), 0) + 1)
		ON CONFLICT (day) DO UPDATE SET last_value = order_sequences.last_value + 1
		RETURNING last_value`,
		day, prefix, len(prefix)+1,
	).Scan(&n)
	return n, err
}

type events struct{ *tx }

func (r events) Append(ctx context.Context, evt contracts.Event) error {
	return outbox.Insert(ctx, r.q, evt.EventID, r.topic, evt.Key(), evt)
}

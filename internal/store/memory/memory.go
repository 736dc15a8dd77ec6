// Package memory is a process-local store. Transactions are serialised by a
// mutex and work on a copy of the state that replaces the live state only on
// commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nazeru/quickmart-checkout-go/internal/checkout/sequencer"
	"github.com/nazeru/quickmart-checkout-go/internal/order/domain"
	"github.com/nazeru/quickmart-checkout-go/internal/store"
	"github.com/nazeru/quickmart-checkout-go/pkg/contracts"
)

// MaxRetainedEvents bounds the event log to its newest entries.
const MaxRetainedEvents = 1000

type idemKey struct {
	userID int64
	key    string
}

type state struct {
	lastID    int64
	products  map[int64]domain.Product
	carts     map[int64]*domain.Cart // by user id
	orders    map[int64]domain.Order
	idem      map[idemKey]int64
	sequences map[string]int64
	events    []contracts.Event
}

func newState() *state {
	return &state{
		products:  map[int64]domain.Product{},
		carts:     map[int64]*domain.Cart{},
		orders:    map[int64]domain.Order{},
		idem:      map[idemKey]int64{},
		sequences: map[string]int64{},
	}
}

func (s *state) clone() *state {
	c := &state{
		lastID:    s.lastID,
		products:  make(map[int64]domain.Product, len(s.products)),
		carts:     make(map[int64]*domain.Cart, len(s.carts)),
		orders:    make(map[int64]domain.Order, len(s.orders)),
		idem:      make(map[idemKey]int64, len(s.idem)),
		sequences: make(map[string]int64, len(s.sequences)),
		events:    append([]contracts.Event(nil), s.events...),
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = copyCart(v)
	}
	// Orders are never mutated once written, so sharing their slices is safe.
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.idem {
		c.idem[k] = v
	}
	for k, v := range s.sequences {
		c.sequences[k] = v
	}
	return c
}

func (s *state) newID() int64 {
	s.lastID++
	return s.lastID
}

func copyCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = append([]domain.CartItem(nil), c.Items...)
	return &cp
}

func copyOrder(o domain.Order) *domain.Order {
	cp := o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	if o.Payment != nil {
		p := *o.Payment
		cp.Payment = &p
	}
	return &cp
}

type Store struct {
	mu  sync.Mutex
	st  *state
	now func() time.Time
}

func New() *Store {
	return &Store{st: newState(), now: time.Now}
}

// WithClock replaces the clock used for generated timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	work := s.st.clone()
	if err := fn(ctx, &tx{st: work, now: s.now}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// PutProduct inserts or replaces a catalog entry. A zero ID is assigned.
func (s *Store) PutProduct(p domain.Product) domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == 0 {
		p.ID = s.st.newID()
	} else if p.ID > s.st.lastID {
		s.st.lastID = p.ID
	}
	s.st.products[p.ID] = p
	return p
}

func (s *Store) Product(id int64) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.st.products[id]
	return p, ok
}

// PendingEvents returns the newest MaxRetainedEvents events appended by
// committed transactions, oldest first.
func (s *Store) PendingEvents() []contracts.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]contracts.Event(nil), s.st.events...)
}

// OrderCount is the number of committed orders.
func (s *Store) OrderCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.orders)
}

type tx struct {
	st  *state
	now func() time.Time
}

func (t *tx) Carts() store.CartRepository { return carts{t} }
func (t *tx) Catalog() store.CatalogRepository { return catalog{t} }
func (t *tx) Orders() store.OrderRepository { return orders{t} }
func (t *tx) Sequence() sequencer.Counter { return sequences{t} }
func (t *tx) Events() store.EventWriter { return events{t} }

type carts struct{ *tx }

func (r carts) GetByUser(_ context.Context, userID int64) (*domain.Cart, error) {
	c, ok := r.st.carts[userID]
	if !ok {
		return nil, nil
	}
	return copyCart(c), nil
}

// LockByUser needs no extra lock; InTx already serialises transactions.
func (r carts) LockByUser(ctx context.Context, userID int64) (*domain.Cart, error) {
	return r.GetByUser(ctx, userID)
}

func (r carts) Create(_ context.Context, userID int64) (*domain.Cart, error) {
	if _, ok := r.st.carts[userID]; ok {
		return nil, store.ErrDuplicateKey
	}
	c := &domain.Cart{ID: r.st.newID(), UserID: userID}
	r.st.carts[userID] = c
	return copyCart(c), nil
}

func (r carts) byID(cartID int64) *domain.Cart {
	for _, c := range r.st.carts {
		if c.ID == cartID {
			return c
		}
	}
	return nil
}

func (r carts) AddItem(_ context.Context, item *domain.CartItem) error {
	c := r.byID(item.CartID)
	if c == nil {
		return domain.ErrCartItemNotFound
	}
	if c.ItemForProduct(item.ProductID) != nil {
		return store.ErrDuplicateKey
	}
	item.ID = r.st.newID()
	item.AddedAt = r.now().UTC()
	c.Items = append(c.Items, *item)
	return nil
}

func (r carts) UpdateItem(_ context.Context, item domain.CartItem) error {
	c := r.byID(item.CartID)
	if c == nil {
		return domain.ErrCartItemNotFound
	}
	existing := c.Item(item.ID)
	if existing == nil {
		return domain.ErrCartItemNotFound
	}
	existing.Quantity = item.Quantity
	existing.PriceAtAdd = item.PriceAtAdd
	return nil
}

func (r carts) RemoveItem(_ context.Context, cartID, itemID int64) error {
	c := r.byID(cartID)
	if c == nil {
		return nil
	}
	kept := c.Items[:0]
	for _, it := range c.Items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	c.Items = kept
	return nil
}

func (r carts) ClearItems(_ context.Context, cartID int64) error {
	if c := r.byID(cartID); c != nil {
		c.Items = nil
	}
	return nil
}

type catalog struct{ *tx }

func (r catalog) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	p, ok := r.st.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &p, nil
}

// LockProduct is a plain read: the store mutex already serialises transactions.
func (r catalog) LockProduct(ctx context.Context, id int64) (*domain.Product, error) {
	return r.GetProduct(ctx, id)
}

func (r catalog) DecrementStock(_ context.Context, id int64, qty int) error {
	p, ok := r.st.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	if p.StockQuantity < qty {
		return domain.ErrInsufficientStock
	}
	p.StockQuantity -= qty
	r.st.products[id] = p
	return nil
}

type orders struct{ *tx }

func (r orders) Create(_ context.Context, o *domain.Order) error {
	for _, existing := range r.st.orders {
		if existing.OrderNumber == o.OrderNumber {
			return store.ErrDuplicateKey
		}
	}
	now := r.now().UTC()
	o.ID = r.st.newID()
	o.CreatedAt = now
	for i := range o.Items {
		o.Items[i].ID = r.st.newID()
		o.Items[i].OrderID = o.ID
	}
	if o.Payment != nil {
		o.Payment.ID = r.st.newID()
		o.Payment.OrderID = o.ID
	}
	r.st.orders[o.ID] = *copyOrder(*o)
	return nil
}

func (r orders) GetWithDetails(_ context.Context, id int64) (*domain.Order, error) {
	o, ok := r.st.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return copyOrder(o), nil
}

func (r orders) ListByUser(_ context.Context, userID int64) ([]domain.Order, error) {
	var out []domain.Order
	for _, o := range r.st.orders {
		if o.UserID == userID {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r orders) FindByIdempotencyKey(_ context.Context, userID int64, key string) (int64, error) {
	id, ok := r.st.idem[idemKey{userID, key}]
	if !ok {
		return 0, domain.ErrOrderNotFound
	}
	return id, nil
}

func (r orders) SaveIdempotencyKey(_ context.Context, userID int64, key string, orderID int64) error {
	k := idemKey{userID, key}
	if _, ok := r.st.idem[k]; ok {
		return store.ErrDuplicateKey
	}
	r.st.idem[k] = orderID
	return nil
}

type sequences struct{ *tx }

func (r sequences) Next(_ context.Context, day string) (int64, error) {
	r.st.sequences[day]++
	return r.st.sequences[day], nil
}

type events struct{ *tx }

func (r events) Append(_ context.Context, evt contracts.Event) error {
	r.st.events = append(r.st.events, evt)
	if n := len(r.st.events) - MaxRetainedEvents; n > 0 {
		r.st.events = append([]contracts.Event(nil), r.st.events[n:]...)
	}
	return nil
}

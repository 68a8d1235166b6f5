// Package cart holds the per-session shopping cart and mirrors it to the
// user's cart document.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/domain"
)

const (
	CartsCollection  = "carts"
	OrdersCollection = "orders"

	defaultWriteTimeout = 5 * time.Second
	writeQueueSize      = 64
)

// OrderPublisher is told about every order the store records.
type OrderPublisher interface {
	PublishOrderPlaced(ctx context.Context, order domain.Order) error
}

// write is either a cart mirror write or, when flushed is set, a marker
// that the writer closes once every earlier write has been applied.
type write struct {
	userID  string
	doc     docstore.Document
	flushed chan struct{}
}

// Store is the authoritative in-memory cart of one session. Every mutation
// produces exactly one merge-write of the items field; writes are applied
// in mutation order by a single writer goroutine and are not awaited.
type Store struct {
	docs         docstore.Store
	log          *zap.Logger
	publisher    OrderPublisher
	currency     string
	writeTimeout time.Duration
	now          func() time.Time

	mu      sync.Mutex
	userID  string
	items   []domain.LineItem
	version int64
	closed  bool

	writes chan write
	done   chan struct{}
}

type Option func(*Store)

func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

func WithPublisher(p OrderPublisher) Option {
	return func(s *Store) { s.publisher = p }
}

func WithCurrency(currency string) Option {
	return func(s *Store) { s.currency = currency }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.writeTimeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(docs docstore.Store, opts ...Option) *Store {
	s := &Store{
		docs:         docs,
		log:          zap.NewNop(),
		writeTimeout: defaultWriteTimeout,
		now:          time.Now,
		items:        []domain.LineItem{},
		writes:       make(chan write, writeQueueSize),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.writeLoop()
	return s
}

// Hydrate binds the store to userID and loads the remote cart if one exists.
// An empty userID keeps the cart memory-only. Read failures are logged and
// leave the cart as it is.
func (s *Store) Hydrate(ctx context.Context, userID string) {
	s.mu.Lock()
	if s.userID != "" && s.userID != userID {
		s.items = []domain.LineItem{}
		s.version = 0
	}
	s.userID = userID
	s.mu.Unlock()

	if userID == "" {
		return
	}

	doc, err := s.docs.Get(ctx, CartsCollection, userID)
	if err != nil {
		if !errors.Is(err, docstore.ErrNotFound) {
			s.log.Warn("cart hydrate failed", zap.String("user_id", userID), zap.Error(err))
		}
		return
	}

	items := decodeItems(docstore.Documents(doc, "items"))
	remoteVersion := int64(docstore.Int(doc, "version"))

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userID != userID {
		return
	}
	s.items = items
	if remoteVersion > s.version {
		s.version = remoteVersion
	}
}

// Add puts one unit of item into the cart. Out-of-stock items are rejected
// without any state change and Add reports false.
func (s *Store) Add(ctx context.Context, item domain.LineItem) bool {
	if !item.Availability.IsInStock() {
		s.log.Debug("rejected out-of-stock item", zap.String("name", item.Name))
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(item.Name); i >= 0 {
		s.items[i].Quantity++
	} else {
		item.Quantity = 1
		s.items = append(s.items, item)
	}
	s.persistLocked()
	return true
}

// UpdateQuantity sets the quantity of the named item. A quantity below 1
// removes the item. It reports whether the item was in the cart.
func (s *Store) UpdateQuantity(ctx context.Context, name string, quantity int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setQuantityLocked(name, quantity)
}

// Increment and Decrement step the named item by one unit.
func (s *Store) Increment(ctx context.Context, name string) bool {
	return s.step(name, 1)
}

func (s *Store) Decrement(ctx context.Context, name string) bool {
	return s.step(name, -1)
}

func (s *Store) step(name string, delta int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := 0
	if i := s.indexOf(name); i >= 0 {
		current = s.items[i].Quantity
	}
	return s.setQuantityLocked(name, current+delta)
}

func (s *Store) setQuantityLocked(name string, quantity int) bool {
	i := s.indexOf(name)
	if i >= 0 {
		if quantity < 1 {
			s.items = append(s.items[:i], s.items[i+1:]...)
		} else {
			s.items[i].Quantity = quantity
		}
	}
	s.persistLocked()
	return i >= 0
}

func (s *Store) Remove(ctx context.Context, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(name)
	if i >= 0 {
		s.items = append(s.items[:i], s.items[i+1:]...)
	}
	s.persistLocked()
	return i >= 0
}

func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = []domain.LineItem{}
	s.persistLocked()
}

// Settle takes paid quantities out of the cart after a confirmed checkout.
// Lines added or topped up since the payment snapshot keep the unpaid
// remainder. It writes once.
func (s *Store) Settle(ctx context.Context, paid []domain.LineItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range paid {
		i := s.indexOf(p.Name)
		if i < 0 {
			continue
		}
		if left := s.items[i].Quantity - p.Quantity; left > 0 {
			s.items[i].Quantity = left
		} else {
			s.items = append(s.items[:i], s.items[i+1:]...)
		}
	}
	s.persistLocked()
}

type orderOptions struct {
	sessionID string
}

type OrderOption func(*orderOptions)

// WithSessionID stores the payment session handle on the order.
func WithSessionID(id string) OrderOption {
	return func(o *orderOptions) { o.sessionID = id }
}

// RecordOrder appends an order document for the current user and waits for
// the write. Without a user it does nothing and returns nil, nil.
func (s *Store) RecordOrder(ctx context.Context, items []domain.LineItem, totalAmount float64, opts ...OrderOption) (*domain.Order, error) {
	var o orderOptions
	for _, opt := range opts {
		opt(&o)
	}

	userID := s.UserID()
	if userID == "" {
		return nil, nil
	}

	order := domain.Order{
		UserID:      userID,
		Items:       domain.CloneItems(items),
		TotalAmount: totalAmount,
		Currency:    s.currency,
		SessionID:   o.sessionID,
		CreatedAt:   s.now().UTC(),
	}
	id, err := s.docs.Add(ctx, OrdersCollection, encodeOrder(order))
	if err != nil {
		return nil, fmt.Errorf("failed to record order: %w", err)
	}
	order.ID = id

	if s.publisher != nil {
		if err := s.publisher.PublishOrderPlaced(ctx, order); err != nil {
			s.log.Warn("order-placed publish failed", zap.String("order_id", id), zap.Error(err))
		}
	}
	return &order, nil
}

func (s *Store) Items() []domain.LineItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.CloneItems(s.items)
}

func (s *Store) Total() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Total(s.items)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Store) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

func (s *Store) Version() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Flush blocks until every write queued before the call has been attempted
// or ctx ends.
func (s *Store) Flush(ctx context.Context) error {
	marker := write{flushed: make(chan struct{})}

	s.mu.Lock()
	if s.closed {
		// Close already drained the queue and later writes are synchronous.
		s.mu.Unlock()
		return nil
	}
	select {
	case s.writes <- marker:
	case <-ctx.Done():
		s.mu.Unlock()
		return ctx.Err()
	}
	s.mu.Unlock()

	select {
	case <-marker.flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the write queue and stops the writer.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.writes)
	s.mu.Unlock()
	<-s.done
}

func (s *Store) indexOf(name string) int {
	for i, it := range s.items {
		if it.Name == name {
			return i
		}
	}
	return -1
}

// persistLocked queues the mirror write for the current state. s.mu must be held.
func (s *Store) persistLocked() {
	s.version++
	if s.userID == "" {
		return
	}
	w := write{
		userID: s.userID,
		doc: docstore.Document{
			"items":     encodeItems(s.items),
			"version":   s.version,
			"updatedAt": s.now().UTC(),
		},
	}
	if s.closed {
		s.apply(w)
		return
	}
	s.writes <- w
}

func (s *Store) writeLoop() {
	defer close(s.done)
	for w := range s.writes {
		if w.flushed != nil {
			close(w.flushed)
			continue
		}
		s.apply(w)
	}
}

func (s *Store) apply(w write) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()
	if err := s.docs.Set(ctx, CartsCollection, w.userID, w.doc, docstore.SetOptions{Merge: true}); err != nil {
		s.log.Warn("cart persist failed", zap.String("user_id", w.userID), zap.Error(err))
	}
}

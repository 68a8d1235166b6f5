// Package session keeps one cart and checkout orchestrator per visitor.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fjod/go_pharmacy/internal/auth"
	"github.com/fjod/go_pharmacy/internal/cart"
	"github.com/fjod/go_pharmacy/internal/checkout"
	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/events"
	"github.com/fjod/go_pharmacy/internal/payment"
)

const (
	DefaultIdleTTL = 30 * time.Minute

	// CleanupInterval is how often idle sessions are swept.
	CleanupInterval = 30 * time.Second
)

var ErrNoSessionKey = errors.New("no identity or guest id")

// OrderEvents receives an event for every order a session records.
type OrderEvents interface {
	Publish(ctx context.Context, ev events.OrderPlaced) error
}

// buyerPublisher attaches the session identity to the orders its cart records.
type buyerPublisher struct {
	next  OrderEvents
	buyer domain.Identity
}

func (p buyerPublisher) PublishOrderPlaced(ctx context.Context, o domain.Order) error {
	return p.next.Publish(ctx, events.NewOrderPlaced(o, p.buyer))
}

// Deps are handed to every session the manager builds.
type Deps struct {
	Docs         docstore.Store
	Gateway      payment.Gateway
	Confirmer    payment.Confirmer
	Events       OrderEvents
	Currency     string
	WriteTimeout time.Duration
	HistoryPath  string
	Log          *zap.Logger
}

// Session is one visitor's cart and checkout. Callers run their work
// through Do so that operations apply in request order. The identity is
// fixed when the session is built.
type Session struct {
	mu       sync.Mutex
	key      string
	identity domain.Identity
	lastSeen time.Time

	Cart     *cart.Store
	Checkout *checkout.Orchestrator
	Inbox    *checkout.Inbox
}

func (s *Session) Key() string { return s.key }

func (s *Session) Identity() domain.Identity { return s.identity }

func (s *Session) Do(fn func(*Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

type Manager struct {
	deps    Deps
	idleTTL time.Duration
	now     func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session

	stopCleanup chan struct{}
	wg          sync.WaitGroup
	closeOnce   sync.Once
}

func NewManager(deps Deps, idleTTL time.Duration) *Manager {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	m := &Manager{
		deps:        deps,
		idleTTL:     idleTTL,
		now:         time.Now,
		sessions:    make(map[string]*Session),
		stopCleanup: make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupLoop()

	return m
}

// Get returns the session for id, or for guestID when id is anonymous,
// creating and hydrating it on first use.
func (m *Manager) Get(ctx context.Context, id domain.Identity, guestID string) (*Session, error) {
	key, err := sessionKey(id, guestID)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if s, ok := m.sessions[key]; ok {
		s.lastSeen = m.now()
		m.mu.Unlock()
		return s, nil
	}
	s := m.build(key, id)
	// Held until hydration ends so that the first Do sees the remote cart.
	s.mu.Lock()
	m.sessions[key] = s
	m.mu.Unlock()

	defer s.mu.Unlock()
	s.Cart.Hydrate(ctx, id.UID)
	m.deps.Log.Debug("session created", zap.String("session", key), zap.Int("items", s.Cart.Len()))
	return s, nil
}

// HandleAuthEvent hydrates a session on sign-in and drops it on sign-out.
func (m *Manager) HandleAuthEvent(ctx context.Context, ev auth.Event) {
	switch ev.Kind {
	case auth.SignedIn:
		if _, err := m.Get(ctx, ev.Identity, ""); err != nil {
			m.deps.Log.Warn("session hydrate on sign-in failed", zap.Error(err))
		}
	case auth.SignedOut:
		m.Drop(userKey(ev.Identity.UID))
	}
}

// Drop removes the session and waits for its pending cart writes.
func (m *Manager) Drop(key string) {
	m.mu.Lock()
	s, ok := m.sessions[key]
	delete(m.sessions, key)
	m.mu.Unlock()

	if ok {
		s.Cart.Close()
		m.deps.Log.Debug("session dropped", zap.String("session", key))
	}
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close stops the sweeper and flushes every session's cart.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.stopCleanup)
		m.wg.Wait()

		m.mu.Lock()
		all := m.sessions
		m.sessions = make(map[string]*Session)
		m.mu.Unlock()

		for _, s := range all {
			s.Cart.Close()
		}
	})
}

func (m *Manager) build(key string, id domain.Identity) *Session {
	log := m.deps.Log.With(zap.String("session", key))
	opts := []cart.Option{cart.WithLogger(log)}
	if m.deps.Events != nil {
		opts = append(opts, cart.WithPublisher(buyerPublisher{next: m.deps.Events, buyer: id}))
	}
	if m.deps.Currency != "" {
		opts = append(opts, cart.WithCurrency(m.deps.Currency))
	}
	if m.deps.WriteTimeout > 0 {
		opts = append(opts, cart.WithWriteTimeout(m.deps.WriteTimeout))
	}
	store := cart.NewStore(m.deps.Docs, opts...)

	inbox := &checkout.Inbox{}
	orchOpts := []checkout.Option{checkout.WithLogger(log)}
	if m.deps.HistoryPath != "" {
		orchOpts = append(orchOpts, checkout.WithHistoryPath(m.deps.HistoryPath))
	}
	return &Session{
		key:      key,
		identity: id,
		lastSeen: m.now(),
		Cart:     store,
		Checkout: checkout.NewOrchestrator(store, m.deps.Gateway, m.deps.Confirmer, inbox, orchOpts...),
		Inbox:    inbox,
	}
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()

	ticker := time.NewTicker(CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.expireIdle()
		case <-m.stopCleanup:
			return
		}
	}
}

// expireIdle drops sessions unused for longer than the idle TTL. A session
// that is busy right now is left for the next sweep.
func (m *Manager) expireIdle() {
	cutoff := m.now().Add(-m.idleTTL)

	m.mu.Lock()
	var expired []*Session
	for key, s := range m.sessions {
		if s.lastSeen.After(cutoff) || !s.mu.TryLock() {
			continue
		}
		delete(m.sessions, key)
		s.mu.Unlock()
		expired = append(expired, s)
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.Cart.Close()
	}
	if len(expired) > 0 {
		m.deps.Log.Info("idle sessions expired", zap.Int("count", len(expired)))
	}
}

func sessionKey(id domain.Identity, guestID string) (string, error) {
	if !id.IsAnonymous() {
		return userKey(id.UID), nil
	}
	if guestID == "" {
		return "", ErrNoSessionKey
	}
	return "guest:" + guestID, nil
}

func userKey(uid string) string {
	return "user:" + uid
}

package auth

import (
	"context"
	"sync"

	"github.com/fjod/go_pharmacy/internal/domain"
)

type EventKind int

const (
	SignedIn EventKind = iota
	SignedOut
)

func (k EventKind) String() string {
	if k == SignedOut {
		return "signed_out"
	}
	return "signed_in"
}

// Event reports that the current identity changed.
type Event struct {
	Kind     EventKind
	Identity domain.Identity
}

type Listener func(ctx context.Context, ev Event)

// Notifier fans identity changes out to listeners in subscription order.
type Notifier struct {
	mu        sync.RWMutex
	nextID    int
	listeners map[int]Listener
	order     []int
}

func NewNotifier() *Notifier {
	return &Notifier{listeners: make(map[int]Listener)}
}

// Subscribe registers l and returns a function that removes it.
func (n *Notifier) Subscribe(l Listener) func() {
	n.mu.Lock()
	defer n.mu.Unlock()

	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	n.order = append(n.order, id)

	return func() {
		n.mu.Lock()
		defer n.mu.Unlock()
		delete(n.listeners, id)
		for i, v := range n.order {
			if v == id {
				n.order = append(n.order[:i], n.order[i+1:]...)
				break
			}
		}
	}
}

func (n *Notifier) Notify(ctx context.Context, ev Event) {
	n.mu.RLock()
	ls := make([]Listener, 0, len(n.order))
	for _, id := range n.order {
		ls = append(ls, n.listeners[id])
	}
	n.mu.RUnlock()

	for _, l := range ls {
		l(ctx, ev)
	}
}

// Notifying wraps p so that successful sign-ins and sign-outs reach n.
func Notifying(p Provider, n *Notifier) Provider {
	return &notifyingProvider{Provider: p, n: n}
}

type notifyingProvider struct {
	Provider
	n *Notifier
}

func (p *notifyingProvider) SignUp(ctx context.Context, email, password, displayName string) (Credentials, error) {
	return p.signedIn(ctx)(p.Provider.SignUp(ctx, email, password, displayName))
}

func (p *notifyingProvider) SignIn(ctx context.Context, email, password string) (Credentials, error) {
	return p.signedIn(ctx)(p.Provider.SignIn(ctx, email, password))
}

func (p *notifyingProvider) SignInWithFederatedProvider(ctx context.Context, providerID, idpToken string) (Credentials, error) {
	return p.signedIn(ctx)(p.Provider.SignInWithFederatedProvider(ctx, providerID, idpToken))
}

func (p *notifyingProvider) SignOut(ctx context.Context, uid string) error {
	if err := p.Provider.SignOut(ctx, uid); err != nil {
		return err
	}
	p.n.Notify(ctx, Event{Kind: SignedOut, Identity: domain.Identity{UID: uid}})
	return nil
}

func (p *notifyingProvider) signedIn(ctx context.Context) func(Credentials, error) (Credentials, error) {
	return func(c Credentials, err error) (Credentials, error) {
		if err == nil {
			p.n.Notify(ctx, Event{Kind: SignedIn, Identity: c.Identity})
		}
		return c, err
	}
}

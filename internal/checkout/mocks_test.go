package checkout

import (
	"context"
	"sync"

	"github.com/fjod/go_pharmacy/internal/domain"
	"github.com/fjod/go_pharmacy/internal/payment"
)

type mockGateway struct {
	mu sync.Mutex

	createErr  error
	confirmErr error

	capturedItems  []domain.LineItem
	createCalls    int
	confirmedIDs   []string
	nextSessionIDs []string

	// when set, CreateSession signals started and waits for release
	started chan struct{}
	release chan struct{}
}

func (m *mockGateway) CreateSession(_ context.Context, items []domain.LineItem) (payment.SessionHandle, error) {
	if m.release != nil {
		m.started <- struct{}{}
		<-m.release
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls++
	m.capturedItems = domain.CloneItems(items)
	if m.createErr != nil {
		return payment.SessionHandle{}, m.createErr
	}
	id := "cs_test"
	if len(m.nextSessionIDs) > 0 {
		id, m.nextSessionIDs = m.nextSessionIDs[0], m.nextSessionIDs[1:]
	}
	return payment.SessionHandle{ID: id, URL: "https://pay.example/" + id}, nil
}

func (m *mockGateway) ConfirmSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.confirmedIDs = append(m.confirmedIDs, sessionID)
	return m.confirmErr
}

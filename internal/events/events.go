// Package events publishes and consumes order-placed messages on Kafka.
package events

import (
	"time"

	"github.com/fjod/go_pharmacy/internal/domain"
)

const (
	OrderPlacedTopic = "order-placed"
	EventOrderPlaced = "OrderPlaced"

	headerEventType = "event_type"
)

// OrderPlaced is the message body. Email and DisplayName are empty for
// identities the provider knows nothing about.
type OrderPlaced struct {
	OrderID     string            `json:"orderId"`
	UserID      string            `json:"userId"`
	Email       string            `json:"email,omitempty"`
	DisplayName string            `json:"displayName,omitempty"`
	Items       []domain.LineItem `json:"items"`
	TotalAmount float64           `json:"totalAmount"`
	Currency    string            `json:"currency,omitempty"`
	SessionID   string            `json:"sessionId,omitempty"`
	CreatedAt   time.Time         `json:"createdAt"`
}

func NewOrderPlaced(o domain.Order, buyer domain.Identity) OrderPlaced {
	return OrderPlaced{
		OrderID:     o.ID,
		UserID:      o.UserID,
		Email:       buyer.Email,
		DisplayName: buyer.DisplayName,
		Items:       domain.CloneItems(o.Items),
		TotalAmount: o.TotalAmount,
		Currency:    o.Currency,
		SessionID:   o.SessionID,
		CreatedAt:   o.CreatedAt,
	}
}

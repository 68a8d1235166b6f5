package domain

import "time"

// Order is written once per confirmed checkout and never updated.
type Order struct {
	ID          string     `json:"id"`
	UserID      string     `json:"userId"`
	Items       []LineItem `json:"items"`
	TotalAmount float64    `json:"totalAmount"`
	Currency    string     `json:"currency,omitempty"`
	SessionID   string     `json:"sessionId,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
}

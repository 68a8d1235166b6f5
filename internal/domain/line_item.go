package domain

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

type Availability string

const (
	InStock    Availability = "InStock"
	OutOfStock Availability = "OutOfStock"
)

func (a Availability) IsInStock() bool {
	return a == InStock
}

// ParseAvailability normalizes the shapes found in catalog and cart data:
// booleans, "In Stock"/"InStock" style strings, and the enum itself.
// Anything unrecognized counts as out of stock.
func ParseAvailability(v any) Availability {
	switch t := v.(type) {
	case bool:
		if t {
			return InStock
		}
		return OutOfStock
	case Availability:
		return ParseAvailability(string(t))
	case string:
		s := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(t), " ", ""))
		switch s {
		case "instock", "available", "true", "yes":
			return InStock
		}
	}
	return OutOfStock
}

func (a *Availability) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*a = ParseAvailability(raw)
	return nil
}

// LineItem is one product entry in a cart. Name is the identity key.
type LineItem struct {
	Name         string       `json:"name"`
	Price        float64      `json:"price"`
	Image        string       `json:"image"`
	Quantity     int          `json:"quantity"`
	Availability Availability `json:"availability"`
}

func (i LineItem) Subtotal() decimal.Decimal {
	return decimal.NewFromFloat(i.Price).Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Total is the sum of price*quantity over items, in major currency units.
func Total(items []LineItem) float64 {
	sum := decimal.Zero
	for _, it := range items {
		sum = sum.Add(it.Subtotal())
	}
	return sum.InexactFloat64()
}

// CloneItems returns a copy that shares nothing with items.
func CloneItems(items []LineItem) []LineItem {
	if items == nil {
		return []LineItem{}
	}
	out := make([]LineItem, len(items))
	copy(out, items)
	return out
}

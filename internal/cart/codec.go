package cart

import (
	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/domain"
)

func encodeItems(items []domain.LineItem) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		out = append(out, map[string]any{
			"name":         it.Name,
			"price":        it.Price,
			"image":        it.Image,
			"quantity":     it.Quantity,
			"availability": it.Availability.IsInStock(),
		})
	}
	return out
}

// decodeItems restores the one-entry-per-name and quantity >= 1 rules on
// whatever the remote document holds.
func decodeItems(docs []docstore.Document) []domain.LineItem {
	items := make([]domain.LineItem, 0, len(docs))
	index := make(map[string]int, len(docs))
	for _, d := range docs {
		name := docstore.String(d, "name")
		qty := docstore.Int(d, "quantity")
		if name == "" || qty < 1 {
			continue
		}
		if i, ok := index[name]; ok {
			items[i].Quantity += qty
			continue
		}
		index[name] = len(items)
		items = append(items, domain.LineItem{
			Name:         name,
			Price:        docstore.Float(d, "price"),
			Image:        docstore.String(d, "image"),
			Quantity:     qty,
			Availability: domain.ParseAvailability(d["availability"]),
		})
	}
	return items
}

func encodeOrder(o domain.Order) docstore.Document {
	doc := docstore.Document{
		"userId":      o.UserID,
		"items":       encodeItems(o.Items),
		"totalAmount": o.TotalAmount,
		"createdAt":   o.CreatedAt,
	}
	if o.Currency != "" {
		doc["currency"] = o.Currency
	}
	if o.SessionID != "" {
		doc["sessionId"] = o.SessionID
	}
	return doc
}

func decodeOrder(id string, d docstore.Document) domain.Order {
	return domain.Order{
		ID:          id,
		UserID:      docstore.String(d, "userId"),
		Items:       decodeItems(docstore.Documents(d, "items")),
		TotalAmount: docstore.Float(d, "totalAmount"),
		Currency:    docstore.String(d, "currency"),
		SessionID:   docstore.String(d, "sessionId"),
		CreatedAt:   docstore.Time(d, "createdAt"),
	}
}

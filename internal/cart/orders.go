package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/fjod/go_pharmacy/internal/docstore"
	"github.com/fjod/go_pharmacy/internal/domain"
)

// ListOrders returns the user's orders, newest first. Anonymous users and
// users without orders get an empty list.
func ListOrders(ctx context.Context, docs docstore.Store, userID string) ([]domain.Order, error) {
	if userID == "" {
		return []domain.Order{}, nil
	}

	snaps, err := docs.Query(ctx, OrdersCollection, docstore.Eq("userId", userID))
	if err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return []domain.Order{}, nil
		}
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := make([]domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		orders = append(orders, decodeOrder(snap.ID, snap.Data))
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// Package reconcile derives the post-sale stock snapshot.
package reconcile

import "pos-service/internal/models"

// Reconcile returns a copy of snapshot where every product sold in lines has
// its current and ending stock decreased by the sold quantity. Lines for
// products missing from the snapshot are ignored. Stock never drops below zero.
func Reconcile(snapshot []models.Product, lines []models.CartLine) []models.Product {
	out := make([]models.Product, len(snapshot))
	copy(out, snapshot)

	index := make(map[string]int, len(out))
	for i := range out {
		if _, seen := index[out[i].ID]; !seen {
			index[out[i].ID] = i
		}
	}

	for _, line := range lines {
		i, ok := index[line.ProductID]
		if !ok {
			continue
		}
		p := &out[i]
		p.CurrentStock -= line.Quantity
		if p.CurrentStock < 0 {
			p.CurrentStock = 0
		}
		p.EndingStock = p.CurrentStock
	}

	return out
}

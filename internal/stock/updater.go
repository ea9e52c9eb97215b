package stock

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopledger/shopledger/internal/shared"
)

// Adjust applies one signed stock change inside an open transaction and
// appends the movement card. Stock never goes below zero.
func Adjust(ctx context.Context, tx TxRepository, c Change) (Product, error) {
	if c.Delta == 0 {
		return Product{}, shared.Invalid("stock", "quantity must be non zero")
	}
	p, err := tx.GetProductForUpdate(ctx, c.ProductID)
	if err != nil {
		return Product{}, err
	}
	if c.Delta < 0 && p.Status != shared.StatusActive {
		return Product{}, shared.E(shared.KindInvalidState, "stock", "product %d is archived", p.ID)
	}
	newQty := p.StockQty + c.Delta
	if newQty < 0 {
		return Product{}, &ShortageError{ProductID: p.ID, Name: p.Name, Available: p.StockQty, Requested: -c.Delta}
	}
	if err := tx.SetStock(ctx, p.ID, newQty); err != nil {
		return Product{}, fmt.Errorf("stock: set product %d: %w", p.ID, err)
	}
	if _, err := tx.InsertMovement(ctx, Movement{
		ProductID:    p.ID,
		Delta:        c.Delta,
		BalanceAfter: newQty,
		Reason:       c.Reason,
		Ref:          c.Ref,
	}); err != nil {
		return Product{}, fmt.Errorf("stock: movement product %d: %w", p.ID, err)
	}
	p.StockQty = newQty
	return p, nil
}

// AdjustMany applies changes in ascending product id order so concurrent
// multi-item operations always take row locks in the same sequence.
func AdjustMany(ctx context.Context, tx TxRepository, changes []Change) (map[int64]Product, error) {
	ordered := append([]Change(nil), changes...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ProductID < ordered[j].ProductID })
	result := make(map[int64]Product, len(ordered))
	for _, c := range ordered {
		p, err := Adjust(ctx, tx, c)
		if err != nil {
			return nil, err
		}
		result[p.ID] = p
	}
	return result, nil
}

// LockProducts takes FOR UPDATE locks on ids in ascending order and returns
// the locked rows keyed by id. Duplicate ids are locked once.
func LockProducts(ctx context.Context, tx TxRepository, ids []int64) (map[int64]Product, error) {
	unique := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Slice(unique, func(i, j int) bool { return unique[i] < unique[j] })
	locked := make(map[int64]Product, len(unique))
	for _, id := range unique {
		p, err := tx.GetProductForUpdate(ctx, id)
		if err != nil {
			return nil, err
		}
		locked[id] = p
	}
	return locked, nil
}

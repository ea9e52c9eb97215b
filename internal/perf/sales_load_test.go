package perf

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/sales"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
	"github.com/shopledger/shopledger/internal/testing/memstore"
)

var cashier = shared.Actor{Name: "till-1", Role: "cashier"}

func cashSale(productID int64, qty int, price decimal.Decimal) sales.SaleInput {
	return sales.SaleInput{
		Department: "canteen",
		Items:      []sales.ItemInput{{ProductID: productID, Qty: qty}},
		AmountPaid: price.Mul(decimal.NewFromInt(int64(qty))),
		Actor:      cashier,
	}
}

// Concurrent tills draining one product must never oversell, and the
// in-memory path should stay well inside the checkout latency budget.
func TestConcurrentCheckoutNeverOversells(t *testing.T) {
	store := memstore.New()
	price := decimal.NewFromInt(50)
	p := store.AddProduct(stock.Product{Name: "Chapati", Department: "canteen", StockQty: 40, SellPrice: price})
	proc := sales.NewProcessor(store.Sales(), &memstore.Audit{}, memstore.NewIdempotency(), nil)

	const tills = 60
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		latencies []time.Duration
		sold      int
		rejected  int
	)
	for i := 0; i < tills; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			_, err := proc.ProcessSale(context.Background(), cashSale(p.ID, 1, price))
			elapsed := time.Since(start)
			mu.Lock()
			defer mu.Unlock()
			latencies = append(latencies, elapsed)
			switch {
			case err == nil:
				sold++
			case errors.Is(err, shared.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected checkout error: %v", err)
			}
		}()
	}
	wg.Wait()

	if sold != 40 || rejected != tills-40 {
		t.Fatalf("expected 40 sold and %d rejected, got %d sold %d rejected", tills-40, sold, rejected)
	}
	if qty := store.Product(p.ID).StockQty; qty != 0 {
		t.Fatalf("expected empty shelf, got %d", qty)
	}
	if p95 := percentile95(latencies); p95 > 250*time.Millisecond {
		t.Fatalf("checkout latency regression: p95=%s", p95)
	}
}

func BenchmarkProcessSale(b *testing.B) {
	store := memstore.New()
	price := decimal.NewFromInt(20)
	p := store.AddProduct(stock.Product{Name: "Pencil", Department: "canteen", StockQty: b.N + 1, SellPrice: price})
	proc := sales.NewProcessor(store.Sales(), &memstore.Audit{}, memstore.NewIdempotency(), nil)
	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := proc.ProcessSale(ctx, cashSale(p.ID, 1, price)); err != nil {
			b.Fatalf("sale %d: %v", i, err)
		}
	}
}

func percentile95(samples []time.Duration) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	index := int(float64(len(sorted)-1) * 0.95)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}
	return sorted[index]
}

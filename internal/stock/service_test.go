package stock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
	"github.com/shopledger/shopledger/internal/testing/memstore"
)

var storekeeper = shared.Actor{Name: "otieno", Role: "storekeeper"}

func newService(t *testing.T) (*stock.Service, *memstore.Store, *memstore.Audit) {
	t.Helper()
	store := memstore.New()
	audit := &memstore.Audit{}
	return stock.NewService(store.Stock(), audit, nil), store, audit
}

func TestCreateProductBooksOpeningStock(t *testing.T) {
	svc, store, audit := newService(t)

	p, err := svc.CreateProduct(context.Background(), stock.CreateProductInput{
		Name:         "Exercise Book",
		Department:   " Stationery ",
		OpeningStock: 40,
		ReorderLevel: 5,
		BuyPrice:     decimal.NewFromInt(30),
		SellPrice:    decimal.NewFromInt(45),
		Actor:        storekeeper,
	})
	require.NoError(t, err)
	require.Equal(t, "stationery", p.Department)
	require.Equal(t, 40, p.StockQty)

	moves := store.Movements(p.ID)
	require.Len(t, moves, 1)
	require.Equal(t, stock.ReasonAdjustment, moves[0].Reason)
	require.Equal(t, 40, moves[0].BalanceAfter)
	require.Equal(t, []string{"stock:product_created"}, audit.Actions())
}

func TestCreateProductRejectsNegativePrice(t *testing.T) {
	svc, _, _ := newService(t)
	_, err := svc.CreateProduct(context.Background(), stock.CreateProductInput{
		Name: "Pen", Department: "stationery", SellPrice: decimal.NewFromInt(-1), Actor: storekeeper,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAdjustStockNeverGoesNegative(t *testing.T) {
	svc, store, _ := newService(t)
	p := store.AddProduct(stock.Product{Name: "Soap", Department: "tuckshop", StockQty: 3})
	ctx := context.Background()

	_, err := svc.AdjustStock(ctx, stock.AdjustmentInput{ProductID: p.ID, Delta: -4, Reason: "count", Actor: storekeeper})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	var shortage *stock.ShortageError
	require.True(t, errors.As(err, &shortage))
	require.Equal(t, 3, shortage.Available)
	require.Equal(t, 4, shortage.Requested)
	require.Equal(t, 3, store.Product(p.ID).StockQty)
	require.Empty(t, store.Movements(p.ID))

	got, err := svc.AdjustStock(ctx, stock.AdjustmentInput{ProductID: p.ID, Delta: -3, Reason: "damaged", Actor: storekeeper})
	require.NoError(t, err)
	require.Zero(t, got.StockQty)
}

func TestAdjustStockRequiresReason(t *testing.T) {
	svc, store, _ := newService(t)
	p := store.AddProduct(stock.Product{Name: "Soap", Department: "tuckshop", StockQty: 3})
	_, err := svc.AdjustStock(context.Background(), stock.AdjustmentInput{ProductID: p.ID, Delta: 2, Actor: storekeeper})
	require.ErrorIs(t, err, shared.ErrValidation)
}

func TestAdjustManyIsAllOrNothing(t *testing.T) {
	store := memstore.New()
	a := store.AddProduct(stock.Product{Name: "Bread", Department: "canteen", StockQty: 10})
	b := store.AddProduct(stock.Product{Name: "Milk", Department: "canteen", StockQty: 1})

	err := store.Stock().WithTx(context.Background(), func(ctx context.Context, tx stock.TxRepository) error {
		_, err := stock.AdjustMany(ctx, tx, []stock.Change{
			{ProductID: b.ID, Delta: -2, Reason: stock.ReasonSale},
			{ProductID: a.ID, Delta: -5, Reason: stock.ReasonSale},
		})
		return err
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, 10, store.Product(a.ID).StockQty)
	require.Equal(t, 1, store.Product(b.ID).StockQty)
}

func TestArchivedProductCannotLoseStock(t *testing.T) {
	svc, store, _ := newService(t)
	p := store.AddProduct(stock.Product{Name: "Ruler", Department: "stationery", StockQty: 5})
	ctx := context.Background()

	require.NoError(t, svc.ArchiveProduct(ctx, p.ID, storekeeper))
	require.ErrorIs(t, svc.ArchiveProduct(ctx, p.ID, storekeeper), shared.ErrNotFound)

	_, err := svc.AdjustStock(ctx, stock.AdjustmentInput{ProductID: p.ID, Delta: -1, Reason: "lost", Actor: storekeeper})
	require.ErrorIs(t, err, shared.ErrInvalidState)

	// Returns onto an archived product are still booked.
	got, err := svc.AdjustStock(ctx, stock.AdjustmentInput{ProductID: p.ID, Delta: 1, Reason: "found", Actor: storekeeper})
	require.NoError(t, err)
	require.Equal(t, 6, got.StockQty)
}

func TestListLowStockFiltersDepartment(t *testing.T) {
	svc, store, _ := newService(t)
	store.AddProduct(stock.Product{Name: "Bread", Department: "canteen", StockQty: 2, ReorderLevel: 5})
	store.AddProduct(stock.Product{Name: "Juice", Department: "canteen", StockQty: 20, ReorderLevel: 5})
	store.AddProduct(stock.Product{Name: "Pencil", Department: "stationery", StockQty: 0, ReorderLevel: 10})

	low, err := svc.ListLowStock(context.Background(), "Canteen")
	require.NoError(t, err)
	require.Len(t, low, 1)
	require.Equal(t, "Bread", low[0].Name)

	all, err := svc.ListLowStock(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSameDepartmentFoldsCase(t *testing.T) {
	require.True(t, stock.SameDepartment("Canteen ", "canteen"))
	require.False(t, stock.SameDepartment("canteen", "tuckshop"))
}

func TestCreateProductRejectsSubCentPrice(t *testing.T) {
	svc, store, _ := newService(t)
	_, err := svc.CreateProduct(context.Background(), stock.CreateProductInput{
		Name: "Pen", Department: "stationery", SellPrice: decimal.RequireFromString("12.505"), Actor: storekeeper,
	})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Zero(t, store.Transactions())
}

func TestStockMutationsRequireActor(t *testing.T) {
	svc, store, audit := newService(t)
	p := store.AddProduct(stock.Product{Name: "Soap", Department: "tuckshop", StockQty: 3})
	ctx := context.Background()

	_, err := svc.CreateProduct(ctx, stock.CreateProductInput{Name: "Pen", Department: "stationery"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.AdjustStock(ctx, stock.AdjustmentInput{ProductID: p.ID, Delta: -1, Reason: "count"})
	require.ErrorIs(t, err, shared.ErrValidation)

	require.ErrorIs(t, svc.ArchiveProduct(ctx, p.ID, shared.Actor{Name: "otieno"}), shared.ErrValidation)

	require.Equal(t, 3, store.Product(p.ID).StockQty)
	require.Equal(t, shared.StatusActive, store.Product(p.ID).Status)
	require.Empty(t, audit.Actions())
}

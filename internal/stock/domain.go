package stock

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"

	"github.com/shopledger/shopledger/internal/shared"
)

// Product is a stocked item sold by one department.
type Product struct {
	ID           int64               `json:"id"`
	Name         string              `json:"name"`
	Department   string              `json:"department"`
	StockQty     int                 `json:"stock_qty"`
	ReorderLevel int                 `json:"reorder_level"`
	BuyPrice     decimal.Decimal     `json:"buy_price"`
	SellPrice    decimal.Decimal     `json:"sell_price"`
	Status       shared.RecordStatus `json:"status"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// BelowReorder reports whether stock has reached the reorder level.
func (p Product) BelowReorder() bool {
	return p.StockQty <= p.ReorderLevel
}

// Reason labels a stock movement.
type Reason string

const (
	ReasonSale        Reason = "sale"
	ReasonRefund      Reason = "refund"
	ReasonExchange    Reason = "exchange"
	ReasonAllocation  Reason = "allocation"
	ReasonRestock     Reason = "restock"
	ReasonPocketMoney Reason = "pocket_money"
	ReasonAdjustment  Reason = "adjustment"
)

// Change asks for a signed stock delta on one product.
type Change struct {
	ProductID int64
	Delta     int
	Reason    Reason
	Ref       string
}

// Movement is one row of a product's stock card.
type Movement struct {
	ID           int64     `json:"id"`
	ProductID    int64     `json:"product_id"`
	Delta        int       `json:"delta"`
	BalanceAfter int       `json:"balance_after"`
	Reason       Reason    `json:"reason"`
	Ref          string    `json:"ref"`
	CreatedAt    time.Time `json:"created_at"`
}

// CreateProductInput registers a product, optionally with opening stock.
type CreateProductInput struct {
	Name         string          `json:"name" validate:"required,max=200"`
	Department   string          `json:"department" validate:"required,max=80"`
	OpeningStock int             `json:"opening_stock" validate:"gte=0"`
	ReorderLevel int             `json:"reorder_level" validate:"gte=0"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	SellPrice    decimal.Decimal `json:"sell_price"`
	Actor        shared.Actor    `json:"-"`
}

// AdjustmentInput corrects stock after a count.
type AdjustmentInput struct {
	ProductID int64        `json:"-" validate:"required,gt=0"`
	Delta     int          `json:"delta" validate:"required"`
	Reason    string       `json:"reason" validate:"required,max=200"`
	Actor     shared.Actor `json:"-"`
}

// ShortageError details an insufficient stock failure.
type ShortageError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("insufficient stock for %s (product %d): available %d, requested %d",
		e.Name, e.ProductID, e.Available, e.Requested)
}

func (e *ShortageError) Unwrap() error {
	return shared.ErrInsufficientStock
}

// NormalizeDepartment folds case and surrounding space so "Canteen " and
// "canteen" name the same department.
func NormalizeDepartment(name string) string {
	// A Caser holds state and cannot be shared between goroutines.
	return cases.Fold().String(strings.TrimSpace(name))
}

// SameDepartment compares department names after normalisation.
func SameDepartment(a, b string) bool {
	return NormalizeDepartment(a) == NormalizeDepartment(b)
}

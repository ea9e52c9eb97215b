package pocketmoney

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/sales"
	"github.com/shopledger/shopledger/internal/shared"
)

// Kind labels a pocket-money movement.
type Kind string

const (
	KindTopUp    Kind = "top_up"
	KindDeduct   Kind = "deduct"
	KindPurchase Kind = "purchase"
)

// Transaction is one append-only pocket-money movement. Amount is signed.
type Transaction struct {
	ID           int64           `json:"id"`
	CustomerID   int64           `json:"customer_id"`
	Kind         Kind            `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	Reason       string          `json:"reason"`
	SaleID       string          `json:"sale_id,omitempty"`
	Actor        shared.Actor    `json:"actor"`
	CreatedAt    time.Time       `json:"created_at"`
}

// PurchaseInput buys goods from an allowed department.
type PurchaseInput struct {
	CustomerID int64             `json:"-" validate:"required,gt=0"`
	Department string            `json:"department" validate:"required,max=80"`
	Items      []sales.ItemInput `json:"items" validate:"required,min=1,dive"`
	Actor      shared.Actor      `json:"-"`
}

// PurchaseResult is returned by Purchase.
type PurchaseResult struct {
	SaleID       string          `json:"sale_id"`
	Total        decimal.Decimal `json:"total"`
	ItemsCount   int             `json:"items_count"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
}

// AdjustInput tops up or deducts pocket money.
type AdjustInput struct {
	CustomerID int64           `json:"-" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason" validate:"max=500"`
	Actor      shared.Actor    `json:"-"`
}

// Status is a read-only eligibility snapshot.
type Status struct {
	CustomerID     int64           `json:"customer_id"`
	IsBoarder      bool            `json:"is_boarder"`
	HasPocketMoney bool            `json:"has_pocket_money"`
	Balance        decimal.Decimal `json:"balance"`
}

// HasSufficientBalance reports whether the customer can spend amount.
func (s Status) HasSufficientBalance(amount decimal.Decimal) bool {
	return s.IsBoarder && s.HasPocketMoney && s.Balance.GreaterThanOrEqual(amount)
}

// StatusView is Status evaluated against a requested amount.
type StatusView struct {
	Status
	Amount               decimal.Decimal `json:"amount"`
	HasSufficientBalance bool            `json:"has_sufficient_balance"`
}

package sales

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/shared"
)

// TransactionType selects how a sale hits the customer ledger.
type TransactionType string

const (
	// TransactionNormal records payment at the till; any shortfall stays owed.
	TransactionNormal TransactionType = "normal"
	// TransactionAddToBalance books the whole sale as debt.
	TransactionAddToBalance TransactionType = "add_to_balance"
)

// PaymentMode records how money changed hands.
type PaymentMode string

const (
	PaymentCash        PaymentMode = "cash"
	PaymentMobileMoney PaymentMode = "mobile_money"
	PaymentBank        PaymentMode = "bank"
	PaymentPocketMoney PaymentMode = "pocket_money"
	PaymentNone        PaymentMode = "none"
)

// RefundType distinguishes money-back refunds from exchanges.
type RefundType string

const (
	RefundMoney    RefundType = "refund"
	RefundExchange RefundType = "exchange"
)

// Sale is immutable once written.
type Sale struct {
	ID              string          `json:"id"`
	CustomerID      int64           `json:"customer_id"`
	Department      string          `json:"department"`
	PaymentMode     PaymentMode     `json:"payment_mode"`
	TransactionType TransactionType `json:"transaction_type"`
	Total           decimal.Decimal `json:"total"`
	Paid            decimal.Decimal `json:"paid"`
	Balance         decimal.Decimal `json:"balance"`
	Change          decimal.Decimal `json:"change"`
	ExchangeOf      string          `json:"exchange_of"`
	Actor           shared.Actor    `json:"actor"`
	CreatedAt       time.Time       `json:"created_at"`
	Items           []SaleItem      `json:"items"`
}

// WalkIn reports whether the sale has no customer ledger behind it.
func (s Sale) WalkIn() bool {
	return s.CustomerID == 0
}

// SaleItem is one priced line of a sale.
type SaleItem struct {
	ID          int64           `json:"id"`
	SaleID      string          `json:"sale_id"`
	LineNo      int             `json:"line_no"`
	ProductID   int64           `json:"product_id"`
	Qty         int             `json:"qty"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	CostPrice   decimal.Decimal `json:"cost_price"`
	RefundedQty int             `json:"refunded_qty"`
}

// Refundable is the quantity still eligible for refund.
func (i SaleItem) Refundable() int {
	return i.Qty - i.RefundedQty
}

// Refund is one refunded line.
type Refund struct {
	ID         int64           `json:"id"`
	SaleID     string          `json:"sale_id"`
	SaleItemID int64           `json:"sale_item_id"`
	ProductID  int64           `json:"product_id"`
	Qty        int             `json:"qty"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Amount     decimal.Decimal `json:"amount"`
	CashAmount decimal.Decimal `json:"cash_amount"`
	Type       RefundType      `json:"type"`
	Reason     string          `json:"reason"`
	Actor      shared.Actor    `json:"actor"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RefundTotals sums what earlier refunds of a sale already gave back.
type RefundTotals struct {
	Amount decimal.Decimal `json:"amount"`
	Cash   decimal.Decimal `json:"cash"`
}

// ItemInput requests qty of a product. UnitPrice defaults to the
// product's sell price.
type ItemInput struct {
	ProductID int64            `json:"product_id" validate:"required,gt=0"`
	Qty       int              `json:"qty" validate:"required,gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

// SaleInput describes a checkout.
type SaleInput struct {
	Department      string          `json:"department" validate:"required,max=80"`
	CustomerID      int64           `json:"customer_id" validate:"gte=0"`
	Items           []ItemInput     `json:"items" validate:"required,min=1,dive"`
	PaymentMode     PaymentMode     `json:"payment_mode" validate:"omitempty,oneof=cash mobile_money bank none"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	TransactionType TransactionType `json:"transaction_type" validate:"omitempty,oneof=normal add_to_balance"`
	IdempotencyKey  string          `json:"-"`
	Actor           shared.Actor    `json:"-"`
}

// Totals summarises a sale's money.
type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Paid     decimal.Decimal `json:"paid"`
	Balance  decimal.Decimal `json:"balance"`
	Change   decimal.Decimal `json:"change"`
}

// SaleResult is returned by ProcessSale.
type SaleResult struct {
	SaleID          string           `json:"sale_id"`
	Totals          Totals           `json:"totals"`
	ItemsCount      int              `json:"items_count"`
	CustomerBalance *decimal.Decimal `json:"customer_balance,omitempty"`
}

// RefundItemInput returns qty units of one sale line.
type RefundItemInput struct {
	SaleItemID int64 `json:"sale_item_id" validate:"required,gt=0"`
	Qty        int   `json:"qty" validate:"required,gt=0"`
}

// RefundInput describes a refund or exchange against an earlier sale.
type RefundInput struct {
	SaleID       string            `json:"-" validate:"required"`
	Items        []RefundItemInput `json:"items" validate:"required,min=1,dive"`
	RefundType   RefundType        `json:"refund_type" validate:"omitempty,oneof=refund exchange"`
	Reason       string            `json:"reason" validate:"max=500"`
	Replacements []ItemInput       `json:"replacements" validate:"dive"`
	Actor        shared.Actor      `json:"-"`
}

// RefundResult is returned by ProcessRefund.
type RefundResult struct {
	RefundTotal     decimal.Decimal  `json:"refund_total"`
	CashReturned    decimal.Decimal  `json:"cash_returned"`
	ProcessedItems  []Refund         `json:"processed_items"`
	ExchangeSaleID  string           `json:"exchange_sale_id"`
	ExchangeTotal   decimal.Decimal  `json:"exchange_total"`
	CustomerBalance *decimal.Decimal `json:"customer_balance,omitempty"`
}

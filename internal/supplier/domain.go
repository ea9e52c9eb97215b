package supplier

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/shared"
)

// RestockStatus tracks settlement of a delivery.
type RestockStatus string

const (
	RestockPendingPayment RestockStatus = "pending_payment"
	RestockPaid           RestockStatus = "paid"
)

// CreditStatus tracks settlement of a credit obligation.
type CreditStatus string

const (
	CreditUnpaid CreditStatus = "unpaid"
	CreditPaid   CreditStatus = "paid"
)

// Supplier is a vendor; Balance is what the shop owes it.
type Supplier struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Contact   string          `json:"contact"`
	Balance   decimal.Decimal `json:"balance"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Restock is one delivery from a supplier.
type Restock struct {
	ID           int64           `json:"id"`
	SupplierID   int64           `json:"supplier_id"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	MiscExpenses decimal.Decimal `json:"misc_expenses"`
	Status       RestockStatus   `json:"status"`
	Actor        shared.Actor    `json:"actor"`
	CreatedAt    time.Time       `json:"created_at"`
	Items        []RestockItem   `json:"items"`
}

// RestockItem is one delivered product line.
type RestockItem struct {
	ID        int64           `json:"id"`
	RestockID int64           `json:"restock_id"`
	ProductID int64           `json:"product_id"`
	Qty       int             `json:"qty"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
}

// Credit is an amount owed for a restock; Amount is what remains unpaid.
type Credit struct {
	ID             int64           `json:"id"`
	SupplierID     int64           `json:"supplier_id"`
	RestockID      int64           `json:"restock_id"`
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	DueDate        time.Time       `json:"due_date"`
	Status         CreditStatus    `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Payment is money paid to a supplier.
type Payment struct {
	ID         int64           `json:"id"`
	SupplierID int64           `json:"supplier_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Note       string          `json:"note"`
	Actor      shared.Actor    `json:"actor"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PaymentAllocation records how much of a payment settled one credit.
type PaymentAllocation struct {
	ID        int64           `json:"id"`
	PaymentID int64           `json:"payment_id"`
	CreditID  int64           `json:"credit_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// CreateSupplierInput registers a supplier.
type CreateSupplierInput struct {
	Name    string       `json:"name" validate:"required,max=200"`
	Contact string       `json:"contact" validate:"max=200"`
	Actor   shared.Actor `json:"-"`
}

// RestockItemInput restocks an existing product (ProductID set) or
// creates one (Name and Department set).
type RestockItemInput struct {
	ProductID    int64           `json:"product_id" validate:"gte=0"`
	Name         string          `json:"name" validate:"required_without=ProductID,max=200"`
	Department   string          `json:"department" validate:"required_without=ProductID,max=80"`
	ReorderLevel int             `json:"reorder_level" validate:"gte=0"`
	Qty          int             `json:"qty" validate:"required,gt=0"`
	BuyPrice     decimal.Decimal `json:"buy_price"`
	SellPrice    decimal.Decimal `json:"sell_price"`
}

// RestockInput describes a delivery.
type RestockInput struct {
	SupplierID   int64              `json:"-" validate:"required,gt=0"`
	Items        []RestockItemInput `json:"items" validate:"required,min=1,dive"`
	MiscExpenses decimal.Decimal    `json:"misc_expenses"`
	Actor        shared.Actor       `json:"-"`
}

// RestockResult is returned by ProcessRestock.
type RestockResult struct {
	Restock  Restock  `json:"restock"`
	Credit   *Credit  `json:"credit,omitempty"`
	Supplier Supplier `json:"supplier"`
}

// PaymentInput pays down a supplier balance.
type PaymentInput struct {
	SupplierID int64           `json:"-" validate:"required,gt=0"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method" validate:"omitempty,oneof=cash mobile_money bank cheque"`
	Note       string          `json:"note" validate:"max=500"`
	Actor      shared.Actor    `json:"-"`
}

// PaymentResult is returned by RecordSupplierPayment.
type PaymentResult struct {
	Payment         Payment             `json:"payment"`
	PreviousBalance decimal.Decimal     `json:"previous_balance"`
	NewBalance      decimal.Decimal     `json:"new_balance"`
	Allocations     []PaymentAllocation `json:"allocations"`
}

package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/shared"
)

// Program enumerates recurring allocation programs a customer can belong to.
type Program string

const (
	ProgramNone Program = "none"
	ProgramA    Program = "A"
	ProgramB    Program = "B"
)

// Valid reports whether p is a known membership value.
func (p Program) Valid() bool {
	return p == ProgramNone || p == ProgramA || p == ProgramB
}

// BoardingStatus distinguishes day scholars from boarders.
type BoardingStatus string

const (
	BoardingDay      BoardingStatus = "day"
	BoardingBoarding BoardingStatus = "boarding"
)

// Customer holds the owed-money ledger for one student.
type Customer struct {
	ID                 int64               `json:"id"`
	Name               string              `json:"name"`
	GuardianName       string              `json:"guardian_name"`
	GuardianPhone      string              `json:"guardian_phone"`
	Balance            decimal.Decimal     `json:"balance"`
	TotalItemsCost     decimal.Decimal     `json:"total_items_cost"`
	AmountPaid         decimal.Decimal     `json:"amount_paid"`
	PocketMoneyBalance decimal.Decimal     `json:"pocket_money_balance"`
	PocketMoneyEnabled bool                `json:"pocket_money_enabled"`
	Program            Program             `json:"program_membership"`
	Boarding           BoardingStatus      `json:"boarding_status"`
	Status             shared.RecordStatus `json:"status"`
	CreatedAt          time.Time           `json:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at"`
}

// IsBoarder reports whether the customer boards.
func (c Customer) IsBoarder() bool {
	return c.Boarding == BoardingBoarding
}

// Payment is an append-only ledger entry. Negative amounts reverse money
// previously received.
type Payment struct {
	ID         int64           `json:"id"`
	CustomerID int64           `json:"customer_id"`
	SaleID     string          `json:"sale_id"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method"`
	Reference  string          `json:"reference"`
	Actor      shared.Actor    `json:"actor"`
	CreatedAt  time.Time       `json:"created_at"`
}

// PaymentMeta asks Apply to record a Payment row for the paid delta.
type PaymentMeta struct {
	Method    string `json:"method" validate:"omitempty,oneof=cash mobile_money bank cheque refund"`
	Reference string `json:"reference" validate:"max=120"`
	SaleID    string `json:"sale_id,omitempty"`
}

// Delta is one atomic change to a customer's ledger. CostDelta moves
// total_items_cost, PaidDelta moves amount_paid; both floor at zero.
type Delta struct {
	CustomerID int64
	CostDelta  decimal.Decimal
	PaidDelta  decimal.Decimal
	Payment    *PaymentMeta
	Actor      shared.Actor
}

// DeltaResult reports the balance movement of one Delta.
type DeltaResult struct {
	Customer        Customer        `json:"customer"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	Payment         *Payment        `json:"payment,omitempty"`
}

// DeltaInput is the collaborator-facing balance adjustment: a signed
// amount applied to amount_paid.
type DeltaInput struct {
	CustomerID int64           `validate:"required,gt=0"`
	Amount     decimal.Decimal `validate:"-"`
	Meta       *PaymentMeta
	Actor      shared.Actor
}

// CreateCustomerInput enrols a customer.
type CreateCustomerInput struct {
	Name          string         `json:"name" validate:"required,max=200"`
	GuardianName  string         `json:"guardian_name" validate:"max=200"`
	GuardianPhone string         `json:"guardian_phone" validate:"max=50"`
	Program       Program        `json:"program_membership" validate:"omitempty,oneof=none A B"`
	Boarding      BoardingStatus `json:"boarding_status" validate:"omitempty,oneof=day boarding"`
	PocketMoney   bool           `json:"pocket_money_enabled"`
	Actor         shared.Actor   `json:"-"`
}

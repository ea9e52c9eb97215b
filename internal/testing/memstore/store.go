// Package memstore is an in-memory stand-in for the PostgreSQL
// repositories. Transactions are serialised behind one mutex and roll
// back by restoring a snapshot, so tests observe the same all-or-nothing
// behaviour the database gives.
package memstore

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/shopledger/shopledger/internal/allocation"
	"github.com/shopledger/shopledger/internal/audit"
	"github.com/shopledger/shopledger/internal/ledger"
	"github.com/shopledger/shopledger/internal/pocketmoney"
	"github.com/shopledger/shopledger/internal/sales"
	"github.com/shopledger/shopledger/internal/shared"
	"github.com/shopledger/shopledger/internal/stock"
	"github.com/shopledger/shopledger/internal/supplier"
)

type state struct {
	seq int64

	customers map[int64]ledger.Customer
	payments  []ledger.Payment

	products  map[int64]stock.Product
	movements []stock.Movement

	sales     map[string]sales.Sale
	saleItems []sales.SaleItem
	refunds   []sales.Refund

	allocations map[int64]allocation.Allocation
	history     []allocation.HistoryEntry

	suppliers          map[int64]supplier.Supplier
	restocks           map[int64]supplier.Restock
	restockItems       []supplier.RestockItem
	credits            map[int64]supplier.Credit
	supplierPayments   []supplier.Payment
	paymentAllocations []supplier.PaymentAllocation

	pocket []pocketmoney.Transaction
}

func newState() state {
	return state{
		customers:   map[int64]ledger.Customer{},
		products:    map[int64]stock.Product{},
		sales:       map[string]sales.Sale{},
		allocations: map[int64]allocation.Allocation{},
		suppliers:   map[int64]supplier.Supplier{},
		restocks:    map[int64]supplier.Restock{},
		credits:     map[int64]supplier.Credit{},
	}
}

func (s state) clone() state {
	return state{
		seq:                s.seq,
		customers:          maps.Clone(s.customers),
		payments:           slices.Clone(s.payments),
		products:           maps.Clone(s.products),
		movements:          slices.Clone(s.movements),
		sales:              maps.Clone(s.sales),
		saleItems:          slices.Clone(s.saleItems),
		refunds:            slices.Clone(s.refunds),
		allocations:        maps.Clone(s.allocations),
		history:            slices.Clone(s.history),
		suppliers:          maps.Clone(s.suppliers),
		restocks:           maps.Clone(s.restocks),
		restockItems:       slices.Clone(s.restockItems),
		credits:            maps.Clone(s.credits),
		supplierPayments:   slices.Clone(s.supplierPayments),
		paymentAllocations: slices.Clone(s.paymentAllocations),
		pocket:             slices.Clone(s.pocket),
	}
}

// Store holds every table the services touch.
type Store struct {
	mu    sync.Mutex
	st    state
	fail  map[string]error
	now   func() time.Time
	txRun int
}

// New returns an empty store whose clock starts at a fixed instant.
func New() *Store {
	start := time.Date(2025, time.January, 6, 9, 0, 0, 0, time.UTC)
	return &Store{st: newState(), fail: map[string]error{}, now: func() time.Time { return start }}
}

// SetNow replaces the clock used for created_at columns.
func (s *Store) SetNow(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// FailOn makes the named transactional statement return err until
// cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.fail, method)
		return
	}
	s.fail[method] = err
}

// Transactions reports how many transactions have run.
func (s *Store) Transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txRun
}

func (s *Store) withTx(ctx context.Context, fn func(*tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txRun++
	snapshot := s.st.clone()
	if err := fn(&tx{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) nextID() int64 {
	s.st.seq++
	return s.st.seq
}

// AddCustomer seeds an active customer. Zero-valued enums default to a
// day scholar outside any program.
func (s *Store) AddCustomer(c ledger.Customer) ledger.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextID()
	if c.Status == "" {
		c.Status = shared.StatusActive
	}
	if c.Program == "" {
		c.Program = ledger.ProgramNone
	}
	if c.Boarding == "" {
		c.Boarding = ledger.BoardingDay
	}
	c.Balance = shared.Outstanding(c.TotalItemsCost, c.AmountPaid)
	c.CreatedAt, c.UpdatedAt = s.now(), s.now()
	s.st.customers[c.ID] = c
	return c
}

// AddProduct seeds a product, active unless stated otherwise.
func (s *Store) AddProduct(p stock.Product) stock.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID()
	if p.Status == "" {
		p.Status = shared.StatusActive
	}
	p.CreatedAt, p.UpdatedAt = s.now(), s.now()
	s.st.products[p.ID] = p
	return p
}

// AddSupplier seeds a supplier.
func (s *Store) AddSupplier(sp supplier.Supplier) supplier.Supplier {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp.ID = s.nextID()
	sp.CreatedAt, sp.UpdatedAt = s.now(), s.now()
	s.st.suppliers[sp.ID] = sp
	return sp
}

// AddCredit seeds an unpaid credit and raises the supplier balance by it.
func (s *Store) AddCredit(supplierID int64, amount decimal.Decimal, createdAt time.Time) supplier.Credit {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := supplier.Credit{
		ID:             s.nextID(),
		SupplierID:     supplierID,
		Amount:         amount,
		OriginalAmount: amount,
		DueDate:        createdAt.AddDate(0, 0, supplier.DefaultCreditDays),
		Status:         supplier.CreditUnpaid,
		CreatedAt:      createdAt,
	}
	s.st.credits[c.ID] = c
	sp := s.st.suppliers[supplierID]
	sp.Balance = sp.Balance.Add(amount)
	s.st.suppliers[supplierID] = sp
	return c
}

// Customer returns the stored customer row.
func (s *Store) Customer(id int64) ledger.Customer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.customers[id]
}

// Product returns the stored product row.
func (s *Store) Product(id int64) stock.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.products[id]
}

// Supplier returns the stored supplier row.
func (s *Store) Supplier(id int64) supplier.Supplier {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.suppliers[id]
}

// Credit returns the stored credit row.
func (s *Store) Credit(id int64) supplier.Credit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.credits[id]
}

// Restock returns a stored restock with its items.
func (s *Store) Restock(id int64) supplier.Restock {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.st.restocks[id]
	for _, it := range s.st.restockItems {
		if it.RestockID == id {
			r.Items = append(r.Items, it)
		}
	}
	return r
}

// Movements returns every stock movement of a product in insert order.
func (s *Store) Movements(productID int64) []stock.Movement {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []stock.Movement
	for _, m := range s.st.movements {
		if m.ProductID == productID {
			out = append(out, m)
		}
	}
	return out
}

// Payments returns every ledger payment of a customer in insert order.
func (s *Store) Payments(customerID int64) []ledger.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ledger.Payment
	for _, p := range s.st.payments {
		if p.CustomerID == customerID {
			out = append(out, p)
		}
	}
	return out
}

// SaleCount reports how many sales are stored.
func (s *Store) SaleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.sales)
}

// PaymentAllocations returns every supplier payment allocation.
func (s *Store) PaymentAllocations() []supplier.PaymentAllocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.st.paymentAllocations)
}

// SetLastGiven rewrites an allocation's last fulfilment date.
func (s *Store) SetLastGiven(id int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.st.allocations[id]
	a.LastGivenDate = &at
	s.st.allocations[id] = a
}

// Audit collects audit records.
type Audit struct {
	mu   sync.Mutex
	logs []shared.AuditLog
	Err  error
}

// Record stores log, or returns Err when set.
func (a *Audit) Record(_ context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.Err != nil {
		return a.Err
	}
	if log.At.IsZero() {
		log.At = time.Now()
	}
	a.logs = append(a.logs, log)
	return nil
}

// List filters the recorded entries newest first, like audit.PgRepository.
func (a *Audit) List(_ context.Context, q audit.Query) ([]audit.Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []audit.Entry
	for i := len(a.logs) - 1; i >= 0; i-- {
		l := a.logs[i]
		switch {
		case !q.From.IsZero() && l.At.Before(q.From),
			!q.To.IsZero() && !l.At.Before(q.To),
			q.Actor != "" && l.Actor.Name != q.Actor,
			q.Entity != "" && l.Entity != q.Entity,
			q.EntityID != "" && l.EntityID != q.EntityID,
			q.Action != "" && l.Action != q.Action:
			continue
		}
		out = append(out, audit.Entry{
			ID:        int64(i + 1),
			At:        l.At,
			ActorName: l.Actor.Name,
			ActorRole: l.Actor.Role,
			Action:    l.Action,
			Entity:    l.Entity,
			EntityID:  l.EntityID,
			Meta:      l.Meta,
		})
	}
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Actions lists recorded actions in order.
func (a *Audit) Actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.logs))
	for _, l := range a.logs {
		out = append(out, l.Action)
	}
	return out
}

// Logs returns a copy of the recorded entries.
func (a *Audit) Logs() []shared.AuditLog {
	a.mu.Lock()
	defer a.mu.Unlock()
	return slices.Clone(a.logs)
}

// Idempotency claims keys in memory.
type Idempotency struct {
	mu   sync.Mutex
	keys map[string]bool
}

// NewIdempotency returns an empty key set.
func NewIdempotency() *Idempotency {
	return &Idempotency{keys: map[string]bool{}}
}

// CheckAndInsert mirrors shared.IdempotencyStore.
func (i *Idempotency) CheckAndInsert(_ context.Context, key, module string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if key == "" || module == "" {
		return shared.Invalid("idempotency", "key and module required")
	}
	k := module + ":" + key
	if i.keys[k] {
		return shared.ErrIdempotencyConflict
	}
	i.keys[k] = true
	return nil
}

// Delete releases a key.
func (i *Idempotency) Delete(_ context.Context, key, module string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.keys, module+":"+key)
	return nil
}

// Held reports whether key is claimed for module.
func (i *Idempotency) Held(key, module string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.keys[module+":"+key]
}

// Now reads the store clock.
func (s *Store) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now()
}

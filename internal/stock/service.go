package stock

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/shopledger/shopledger/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetProduct(ctx context.Context, id int64) (Product, error)
	Archive(ctx context.Context, id int64) error
	ListLowStock(ctx context.Context, department string) ([]Product, error)
	ListMovements(ctx context.Context, productID int64, page shared.Page) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates product catalogue and stock corrections.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	cache    shared.ReadCache
	logger   *slog.Logger
	validate *shared.Validator
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, logger: logger, validate: shared.NewValidator()}
}

// WithCache serves low-stock listings through c and bumps it on writes.
func (s *Service) WithCache(c shared.ReadCache) *Service {
	s.cache = c
	return s
}

// CreateProduct inserts a product and books its opening stock as an
// adjustment movement in the same transaction.
func (s *Service) CreateProduct(ctx context.Context, in CreateProductInput) (Product, error) {
	if err := s.validate.Struct("stock", in); err != nil {
		return Product{}, err
	}
	if !in.Actor.Valid() {
		return Product{}, shared.Invalid("stock", "actor name and role required")
	}
	if err := shared.CheckAmount("stock", "buy price", in.BuyPrice); err != nil {
		return Product{}, err
	}
	if err := shared.CheckAmount("stock", "sell price", in.SellPrice); err != nil {
		return Product{}, err
	}
	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		p, err := tx.InsertProduct(ctx, Product{
			Name:         in.Name,
			Department:   NormalizeDepartment(in.Department),
			ReorderLevel: in.ReorderLevel,
			BuyPrice:     in.BuyPrice,
			SellPrice:    in.SellPrice,
		})
		if err != nil {
			return fmt.Errorf("stock: insert product: %w", err)
		}
		if in.OpeningStock > 0 {
			p, err = Adjust(ctx, tx, Change{ProductID: p.ID, Delta: in.OpeningStock, Reason: ReasonAdjustment, Ref: "opening"})
			if err != nil {
				return err
			}
		}
		product = p
		return nil
	})
	if err != nil {
		return Product{}, err
	}
	s.bump(ctx)
	s.record(ctx, in.Actor, "stock:product_created", product.ID, map[string]any{
		"name":          product.Name,
		"department":    product.Department,
		"opening_stock": in.OpeningStock,
	})
	return product, nil
}

// AdjustStock applies a counted correction with a mandatory reason.
func (s *Service) AdjustStock(ctx context.Context, in AdjustmentInput) (Product, error) {
	if err := s.validate.Struct("stock", in); err != nil {
		return Product{}, err
	}
	if !in.Actor.Valid() {
		return Product{}, shared.Invalid("stock", "actor name and role required")
	}
	var product Product
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		product, err = Adjust(ctx, tx, Change{ProductID: in.ProductID, Delta: in.Delta, Reason: ReasonAdjustment, Ref: in.Reason})
		return err
	})
	if err != nil {
		return Product{}, err
	}
	s.logger.Info("stock adjusted", slog.Int64("product_id", product.ID), slog.Int("delta", in.Delta), slog.Int("stock_qty", product.StockQty))
	s.bump(ctx)
	s.record(ctx, in.Actor, "stock:adjustment", product.ID, map[string]any{"delta": in.Delta, "reason": in.Reason})
	return product, nil
}

// GetProduct returns a product.
func (s *Service) GetProduct(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, shared.Invalid("stock", "product id required")
	}
	return s.repo.GetProduct(ctx, id)
}

// ArchiveProduct retires a product; its stock card stays readable.
func (s *Service) ArchiveProduct(ctx context.Context, id int64, actor shared.Actor) error {
	if id <= 0 {
		return shared.Invalid("stock", "product id required")
	}
	if !actor.Valid() {
		return shared.Invalid("stock", "actor name and role required")
	}
	if err := s.repo.Archive(ctx, id); err != nil {
		return err
	}
	s.bump(ctx)
	s.record(ctx, actor, "stock:product_archived", id, nil)
	return nil
}

// ListLowStock lists products needing reorder, optionally for one department.
func (s *Service) ListLowStock(ctx context.Context, department string) ([]Product, error) {
	department = NormalizeDepartment(department)
	if s.cache == nil {
		return s.repo.ListLowStock(ctx, department)
	}
	key, err := s.cache.Key(ctx, shared.ScopeStock, "low", department)
	if err != nil {
		return nil, err
	}
	var products []Product
	err = s.cache.FetchJSON(ctx, key, &products, func(ctx context.Context) (any, error) {
		return s.repo.ListLowStock(ctx, department)
	})
	return products, err
}

// ListMovements lists the stock card of a product.
func (s *Service) ListMovements(ctx context.Context, productID int64, page shared.Page) ([]Movement, error) {
	if productID <= 0 {
		return nil, shared.Invalid("stock", "product id required")
	}
	return s.repo.ListMovements(ctx, productID, page)
}

func (s *Service) bump(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx, shared.ScopeStock); err != nil {
		s.logger.Warn("bump read cache", slog.String("scope", shared.ScopeStock), slog.Any("error", err))
	}
}

func (s *Service) record(ctx context.Context, actor shared.Actor, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{Actor: actor, Action: action, Entity: "product", EntityID: strconv.FormatInt(id, 10), Meta: meta}); err != nil {
		s.logger.Warn("audit record", slog.String("action", action), slog.Any("error", err))
	}
}

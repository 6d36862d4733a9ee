package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/alabites/api/internal/clients/alabites"
)

const defaultStockLookupConcurrency = 4

// StockServiceDeps wires the dependencies required by the stock service.
type StockServiceDeps struct {
	Products    ProductReader
	Stocks      StockWriter
	Logger      func(ctx context.Context, event string, fields map[string]any)
	Concurrency int
}

type stockService struct {
	products    ProductReader
	stocks      StockWriter
	logger      func(ctx context.Context, event string, fields map[string]any)
	concurrency int
}

// NewStockService constructs a StockService validating required dependencies.
func NewStockService(deps StockServiceDeps) (StockService, error) {
	if deps.Products == nil {
		return nil, errors.New("stock service: product reader is required")
	}
	if deps.Stocks == nil {
		return nil, errors.New("stock service: stock writer is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultStockLookupConcurrency
	}

	return &stockService{
		products:    deps.Products,
		stocks:      deps.Stocks,
		logger:      logger,
		concurrency: concurrency,
	}, nil
}

// VerifyStock resolves every cart line against the catalog and checks the
// requested quantity fits the current stock level. Lookups run concurrently;
// results keep the input order. The first shortage aborts the whole cart.
func (s *stockService) VerifyStock(ctx context.Context, lines []CartLine) ([]StockCheck, error) {
	if len(lines) == 0 {
		return nil, NewValidationError(map[string]string{"items": "cart is empty"})
	}

	checks := make([]StockCheck, len(lines))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)

	for i, line := range lines {
		group.Go(func() error {
			ref := strings.TrimSpace(line.ProductRef)
			if ref == "" {
				return NewValidationError(map[string]string{"productId": "product reference is required"})
			}

			product, err := s.products.ProductByRef(groupCtx, ref)
			if err != nil {
				if errors.Is(err, alabites.ErrNotFound) {
					return &StockError{ProductName: displayName(line), Requested: line.Quantity, Available: 0}
				}
				return fmt.Errorf("verify stock for %s: %w", ref, err)
			}

			if product.Stock < line.Quantity {
				return &StockError{
					ProductName: product.Name,
					Requested:   line.Quantity,
					Available:   product.Stock,
				}
			}

			checks[i] = StockCheck{
				Line:     line,
				Product:  product,
				NewStock: product.Stock - line.Quantity,
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return nil, err
	}

	s.logger(ctx, "stock.verified", map[string]any{
		"lines": len(checks),
	})
	return checks, nil
}

// CommitStocks writes the decremented stock levels back to the catalog.
// Writes run sequentially so a mid-sequence failure leaves a known prefix applied.
func (s *stockService) CommitStocks(ctx context.Context, checks []StockCheck) error {
	for _, check := range checks {
		if err := s.stocks.UpdateStock(ctx, check.Product.ID, check.NewStock); err != nil {
			s.logger(ctx, "stock.commit_failed", map[string]any{
				"productId": check.Product.ID,
				"error":     err.Error(),
			})
			return fmt.Errorf("commit stock for %s: %w", check.Product.ID, err)
		}
	}
	return nil
}

func displayName(line CartLine) string {
	if name := strings.TrimSpace(line.Name); name != "" {
		return name
	}
	return strings.TrimSpace(line.ProductRef)
}

package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/alabites/api/internal/clients/alabites"
	domain "github.com/alabites/api/internal/domain"
)

type stubProductReader struct {
	mu       sync.Mutex
	products map[string]domain.Product
	err      error
	calls    int
}

func (s *stubProductReader) ProductByRef(ctx context.Context, ref string) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return domain.Product{}, s.err
	}
	product, ok := s.products[ref]
	if !ok {
		return domain.Product{}, alabites.ErrNotFound
	}
	return product, nil
}

type stubStockWriter struct {
	mu      sync.Mutex
	updates map[string]int
	err     error
}

func (s *stubStockWriter) UpdateStock(ctx context.Context, productID string, stock int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.updates == nil {
		s.updates = make(map[string]int)
	}
	s.updates[productID] = stock
	return nil
}

func TestVerifyStockKeepsInputOrder(t *testing.T) {
	reader := &stubProductReader{products: map[string]domain.Product{
		"ffc-001": {ID: "p1", PID: "ffc-001", Name: "Sisig Rice", Stock: 10},
		"ffc-002": {ID: "p2", PID: "ffc-002", Name: "Lumpia", Stock: 5},
	}}
	service, err := NewStockService(StockServiceDeps{Products: reader, Stocks: &stubStockWriter{}})
	if err != nil {
		t.Fatalf("NewStockService: %v", err)
	}

	checks, err := service.VerifyStock(context.Background(), []CartLine{
		{ProductRef: "ffc-001", Quantity: 3},
		{ProductRef: "ffc-002", Quantity: 5},
	})
	if err != nil {
		t.Fatalf("VerifyStock: %v", err)
	}
	if len(checks) != 2 {
		t.Fatalf("expected 2 checks, got %d", len(checks))
	}
	if checks[0].Product.ID != "p1" || checks[0].NewStock != 7 {
		t.Fatalf("unexpected first check: %+v", checks[0])
	}
	if checks[1].Product.ID != "p2" || checks[1].NewStock != 0 {
		t.Fatalf("unexpected second check: %+v", checks[1])
	}
}

func TestVerifyStockShortage(t *testing.T) {
	reader := &stubProductReader{products: map[string]domain.Product{
		"ffc-001": {ID: "p1", Name: "Sisig Rice", Stock: 2},
	}}
	service, err := NewStockService(StockServiceDeps{Products: reader, Stocks: &stubStockWriter{}})
	if err != nil {
		t.Fatalf("NewStockService: %v", err)
	}

	_, err = service.VerifyStock(context.Background(), []CartLine{
		{ProductRef: "ffc-001", Quantity: 3},
	})

	var stockErr *StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if stockErr.ProductName != "Sisig Rice" || stockErr.Requested != 3 || stockErr.Available != 2 {
		t.Fatalf("unexpected stock error: %+v", stockErr)
	}
}

func TestVerifyStockUnknownProduct(t *testing.T) {
	reader := &stubProductReader{products: map[string]domain.Product{}}
	service, err := NewStockService(StockServiceDeps{Products: reader, Stocks: &stubStockWriter{}})
	if err != nil {
		t.Fatalf("NewStockService: %v", err)
	}

	_, err = service.VerifyStock(context.Background(), []CartLine{
		{ProductRef: "ghost", Name: "Ghost Meal", Quantity: 1},
	})

	var stockErr *StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if stockErr.ProductName != "Ghost Meal" || stockErr.Available != 0 {
		t.Fatalf("unexpected stock error: %+v", stockErr)
	}
}

func TestVerifyStockEmptyCart(t *testing.T) {
	service, err := NewStockService(StockServiceDeps{Products: &stubProductReader{}, Stocks: &stubStockWriter{}})
	if err != nil {
		t.Fatalf("NewStockService: %v", err)
	}

	_, err = service.VerifyStock(context.Background(), nil)
	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCommitStocksWritesAbsoluteLevels(t *testing.T) {
	writer := &stubStockWriter{}
	service, err := NewStockService(StockServiceDeps{Products: &stubProductReader{}, Stocks: writer})
	if err != nil {
		t.Fatalf("NewStockService: %v", err)
	}

	err = service.CommitStocks(context.Background(), []StockCheck{
		{Product: domain.Product{ID: "p1"}, NewStock: 7},
		{Product: domain.Product{ID: "p2"}, NewStock: 0},
	})
	if err != nil {
		t.Fatalf("CommitStocks: %v", err)
	}
	if writer.updates["p1"] != 7 || writer.updates["p2"] != 0 {
		t.Fatalf("unexpected writes: %+v", writer.updates)
	}
}

func TestCommitStocksSurfacesWriteFailure(t *testing.T) {
	writer := &stubStockWriter{err: errors.New("backend down")}
	service, err := NewStockService(StockServiceDeps{Products: &stubProductReader{}, Stocks: writer})
	if err != nil {
		t.Fatalf("NewStockService: %v", err)
	}

	err = service.CommitStocks(context.Background(), []StockCheck{
		{Product: domain.Product{ID: "p1"}, NewStock: 7},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

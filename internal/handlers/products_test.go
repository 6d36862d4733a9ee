package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/alabites/api/internal/clients/alabites"
	domain "github.com/alabites/api/internal/domain"
)

type stubCatalog struct {
	products []domain.Product
	listErr  error
	getErr   error
}

func (s *stubCatalog) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.products, nil
}

func (s *stubCatalog) ProductByRef(ctx context.Context, ref string) (domain.Product, error) {
	if s.getErr != nil {
		return domain.Product{}, s.getErr
	}
	for _, product := range s.products {
		if product.PID == ref {
			return product, nil
		}
	}
	return domain.Product{}, alabites.ErrNotFound
}

func productsTestRouter(catalog productCatalog) chi.Router {
	router := chi.NewRouter()
	NewProductHandlers(catalog).Routes(router)
	return router
}

func TestListProducts(t *testing.T) {
	catalog := &stubCatalog{products: []domain.Product{
		{ID: "p1", PID: "ffc-001", Name: "Sisig Rice", Price: 85, Stock: 12},
	}}

	rr := httptest.NewRecorder()
	productsTestRouter(catalog).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(body.Products) != 1 || body.Products[0].PID != "ffc-001" {
		t.Fatalf("unexpected products: %+v", body.Products)
	}
}

func TestGetProduct(t *testing.T) {
	catalog := &stubCatalog{products: []domain.Product{
		{ID: "p1", PID: "ffc-001", Name: "Sisig Rice", Price: 85, Stock: 12},
	}}

	rr := httptest.NewRecorder()
	productsTestRouter(catalog).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ffc-001", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var product domain.Product
	if err := json.Unmarshal(rr.Body.Bytes(), &product); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if product.ID != "p1" {
		t.Fatalf("unexpected product: %+v", product)
	}
}

func TestGetProductNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	productsTestRouter(&stubCatalog{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ghost", nil))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestListProductsBackendFailure(t *testing.T) {
	catalog := &stubCatalog{listErr: &alabites.APIError{StatusCode: http.StatusBadGateway, Message: "upstream down", Endpoint: "/products"}}

	rr := httptest.NewRecorder()
	productsTestRouter(catalog).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected status 502, got %d", rr.Code)
	}
}

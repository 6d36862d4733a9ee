package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alabites/api/internal/clients/alabites"
	domain "github.com/alabites/api/internal/domain"
	"github.com/alabites/api/internal/platform/httpx"
)

// productCatalog narrows the backend client to the read operations the catalog needs.
type productCatalog interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	ProductByRef(ctx context.Context, ref string) (domain.Product, error)
}

// ProductHandlers proxies catalog reads to the store backend.
type ProductHandlers struct {
	catalog productCatalog
}

// NewProductHandlers constructs the catalog proxy handlers.
func NewProductHandlers(catalog productCatalog) *ProductHandlers {
	return &ProductHandlers{catalog: catalog}
}

// Routes registers catalog endpoints under the provided router.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productRef}", h.getProduct)
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	products, err := h.catalog.ListProducts(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	if products == nil {
		products = []domain.Product{}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"products": products})
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	ref := strings.TrimSpace(chi.URLParam(r, "productRef"))
	if ref == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product reference is required", http.StatusBadRequest))
		return
	}

	product, err := h.catalog.ProductByRef(ctx, ref)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, product)
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	var apiErr *alabites.APIError
	switch {
	case errors.Is(err, alabites.ErrNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.As(err, &apiErr):
		httpx.WriteError(ctx, w, httpx.NewError("backend_error", "store backend request failed", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load catalog", http.StatusInternalServerError))
	}
}

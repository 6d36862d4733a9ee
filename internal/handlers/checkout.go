package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/alabites/api/internal/clients/alabites"
	domain "github.com/alabites/api/internal/domain"
	"github.com/alabites/api/internal/payments"
	"github.com/alabites/api/internal/platform/auth"
	"github.com/alabites/api/internal/platform/httpx"
	"github.com/alabites/api/internal/services"
)

const maxCheckoutRequestBody = 64 * 1024

var (
	errEmptyBody    = errors.New("request body is required")
	errBodyTooLarge = errors.New("request body too large")
)

// CheckoutHandlers exposes the checkout endpoint for authenticated shoppers.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers guarded by Firebase authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireFirebaseAuth())
	}
	group.Post("/", h.submitCheckout)
}

type checkoutCardRequest struct {
	CardholderName string `json:"cardholderName"`
	CardNumber     string `json:"cardNumber"`
	ExpMonth       int    `json:"expMonth"`
	ExpYear        int    `json:"expYear"`
	CVC            string `json:"cvc"`
}

type checkoutRequest struct {
	Items         []domain.CartLine    `json:"items"`
	PaymentMethod string               `json:"paymentMethod"`
	Card          *checkoutCardRequest `json:"card"`
	Store         string               `json:"store"`
}

type checkoutTotalsResponse struct {
	Subtotal      float64 `json:"subtotal"`
	TotalDiscount float64 `json:"totalDiscount"`
	TotalPrice    float64 `json:"totalPrice"`
}

type checkoutResponse struct {
	OrderNumber   string                 `json:"orderNumber"`
	Totals        checkoutTotalsResponse `json:"totals"`
	TransactionID string                 `json:"transactionId,omitempty"`
	PaymentStatus string                 `json:"paymentStatus"`
	AmountPaid    float64                `json:"amountPaid"`
}

func (h *CheckoutHandlers) submitCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.Email) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req checkoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	cmd := services.CheckoutCommand{
		User: domain.UserIdentity{
			UID:         identity.UID,
			DisplayName: identity.DisplayName,
			Email:       identity.Email,
		},
		Items:  req.Items,
		Method: domain.PaymentMethod(strings.TrimSpace(req.PaymentMethod)),
		Store:  strings.TrimSpace(req.Store),
	}
	if req.Card != nil {
		cmd.Card = domain.CardDetails{
			CardholderName: req.Card.CardholderName,
			CardNumber:     req.Card.CardNumber,
			ExpMonth:       req.Card.ExpMonth,
			ExpYear:        req.Card.ExpYear,
			CVC:            req.Card.CVC,
		}
	}

	result, err := h.checkout.Checkout(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, checkoutResponse{
		OrderNumber: result.OrderNumber,
		Totals: checkoutTotalsResponse{
			Subtotal:      result.Totals.Subtotal,
			TotalDiscount: result.Totals.TotalDiscount,
			TotalPrice:    result.Totals.TotalPrice,
		},
		TransactionID: result.TransactionID,
		PaymentStatus: result.PaymentStatus,
		AmountPaid:    result.AmountPaid,
	})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var validationErr *services.ValidationError
	var stockErr *services.StockError
	var partialErr *services.PartialCommitError
	var gatewayErr *payments.GatewayError
	var apiErr *alabites.APIError

	switch {
	case errors.As(err, &validationErr):
		fields := make(map[string]any, len(validationErr.Fields()))
		for k, v := range validationErr.Fields() {
			fields[k] = v
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "checkout request rejected", http.StatusBadRequest).
			WithDetails(map[string]any{"fields": fields}))
	case errors.As(err, &stockErr):
		httpx.WriteError(ctx, w, httpx.NewError("out_of_stock", stockErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{
				"product":   stockErr.ProductName,
				"requested": stockErr.Requested,
				"available": stockErr.Available,
			}))
	case errors.Is(err, services.ErrInsufficientBalance):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_balance", "stored balance cannot cover the order total", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrUnsupportedPaymentMethod):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unsupported payment method", http.StatusBadRequest))
	case errors.As(err, &partialErr):
		// Payment already settled; this must never read as a clean retryable failure.
		httpx.WriteError(ctx, w, httpx.NewError("checkout_incomplete", "payment was taken but the order could not be completed; contact support with your order number", http.StatusInternalServerError).
			WithDetails(map[string]any{"orderNumber": partialErr.OrderNumber}))
	case errors.As(err, &gatewayErr):
		if gatewayErr.StatusCode == http.StatusPaymentRequired {
			httpx.WriteError(ctx, w, httpx.NewError("payment_failed", gatewayErr.Message, http.StatusPaymentRequired))
			return
		}
		httpx.WriteError(ctx, w, httpx.NewError("gateway_error", "payment gateway request failed", http.StatusBadGateway))
	case errors.As(err, &apiErr):
		httpx.WriteError(ctx, w, httpx.NewError("backend_error", "store backend request failed", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r == nil || r.Body == nil {
		return nil, errEmptyBody
	}
	if limit <= 0 {
		limit = maxCheckoutRequestBody
	}
	reader := io.LimitReader(r.Body, limit+1)
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, errEmptyBody
	}
	if int64(len(data)) > limit {
		return nil, errBodyTooLarge
	}
	return data, nil
}

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

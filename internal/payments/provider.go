package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alabites/api/internal/domain"
)

// Status enumerates the normalised payment states shared across providers.
type Status string

const (
	// StatusPending indicates the gateway is still processing the payment.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway declined or abandoned the payment.
	StatusFailed Status = "failed"
	// StatusAwaitingAction indicates the payment needs a customer step (e.g. 3DS).
	StatusAwaitingAction Status = "awaiting_next_action"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// GatewayError captures a failure reported by a payment gateway.
type GatewayError struct {
	Provider   string
	StatusCode int
	Code       string
	Message    string
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payments: %s gateway error %s: %s", e.Provider, e.Code, e.Message)
	}
	return fmt.Sprintf("payments: %s gateway error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// Temporary reports whether the failure is worth retrying.
func (e *GatewayError) Temporary() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// PaymentMethodRequest carries the card details to tokenize with the gateway.
type PaymentMethodRequest struct {
	Card         domain.CardDetails
	BillingName  string
	BillingEmail string
}

// IntentRequest captures the payload required to create a payment intent.
// Amount is in the currency's minor units.
type IntentRequest struct {
	Amount      int64
	Currency    string
	Description string
	Metadata    map[string]string
}

// Intent represents a created but unattached payment intent.
type Intent struct {
	ID        string
	ClientKey string
	Status    Status
	Amount    int64
	Currency  string
}

// AttachRequest binds a tokenized payment method to an intent for capture.
type AttachRequest struct {
	IntentID        string
	PaymentMethodID string
}

// PaymentDetails normalises gateway specific fields for storage.
type PaymentDetails struct {
	Provider        string
	IntentID        string
	PaymentMethodID string
	Status          Status
	Amount          int64
	Currency        string
	NextActionURL   string
}

// Provider defines the contract for payment gateway adapters.
// The three operations mirror the tokenize, intend, attach sequence shared by
// card gateways: card details never touch an order record directly.
type Provider interface {
	CreatePaymentMethod(ctx context.Context, req PaymentMethodRequest) (string, error)
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	AttachPaymentMethod(ctx context.Context, req AttachRequest) (PaymentDetails, error)
}

// ChargeRequest bundles the inputs for a full card charge sequence.
type ChargeRequest struct {
	Amount       int64
	Currency     string
	Description  string
	Card         domain.CardDetails
	BillingName  string
	BillingEmail string
	Metadata     map[string]string
}

// PaymentContext defines the hints available when selecting a provider.
type PaymentContext struct {
	PreferredProvider string
	Currency          string
}

// Manager coordinates provider selection and runs the charge sequence.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
	currencyRoutes  map[string]string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider for currencies without explicit routing.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = provider
	}
}

// WithCurrencyRoutes configures static currency to provider mappings.
func WithCurrencyRoutes(routes map[string]string) ManagerOption {
	return func(m *Manager) {
		if len(routes) == 0 {
			return
		}
		if m.currencyRoutes == nil {
			m.currencyRoutes = make(map[string]string, len(routes))
		}
		for k, v := range routes {
			m.currencyRoutes[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{
		providers: copyMap,
	}
	if _, ok := copyMap["paymongo"]; ok {
		m.defaultProvider = "paymongo"
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

func (m *Manager) resolveProvider(ctx PaymentContext) (string, Provider, error) {
	if m == nil {
		return "", nil, errors.New("payments: manager is nil")
	}
	if len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if provider := strings.TrimSpace(strings.ToLower(ctx.PreferredProvider)); provider != "" {
		if p, ok := m.providers[provider]; ok {
			return provider, p, nil
		}
	}
	currency := strings.ToUpper(strings.TrimSpace(ctx.Currency))
	if currency != "" && m.currencyRoutes != nil {
		if providerKey, ok := m.currencyRoutes[currency]; ok {
			provider := strings.TrimSpace(strings.ToLower(providerKey))
			if p, ok := m.providers[provider]; ok {
				return provider, p, nil
			}
		}
	}
	if def := strings.TrimSpace(strings.ToLower(m.defaultProvider)); def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// Charge runs the full tokenize, intend, attach sequence on the resolved provider.
func (m *Manager) Charge(ctx context.Context, paymentCtx PaymentContext, req ChargeRequest) (PaymentDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}

	methodID, err := provider.CreatePaymentMethod(ctx, PaymentMethodRequest{
		Card:         req.Card,
		BillingName:  req.BillingName,
		BillingEmail: req.BillingEmail,
	})
	if err != nil {
		return PaymentDetails{}, err
	}

	intent, err := provider.CreateIntent(ctx, IntentRequest{
		Amount:      req.Amount,
		Currency:    req.Currency,
		Description: req.Description,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return PaymentDetails{}, err
	}

	details, err := provider.AttachPaymentMethod(ctx, AttachRequest{
		IntentID:        intent.ID,
		PaymentMethodID: methodID,
	})
	if err != nil {
		return PaymentDetails{}, err
	}

	details.Provider = key
	if details.PaymentMethodID == "" {
		details.PaymentMethodID = methodID
	}
	return details, nil
}

// CreatePaymentMethod delegates to the resolved provider.
func (m *Manager) CreatePaymentMethod(ctx context.Context, paymentCtx PaymentContext, req PaymentMethodRequest) (string, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return "", err
	}
	return provider.CreatePaymentMethod(ctx, req)
}

// CreateIntent delegates to the resolved provider.
func (m *Manager) CreateIntent(ctx context.Context, paymentCtx PaymentContext, req IntentRequest) (Intent, error) {
	_, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return Intent{}, err
	}
	return provider.CreateIntent(ctx, req)
}

// AttachPaymentMethod delegates to the resolved provider.
func (m *Manager) AttachPaymentMethod(ctx context.Context, paymentCtx PaymentContext, req AttachRequest) (PaymentDetails, error) {
	key, provider, err := m.resolveProvider(paymentCtx)
	if err != nil {
		return PaymentDetails{}, err
	}
	details, err := provider.AttachPaymentMethod(ctx, req)
	if err != nil {
		return PaymentDetails{}, err
	}
	details.Provider = key
	return details, nil
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	domain "github.com/alabites/api/internal/domain"
	"github.com/alabites/api/internal/payments"
)

// Authorization statuses reported by the built-in payment handlers.
const (
	PaymentStatusPaid     = "paid"
	PaymentStatusDeferred = "deferred"
)

// BalancePaymentHandlerDeps wires the dependencies for the stored-balance handler.
type BalancePaymentHandlerDeps struct {
	Accounts UserAccounts
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type balancePaymentHandler struct {
	accounts UserAccounts
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewBalancePaymentHandler constructs the handler that debits the shopper's stored balance.
func NewBalancePaymentHandler(deps BalancePaymentHandlerDeps) (PaymentHandler, error) {
	if deps.Accounts == nil {
		return nil, errors.New("balance payment handler: user accounts client is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &balancePaymentHandler{accounts: deps.Accounts, logger: logger}, nil
}

func (h *balancePaymentHandler) Method() PaymentMethod {
	return domain.PaymentMethodBalance
}

// Authorize resolves the account by email, checks the balance covers the
// total, and debits it. The balance check and the debit are separate backend
// calls; a concurrent spend between them is resolved by the backend.
func (h *balancePaymentHandler) Authorize(ctx context.Context, req PaymentRequest) (PaymentAuthorization, error) {
	email := strings.TrimSpace(req.User.Email)
	if email == "" {
		return PaymentAuthorization{}, NewValidationError(map[string]string{"email": "shopper email is required"})
	}

	account, err := h.accounts.UserByEmail(ctx, email)
	if err != nil {
		return PaymentAuthorization{}, fmt.Errorf("look up account for balance payment: %w", err)
	}

	if account.CurrencyBalance < req.Amount {
		h.logger(ctx, "payment.balance.insufficient", map[string]any{
			"orderNumber": req.OrderID,
			"balance":     domain.RoundMoney(account.CurrencyBalance),
			"amount":      domain.RoundMoney(req.Amount),
		})
		return PaymentAuthorization{}, ErrInsufficientBalance
	}

	if err := h.accounts.SpendCurrency(ctx, account.UID, req.Amount); err != nil {
		return PaymentAuthorization{}, fmt.Errorf("debit balance: %w", err)
	}

	h.logger(ctx, "payment.balance.debited", map[string]any{
		"orderNumber": req.OrderID,
		"amount":      domain.RoundMoney(req.Amount),
	})
	return PaymentAuthorization{
		Status:     PaymentStatusPaid,
		AmountPaid: req.Amount,
	}, nil
}

// cardCharger abstracts payments.Manager for easier testing.
type cardCharger interface {
	Charge(ctx context.Context, paymentCtx payments.PaymentContext, req payments.ChargeRequest) (payments.PaymentDetails, error)
}

// CardPaymentHandlerDeps wires the dependencies for the card gateway handler.
type CardPaymentHandlerDeps struct {
	Payments cardCharger
	Currency string
	Provider string
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cardPaymentHandler struct {
	payments cardCharger
	currency string
	provider string
	now      func() time.Time
	logger   func(ctx context.Context, event string, fields map[string]any)
}

// NewCardPaymentHandler constructs the handler that settles through the card gateway.
func NewCardPaymentHandler(deps CardPaymentHandlerDeps) (PaymentHandler, error) {
	if deps.Payments == nil {
		return nil, errors.New("card payment handler: payment manager is required")
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "PHP"
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cardPaymentHandler{
		payments: deps.Payments,
		currency: currency,
		provider: strings.TrimSpace(deps.Provider),
		now:      clock,
		logger:   logger,
	}, nil
}

func (h *cardPaymentHandler) Method() PaymentMethod {
	return domain.PaymentMethodCard
}

// ValidatePayment rejects malformed card input without contacting the gateway.
func (h *cardPaymentHandler) ValidatePayment(card CardDetails) error {
	return h.validateCard(card)
}

// Authorize validates the card input and runs the gateway charge sequence.
// Amounts cross to the gateway in the currency's minor units.
func (h *cardPaymentHandler) Authorize(ctx context.Context, req PaymentRequest) (PaymentAuthorization, error) {
	if err := h.validateCard(req.Card); err != nil {
		return PaymentAuthorization{}, err
	}

	details, err := h.payments.Charge(ctx, payments.PaymentContext{
		PreferredProvider: h.provider,
		Currency:          h.currency,
	}, payments.ChargeRequest{
		Amount:       domain.MinorUnits(req.Amount),
		Currency:     h.currency,
		Description:  req.Description,
		Card:         req.Card,
		BillingName:  req.Card.CardholderName,
		BillingEmail: req.User.Email,
		Metadata: map[string]string{
			"order_number": req.OrderID,
		},
	})
	if err != nil {
		return PaymentAuthorization{}, err
	}

	h.logger(ctx, "payment.card.settled", map[string]any{
		"orderNumber":   req.OrderID,
		"provider":      details.Provider,
		"paymentIntent": details.IntentID,
		"status":        string(details.Status),
	})
	return PaymentAuthorization{
		TransactionID: details.IntentID,
		Status:        PaymentStatusPaid,
		AmountPaid:    req.Amount,
	}, nil
}

func (h *cardPaymentHandler) validateCard(card CardDetails) error {
	fields := make(map[string]string)

	if strings.TrimSpace(card.CardholderName) == "" {
		fields["cardholderName"] = "cardholder name is required"
	}
	if digits := digitsOnly(card.CardNumber); len(digits) != 16 {
		fields["cardNumber"] = "card number must be 16 digits"
	}
	if card.ExpMonth < 1 || card.ExpMonth > 12 {
		fields["expMonth"] = "expiry month must be between 1 and 12"
	}
	if card.ExpYear < h.now().Year() {
		fields["expYear"] = "card is expired"
	} else if card.ExpYear == h.now().Year() && card.ExpMonth > 0 && card.ExpMonth < int(h.now().Month()) {
		fields["expMonth"] = "card is expired"
	}
	if digits := digitsOnly(card.CVC); len(digits) != 3 {
		fields["cvc"] = "security code must be 3 digits"
	}

	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

// CounterPaymentHandlerDeps wires the dependencies for the pay-at-counter handler.
type CounterPaymentHandlerDeps struct {
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type counterPaymentHandler struct {
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewCounterPaymentHandler constructs the handler that defers settlement to the store counter.
func NewCounterPaymentHandler(deps CounterPaymentHandlerDeps) PaymentHandler {
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &counterPaymentHandler{logger: logger}
}

func (h *counterPaymentHandler) Method() PaymentMethod {
	return domain.PaymentMethodCounter
}

// Authorize records nothing; the order is submitted unpaid and settled in person.
func (h *counterPaymentHandler) Authorize(ctx context.Context, req PaymentRequest) (PaymentAuthorization, error) {
	h.logger(ctx, "payment.counter.deferred", map[string]any{
		"orderNumber": req.OrderID,
		"amount":      domain.RoundMoney(req.Amount),
	})
	return PaymentAuthorization{Status: PaymentStatusDeferred}, nil
}

func digitsOnly(value string) string {
	var b strings.Builder
	for _, r := range value {
		if unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

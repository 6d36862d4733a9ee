package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/alabites/api/internal/domain"
)

const orderCreatedEventType = "order.created"

// CheckoutServiceDeps wires the dependencies required by the checkout service.
// Events is optional; every other dependency is required.
type CheckoutServiceDeps struct {
	Stocks   StockService
	Handlers []PaymentHandler
	Accounts UserAccounts
	Orders   OrderWriter
	Events   OrderEventPublisher
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)

	// NewOrderID and NewTransactionID override identifier generation in tests.
	NewOrderID       func() string
	NewTransactionID func() string
}

type checkoutService struct {
	stocks           StockService
	handlers         map[PaymentMethod]PaymentHandler
	accounts         UserAccounts
	orders           OrderWriter
	events           OrderEventPublisher
	now              func() time.Time
	logger           func(ctx context.Context, event string, fields map[string]any)
	newOrderID       func() string
	newTransactionID func() string
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Stocks == nil {
		return nil, errors.New("checkout service: stock service is required")
	}
	if len(deps.Handlers) == 0 {
		return nil, errors.New("checkout service: at least one payment handler is required")
	}
	if deps.Accounts == nil {
		return nil, errors.New("checkout service: user accounts client is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order writer is required")
	}

	handlers := make(map[PaymentMethod]PaymentHandler, len(deps.Handlers))
	for _, handler := range deps.Handlers {
		if handler == nil {
			return nil, errors.New("checkout service: nil payment handler")
		}
		method := handler.Method()
		if _, exists := handlers[method]; exists {
			return nil, fmt.Errorf("checkout service: duplicate handler for method %q", method)
		}
		handlers[method] = handler
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	newOrderID := deps.NewOrderID
	if newOrderID == nil {
		newOrderID = domain.GenerateOrderID
	}
	newTransactionID := deps.NewTransactionID
	if newTransactionID == nil {
		newTransactionID = func() string { return ulid.Make().String() }
	}

	return &checkoutService{
		stocks:   deps.Stocks,
		handlers: handlers,
		accounts: deps.Accounts,
		orders:   deps.Orders,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:           logger,
		newOrderID:       newOrderID,
		newTransactionID: newTransactionID,
	}, nil
}

// Checkout runs the submission pipeline for one cart: validate, verify stock,
// settle payment, commit stock, record the ledger entry, persist the order,
// then notify downstream consumers.
//
// The payment settles before any backend write. A failure after settlement is
// wrapped in PartialCommitError so callers can route it to reconciliation
// instead of retrying blindly.
func (s *checkoutService) Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error) {
	if err := validateCheckoutCommand(cmd); err != nil {
		return CheckoutResult{}, err
	}
	if method, ok := domain.ParsePaymentMethod(string(cmd.Method)); ok {
		cmd.Method = method
	}

	totals := domain.ComputeTotals(cmd.Items)
	amount := domain.RoundMoney(totals.TotalPrice)
	orderNumber := s.newOrderID()

	handler, ok := s.handlers[cmd.Method]
	if !ok {
		return CheckoutResult{}, ErrUnsupportedPaymentMethod
	}
	// Method-specific input checks run before the first backend call.
	if validator, ok := handler.(PaymentValidator); ok {
		if err := validator.ValidatePayment(cmd.Card); err != nil {
			return CheckoutResult{}, err
		}
	}

	checks, err := s.stocks.VerifyStock(ctx, cmd.Items)
	if err != nil {
		return CheckoutResult{}, err
	}

	auth, err := handler.Authorize(ctx, PaymentRequest{
		User:        cmd.User,
		OrderID:     orderNumber,
		Amount:      amount,
		Description: "Payment for order " + orderNumber,
		Card:        cmd.Card,
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_failed", map[string]any{
			"orderNumber": orderNumber,
			"method":      string(cmd.Method),
			"error":       err.Error(),
		})
		return CheckoutResult{}, err
	}

	// Funds are settled (or deferred) from here on. Remaining failures leave
	// the shopper charged without a complete order and must say so.
	if err := s.stocks.CommitStocks(ctx, checks); err != nil {
		return CheckoutResult{}, s.partialFailure(ctx, PhaseCommitting, orderNumber, err)
	}

	transactionID := strings.TrimSpace(auth.TransactionID)
	if transactionID == "" {
		transactionID = s.newTransactionID()
	}

	if auth.Status == PaymentStatusPaid {
		if err := s.recordTransaction(ctx, cmd, orderNumber, transactionID, amount); err != nil {
			return CheckoutResult{}, s.partialFailure(ctx, PhaseRecording, orderNumber, err)
		}
	}

	order := s.buildOrder(cmd, checks, orderNumber, transactionID, amount)
	if err := s.orders.CreateOrder(ctx, order); err != nil {
		return CheckoutResult{}, s.partialFailure(ctx, PhaseCreating, orderNumber, err)
	}

	s.publishOrderEvent(ctx, cmd, order, transactionID)

	s.logger(ctx, "checkout.completed", map[string]any{
		"orderNumber": orderNumber,
		"method":      string(cmd.Method),
		"amount":      amount,
	})
	return CheckoutResult{
		OrderNumber:   orderNumber,
		Totals:        totals.Rounded(),
		TransactionID: transactionID,
		PaymentStatus: auth.Status,
		AmountPaid:    auth.AmountPaid,
	}, nil
}

func (s *checkoutService) recordTransaction(ctx context.Context, cmd CheckoutCommand, orderNumber, transactionID string, amount float64) error {
	uid := strings.TrimSpace(cmd.User.UID)
	if uid == "" {
		account, err := s.accounts.UserByEmail(ctx, cmd.User.Email)
		if err != nil {
			return fmt.Errorf("resolve account for ledger entry: %w", err)
		}
		uid = account.UID
	}

	txn := Transaction{
		Type:        cmd.Method,
		Amount:      amount,
		Description: ledgerDescription(cmd.Method, cmd.Items),
		OrderID:     orderNumber,
	}
	if err := s.accounts.AddTransaction(ctx, uid, txn); err != nil {
		return fmt.Errorf("record transaction %s: %w", transactionID, err)
	}
	return nil
}

// ledgerDescription renders the statement line shown in the shopper's
// transaction history, listing the purchased item names.
func ledgerDescription(method PaymentMethod, items []CartLine) string {
	names := make([]string, 0, len(items))
	for _, line := range items {
		names = append(names, line.Name)
	}
	label := "Card"
	if method == domain.PaymentMethodBalance {
		label = "TamCredits"
	}
	return "Purchase with " + label + ": " + strings.Join(names, ", ")
}

func (s *checkoutService) buildOrder(cmd CheckoutCommand, checks []StockCheck, orderNumber, transactionID string, amount float64) Order {
	items := make([]domain.OrderItem, 0, len(checks))
	store := strings.TrimSpace(cmd.Store)
	for _, check := range checks {
		if store == "" {
			store = strings.TrimSpace(check.Line.Store)
		}
		items = append(items, domain.OrderItem{
			ProductID: check.Product.ID,
			Name:      check.Product.Name,
			Quantity:  check.Line.Quantity,
			Price:     check.Line.UnitPrice,
			Store:     check.Line.Store,
		})
	}

	return Order{
		OrderNumber: orderNumber,
		Customer: domain.OrderCustomer{
			Name:  cmd.User.DisplayName,
			Email: cmd.User.Email,
		},
		Items: items,
		PaymentDetails: domain.OrderPaymentDetails{
			Method:        cmd.Method,
			TransactionID: transactionID,
			Amount:        amount,
		},
		TotalAmount: amount,
		OrderStatus: domain.OrderStatusPending,
		Store:       store,
		CreatedAt:   s.now(),
	}
}

// publishOrderEvent is best effort: the order already exists, so a publish
// failure is logged and swallowed rather than failing the checkout.
func (s *checkoutService) publishOrderEvent(ctx context.Context, cmd CheckoutCommand, order Order, transactionID string) {
	if s.events == nil {
		return
	}

	_, err := s.events.PublishOrderEvent(ctx, OrderEventMessage{
		EventType:     orderCreatedEventType,
		OrderNumber:   order.OrderNumber,
		UID:           cmd.User.UID,
		Email:         cmd.User.Email,
		Store:         order.Store,
		PaymentMethod: string(cmd.Method),
		Amount:        order.TotalAmount,
		TransactionID: transactionID,
		CreatedAt:     order.CreatedAt,
	})
	if err != nil {
		s.logger(ctx, "checkout.event_publish_failed", map[string]any{
			"orderNumber": order.OrderNumber,
			"error":       err.Error(),
		})
	}
}

func (s *checkoutService) partialFailure(ctx context.Context, phase Phase, orderNumber string, err error) error {
	s.logger(ctx, "checkout.partial_failure", map[string]any{
		"orderNumber": orderNumber,
		"phase":       string(phase),
		"error":       err.Error(),
	})
	return &PartialCommitError{Phase: phase, OrderNumber: orderNumber, Err: err}
}

func validateCheckoutCommand(cmd CheckoutCommand) error {
	fields := make(map[string]string)

	if strings.TrimSpace(cmd.User.Email) == "" {
		fields["email"] = "shopper email is required"
	}
	if len(cmd.Items) == 0 {
		fields["items"] = "cart is empty"
	}
	for i, line := range cmd.Items {
		switch {
		case strings.TrimSpace(line.ProductRef) == "":
			fields[fmt.Sprintf("items[%d].productId", i)] = "product reference is required"
		case line.Quantity < 1:
			fields[fmt.Sprintf("items[%d].quantity", i)] = "quantity must be at least 1"
		case line.UnitPrice < 0:
			fields[fmt.Sprintf("items[%d].price", i)] = "price cannot be negative"
		case line.DiscountPercent < 0 || line.DiscountPercent > 100:
			fields[fmt.Sprintf("items[%d].discount", i)] = "discount must be between 0 and 100"
		}
	}
	if _, ok := domain.ParsePaymentMethod(string(cmd.Method)); !ok {
		fields["paymentMethod"] = "unknown payment method"
	}

	if len(fields) > 0 {
		return NewValidationError(fields)
	}
	return nil
}

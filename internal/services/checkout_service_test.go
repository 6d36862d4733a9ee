package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/alabites/api/internal/domain"
)

type stubStockService struct {
	verifyFunc  func(ctx context.Context, lines []CartLine) ([]StockCheck, error)
	commitFunc  func(ctx context.Context, checks []StockCheck) error
	verifyCalls int
	commitCalls int
}

func (s *stubStockService) VerifyStock(ctx context.Context, lines []CartLine) ([]StockCheck, error) {
	s.verifyCalls++
	if s.verifyFunc != nil {
		return s.verifyFunc(ctx, lines)
	}
	checks := make([]StockCheck, len(lines))
	for i, line := range lines {
		checks[i] = StockCheck{
			Line:     line,
			Product:  domain.Product{ID: "db-" + line.ProductRef, Name: line.Name, Stock: 10},
			NewStock: 10 - line.Quantity,
		}
	}
	return checks, nil
}

func (s *stubStockService) CommitStocks(ctx context.Context, checks []StockCheck) error {
	s.commitCalls++
	if s.commitFunc != nil {
		return s.commitFunc(ctx, checks)
	}
	return nil
}

type stubHandler struct {
	method        domain.PaymentMethod
	authorizeFunc func(ctx context.Context, req PaymentRequest) (PaymentAuthorization, error)
	calls         int
	lastReq       PaymentRequest
}

func (s *stubHandler) Method() domain.PaymentMethod { return s.method }

func (s *stubHandler) Authorize(ctx context.Context, req PaymentRequest) (PaymentAuthorization, error) {
	s.calls++
	s.lastReq = req
	if s.authorizeFunc != nil {
		return s.authorizeFunc(ctx, req)
	}
	return PaymentAuthorization{Status: PaymentStatusPaid, AmountPaid: req.Amount}, nil
}

type stubOrderWriter struct {
	createFunc func(ctx context.Context, order domain.Order) error
	calls      int
	lastOrder  domain.Order
}

func (s *stubOrderWriter) CreateOrder(ctx context.Context, order domain.Order) error {
	s.calls++
	s.lastOrder = order
	if s.createFunc != nil {
		return s.createFunc(ctx, order)
	}
	return nil
}

type stubPublisher struct {
	calls       int
	lastMessage OrderEventMessage
	err         error
}

func (s *stubPublisher) PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error) {
	s.calls++
	s.lastMessage = message
	if s.err != nil {
		return "", s.err
	}
	return "msg-1", nil
}

func testCheckoutCommand(method domain.PaymentMethod) CheckoutCommand {
	return CheckoutCommand{
		User: domain.UserIdentity{
			UID:         "uid-1",
			DisplayName: "Juan Dela Cruz",
			Email:       "shopper@example.com",
		},
		Items: []CartLine{
			{ProductRef: "ffc-001", Name: "Sisig Rice", UnitPrice: 85, Quantity: 2, Store: "store-1"},
			{ProductRef: "ffc-002", Name: "Lumpia", UnitPrice: 55.50, Quantity: 1, DiscountPercent: 10, Store: "store-1"},
		},
		Method: method,
		Store:  "store-1",
	}
}

func newTestCheckoutService(t *testing.T, deps CheckoutServiceDeps) CheckoutService {
	t.Helper()
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC) }
	}
	if deps.NewOrderID == nil {
		deps.NewOrderID = func() string { return "3000123456" }
	}
	if deps.NewTransactionID == nil {
		deps.NewTransactionID = func() string { return "txn-fixed" }
	}
	service, err := NewCheckoutService(deps)
	if err != nil {
		t.Fatalf("NewCheckoutService: %v", err)
	}
	return service
}

func TestCheckoutBalanceHappyPath(t *testing.T) {
	stocks := &stubStockService{}
	handler := &stubHandler{method: domain.PaymentMethodBalance}
	accounts := &stubAccounts{account: domain.UserAccount{UID: "uid-1", CurrencyBalance: 500}}
	orders := &stubOrderWriter{}
	events := &stubPublisher{}

	service := newTestCheckoutService(t, CheckoutServiceDeps{
		Stocks:   stocks,
		Handlers: []PaymentHandler{handler},
		Accounts: accounts,
		Orders:   orders,
		Events:   events,
	})

	result, err := service.Checkout(context.Background(), testCheckoutCommand(domain.PaymentMethodBalance))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}

	// 85*2 + 55.50 - 10% of 55.50 = 219.95
	if result.OrderNumber != "3000123456" {
		t.Fatalf("order number = %s", result.OrderNumber)
	}
	if result.Totals.TotalPrice != 219.95 {
		t.Fatalf("total = %v", result.Totals.TotalPrice)
	}
	if result.TransactionID != "txn-fixed" {
		t.Fatalf("transaction id = %s", result.TransactionID)
	}

	if stocks.verifyCalls != 1 || stocks.commitCalls != 1 {
		t.Fatalf("stock calls = %d/%d", stocks.verifyCalls, stocks.commitCalls)
	}
	if handler.calls != 1 {
		t.Fatalf("handler calls = %d", handler.calls)
	}
	if handler.lastReq.Description != "Payment for order 3000123456" {
		t.Fatalf("payment description = %q", handler.lastReq.Description)
	}
	if accounts.addTxnCalls != 1 {
		t.Fatalf("transaction calls = %d", accounts.addTxnCalls)
	}
	if accounts.lastTxnUID != "uid-1" || accounts.lastTxn.OrderID != "3000123456" {
		t.Fatalf("unexpected transaction: uid=%s txn=%+v", accounts.lastTxnUID, accounts.lastTxn)
	}
	if accounts.lastTxn.Amount != 219.95 {
		t.Fatalf("transaction amount = %v", accounts.lastTxn.Amount)
	}
	if accounts.lastTxn.Description != "Purchase with TamCredits: Sisig Rice, Lumpia" {
		t.Fatalf("transaction description = %q", accounts.lastTxn.Description)
	}

	if orders.calls != 1 {
		t.Fatalf("order calls = %d", orders.calls)
	}
	order := orders.lastOrder
	if order.OrderStatus != domain.OrderStatusPending {
		t.Fatalf("order status = %s", order.OrderStatus)
	}
	if order.Customer.Name != "Juan Dela Cruz" || order.Customer.Email != "shopper@example.com" {
		t.Fatalf("order customer = %+v", order.Customer)
	}
	if len(order.Items) != 2 || order.Items[0].ProductID != "db-ffc-001" {
		t.Fatalf("order items = %+v", order.Items)
	}
	if order.PaymentDetails.Method != domain.PaymentMethodBalance || order.PaymentDetails.Amount != 219.95 {
		t.Fatalf("payment details = %+v", order.PaymentDetails)
	}

	if events.calls != 1 {
		t.Fatalf("event calls = %d", events.calls)
	}
	if events.lastMessage.EventType != "order.created" || events.lastMessage.OrderNumber != "3000123456" {
		t.Fatalf("unexpected event: %+v", events.lastMessage)
	}
}

func TestCheckoutStockShortageAbortsBeforePayment(t *testing.T) {
	stocks := &stubStockService{verifyFunc: func(context.Context, []CartLine) ([]StockCheck, error) {
		return nil, &StockError{ProductName: "Sisig Rice", Requested: 2, Available: 1}
	}}
	handler := &stubHandler{method: domain.PaymentMethodBalance}
	accounts := &stubAccounts{}
	orders := &stubOrderWriter{}

	service := newTestCheckoutService(t, CheckoutServiceDeps{
		Stocks:   stocks,
		Handlers: []PaymentHandler{handler},
		Accounts: accounts,
		Orders:   orders,
	})

	_, err := service.Checkout(context.Background(), testCheckoutCommand(domain.PaymentMethodBalance))

	var stockErr *StockError
	if !errors.As(err, &stockErr) {
		t.Fatalf("expected StockError, got %v", err)
	}
	if handler.calls != 0 {
		t.Fatalf("payment must not run on shortage, calls = %d", handler.calls)
	}
	if stocks.commitCalls != 0 || accounts.addTxnCalls != 0 || orders.calls != 0 {
		t.Fatalf("side effects after shortage: commits=%d txns=%d orders=%d", stocks.commitCalls, accounts.addTxnCalls, orders.calls)
	}
}

func TestCheckoutDeclinedPaymentLeavesNoSideEffects(t *testing.T) {
	stocks := &stubStockService{}
	declined := errors.New("card declined")
	handler := &stubHandler{
		method: domain.PaymentMethodCard,
		authorizeFunc: func(context.Context, PaymentRequest) (PaymentAuthorization, error) {
			return PaymentAuthorization{}, declined
		},
	}
	accounts := &stubAccounts{}
	orders := &stubOrderWriter{}
	events := &stubPublisher{}

	service := newTestCheckoutService(t, CheckoutServiceDeps{
		Stocks:   stocks,
		Handlers: []PaymentHandler{handler},
		Accounts: accounts,
		Orders:   orders,
		Events:   events,
	})

	cmd := testCheckoutCommand(domain.PaymentMethodCard)
	cmd.Card = validTestCard()
	_, err := service.Checkout(context.Background(), cmd)

	if !errors.Is(err, declined) {
		t.Fatalf("expected declined error, got %v", err)
	}
	if stocks.commitCalls != 0 || accounts.addTxnCalls != 0 || orders.calls != 0 || events.calls != 0 {
		t.Fatalf("side effects after decline: commits=%d txns=%d orders=%d events=%d",
			stocks.commitCalls, accounts.addTxnCalls, orders.calls, events.calls)
	}
}

func TestCheckoutOrderWriteFailureIsPartialCommit(t *testing.T) {
	stocks := &stubStockService{}
	handler := &stubHandler{method: domain.PaymentMethodBalance}
	accounts := &stubAccounts{}
	orders := &stubOrderWriter{createFunc: func(context.Context, domain.Order) error {
		return errors.New("backend write failed")
	}}

	service := newTestCheckoutService(t, CheckoutServiceDeps{
		Stocks:   stocks,
		Handlers: []PaymentHandler{handler},
		Accounts: accounts,
		Orders:   orders,
	})

	_, err := service.Checkout(context.Background(), testCheckoutCommand(domain.PaymentMethodBalance))

	var partialErr *PartialCommitError
	if !errors.As(err, &partialErr) {
		t.Fatalf("expected PartialCommitError, got %v", err)
	}
	if partialErr.Phase != PhaseCreating || partialErr.OrderNumber != "3000123456" {
		t.Fatalf("unexpected partial commit error: %+v", partialErr)
	}
	// Payment and stock commit already happened by the time the write failed.
	if handler.calls != 1 || stocks.commitCalls != 1 || accounts.addTxnCalls != 1 {
		t.Fatalf("expected full prefix executed: handler=%d commits=%d txns=%d", handler.calls, stocks.commitCalls, accounts.addTxnCalls)
	}
}

func TestCheckoutCommitFailureIsPartialCommit(t *testing.T) {
	stocks := &stubStockService{commitFunc: func(context.Context, []StockCheck) error {
		return errors.New("stock write failed")
	}}
	handler := &stubHandler{method: domain.PaymentMethodBalance}
	accounts := &stubAccounts{}
	orders := &stubOrderWriter{}

	service := newTestCheckoutService(t, CheckoutServiceDeps{
		Stocks:   stocks,
		Handlers: []PaymentHandler{handler},
		Accounts: accounts,
		Orders:   orders,
	})

	_, err := service.Checkout(context.Background(), testCheckoutCommand(domain.PaymentMethodBalance))

	var partialErr *PartialCommitError
	if !errors.As(err, &partialErr) {
		t.Fatalf("expected PartialCommitError, got %v", err)
	}
	if partialErr.Phase != PhaseCommitting {
		t.Fatalf("phase = %s", partialErr.Phase)
	}
	if accounts.addTxnCalls != 0 || orders.calls != 0 {
		t.Fatalf("pipeline must stop at commit failure: txns=%d orders=%d", accounts.addTxnCalls, orders.calls)
	}
}

func TestCheckoutCounterSkipsLedgerEntry(t *testing.T) {
	stocks := &stubStockService{}
	handler := &stubHandler{
		method: domain.PaymentMethodCounter,
		authorizeFunc: func(context.Context, PaymentRequest) (PaymentAuthorization, error) {
			return PaymentAuthorization{Status: PaymentStatusDeferred}, nil
		},
	}
	accounts := &stubAccounts{}
	orders := &stubOrderWriter{}

	service := newTestCheckoutService(t, CheckoutServiceDeps{
		Stocks:   stocks,
		Handlers: []PaymentHandler{handler},
		Accounts: accounts,
		Orders:   orders,
	})

	result, err := service.Checkout(context.Background(), testCheckoutCommand(domain.PaymentMethodCounter))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if result.PaymentStatus != PaymentStatusDeferred {
		t.Fatalf("payment status = %s", result.PaymentStatus)
	}
	if accounts.addTxnCalls != 0 {
		t.Fatalf("no ledger entry expected for counter orders, got %d", accounts.addTxnCalls)
	}
	if orders.calls != 1 {
		t.Fatalf("order calls = %d", orders.calls)
	}
}

func TestCheckoutRejectsBadCardBeforeStockLookup(t *testing.T) {
	stocks := &stubStockService{}
	charger := &stubCharger{}
	handler, err := NewCardPaymentHandler(CardPaymentHandlerDeps{
		Payments: charger,
		Clock:    func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewCardPaymentHandler: %v", err)
	}

	service := newTestCheckoutService(t, CheckoutServiceDeps{
		Stocks:   stocks,
		Handlers: []PaymentHandler{handler},
		Accounts: &stubAccounts{},
		Orders:   &stubOrderWriter{},
	})

	// Card payment with no card details at all.
	cmd := testCheckoutCommand(domain.PaymentMethodCard)
	_, err = service.Checkout(context.Background(), cmd)

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if stocks.verifyCalls != 0 {
		t.Fatalf("stock lookups must not run for rejected card input, ran %d", stocks.verifyCalls)
	}
	if charger.calls != 0 {
		t.Fatalf("gateway calls = %d", charger.calls)
	}
}

func TestCheckoutUnknownMethodRejected(t *testing.T) {
	service := newTestCheckoutService(t, CheckoutServiceDeps{
		Stocks:   &stubStockService{},
		Handlers: []PaymentHandler{&stubHandler{method: domain.PaymentMethodBalance}},
		Accounts: &stubAccounts{},
		Orders:   &stubOrderWriter{},
	})

	cmd := testCheckoutCommand("bitcoin")
	_, err := service.Checkout(context.Background(), cmd)

	var validationErr *ValidationError
	if !errors.As(err, &validationErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, ok := validationErr.Fields()["paymentMethod"]; !ok {
		t.Fatalf("expected paymentMethod field, got %v", validationErr.Fields())
	}
}

func TestCheckoutMethodAliasResolvesHandler(t *testing.T) {
	handler := &stubHandler{method: domain.PaymentMethodBalance}
	service := newTestCheckoutService(t, CheckoutServiceDeps{
		Stocks:   &stubStockService{},
		Handlers: []PaymentHandler{handler},
		Accounts: &stubAccounts{},
		Orders:   &stubOrderWriter{},
	})

	cmd := testCheckoutCommand("tamcredits")
	if _, err := service.Checkout(context.Background(), cmd); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if handler.calls != 1 {
		t.Fatalf("handler calls = %d", handler.calls)
	}
}

func TestCheckoutPublishFailureDoesNotFailOrder(t *testing.T) {
	events := &stubPublisher{err: errors.New("pubsub unavailable")}
	service := newTestCheckoutService(t, CheckoutServiceDeps{
		Stocks:   &stubStockService{},
		Handlers: []PaymentHandler{&stubHandler{method: domain.PaymentMethodBalance}},
		Accounts: &stubAccounts{},
		Orders:   &stubOrderWriter{},
		Events:   events,
	})

	result, err := service.Checkout(context.Background(), testCheckoutCommand(domain.PaymentMethodBalance))
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if result.OrderNumber == "" || events.calls != 1 {
		t.Fatalf("expected order with attempted publish: %+v calls=%d", result, events.calls)
	}
}

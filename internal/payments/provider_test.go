package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/alabites/api/internal/domain"
)

type stubProvider struct {
	name          string
	methodCalls   int
	intentCalls   int
	attachCalls   int
	methodErr     error
	intentErr     error
	attachErr     error
	lastIntentReq IntentRequest
	lastAttachReq AttachRequest
	attachStatus  Status
}

func (s *stubProvider) CreatePaymentMethod(ctx context.Context, req PaymentMethodRequest) (string, error) {
	s.methodCalls++
	if s.methodErr != nil {
		return "", s.methodErr
	}
	return s.name + "_pm_1", nil
}

func (s *stubProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	s.intentCalls++
	s.lastIntentReq = req
	if s.intentErr != nil {
		return Intent{}, s.intentErr
	}
	return Intent{ID: s.name + "_pi_1", Amount: req.Amount, Currency: req.Currency, Status: StatusPending}, nil
}

func (s *stubProvider) AttachPaymentMethod(ctx context.Context, req AttachRequest) (PaymentDetails, error) {
	s.attachCalls++
	s.lastAttachReq = req
	if s.attachErr != nil {
		return PaymentDetails{}, s.attachErr
	}
	status := s.attachStatus
	if status == "" {
		status = StatusSucceeded
	}
	return PaymentDetails{
		IntentID:        req.IntentID,
		PaymentMethodID: req.PaymentMethodID,
		Status:          status,
	}, nil
}

func TestManagerChargeRunsFullSequence(t *testing.T) {
	provider := &stubProvider{name: "paymongo"}
	manager, err := NewManager(map[string]Provider{"paymongo": provider})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	details, err := manager.Charge(context.Background(), PaymentContext{}, ChargeRequest{
		Amount:      22550,
		Currency:    "PHP",
		Description: "Payment for order 3000123456",
		Card:        domain.CardDetails{CardNumber: "4343434343434345"},
	})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}

	if provider.methodCalls != 1 || provider.intentCalls != 1 || provider.attachCalls != 1 {
		t.Fatalf("call counts = %d/%d/%d", provider.methodCalls, provider.intentCalls, provider.attachCalls)
	}
	if provider.lastIntentReq.Amount != 22550 {
		t.Fatalf("intent amount = %d", provider.lastIntentReq.Amount)
	}
	if provider.lastAttachReq.IntentID != "paymongo_pi_1" || provider.lastAttachReq.PaymentMethodID != "paymongo_pm_1" {
		t.Fatalf("attach request = %+v", provider.lastAttachReq)
	}
	if details.Provider != "paymongo" || details.Status != StatusSucceeded {
		t.Fatalf("unexpected details: %+v", details)
	}
}

func TestManagerChargeStopsAfterMethodFailure(t *testing.T) {
	provider := &stubProvider{name: "paymongo", methodErr: errors.New("tokenization rejected")}
	manager, err := NewManager(map[string]Provider{"paymongo": provider})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	_, err = manager.Charge(context.Background(), PaymentContext{}, ChargeRequest{Amount: 100, Currency: "PHP"})
	if err == nil {
		t.Fatal("expected error")
	}
	if provider.intentCalls != 0 || provider.attachCalls != 0 {
		t.Fatalf("no intent or attach expected after tokenization failure, got %d/%d", provider.intentCalls, provider.attachCalls)
	}
}

func TestManagerChargeStopsAfterIntentFailure(t *testing.T) {
	provider := &stubProvider{name: "paymongo", intentErr: errors.New("boom")}
	manager, err := NewManager(map[string]Provider{"paymongo": provider})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	_, err = manager.Charge(context.Background(), PaymentContext{}, ChargeRequest{Amount: 100, Currency: "PHP"})
	if err == nil {
		t.Fatal("expected error")
	}
	if provider.attachCalls != 0 {
		t.Fatalf("attach should not run after intent failure, ran %d times", provider.attachCalls)
	}
}

func TestManagerResolvesPreferredProvider(t *testing.T) {
	paymongo := &stubProvider{name: "paymongo"}
	stripe := &stubProvider{name: "stripe"}
	manager, err := NewManager(map[string]Provider{"paymongo": paymongo, "stripe": stripe})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	details, err := manager.Charge(context.Background(), PaymentContext{PreferredProvider: "Stripe"}, ChargeRequest{Amount: 100, Currency: "USD"})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if details.Provider != "stripe" || stripe.attachCalls != 1 || paymongo.methodCalls != 0 {
		t.Fatalf("preferred provider not honoured: %+v", details)
	}
}

func TestManagerCurrencyRoutes(t *testing.T) {
	paymongo := &stubProvider{name: "paymongo"}
	stripe := &stubProvider{name: "stripe"}
	manager, err := NewManager(
		map[string]Provider{"paymongo": paymongo, "stripe": stripe},
		WithCurrencyRoutes(map[string]string{"usd": "stripe"}),
	)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	details, err := manager.Charge(context.Background(), PaymentContext{Currency: "USD"}, ChargeRequest{Amount: 100, Currency: "USD"})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if details.Provider != "stripe" {
		t.Fatalf("route ignored, provider = %s", details.Provider)
	}

	details, err = manager.Charge(context.Background(), PaymentContext{Currency: "PHP"}, ChargeRequest{Amount: 100, Currency: "PHP"})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if details.Provider != "paymongo" {
		t.Fatalf("default provider ignored, provider = %s", details.Provider)
	}
}

func TestManagerUnknownProvider(t *testing.T) {
	stripe := &stubProvider{name: "stripe"}
	other := &stubProvider{name: "other"}
	manager, err := NewManager(map[string]Provider{"stripe": stripe, "other": other})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	// Two providers, no paymongo default, no route, no preference.
	_, err = manager.Charge(context.Background(), PaymentContext{}, ChargeRequest{Amount: 100, Currency: "PHP"})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestManagerSingleProviderFallback(t *testing.T) {
	stripe := &stubProvider{name: "stripe"}
	manager, err := NewManager(map[string]Provider{"stripe": stripe})
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	details, err := manager.Charge(context.Background(), PaymentContext{}, ChargeRequest{Amount: 100, Currency: "PHP"})
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if details.Provider != "stripe" {
		t.Fatalf("provider = %s", details.Provider)
	}
}

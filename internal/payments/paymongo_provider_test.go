package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alabites/api/internal/domain"
)

func newPayMongoTestProvider(t *testing.T, handler http.Handler) *PayMongoProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := NewPayMongoProvider(PayMongoProviderConfig{
		SecretKey:  "sk_test_abc",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewPayMongoProvider: %v", err)
	}
	return provider
}

func TestPayMongoCreatePaymentMethod(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	provider := newPayMongoTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment_methods" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{"id": "pm_123", "attributes": map[string]any{}},
		})
	}))

	id, err := provider.CreatePaymentMethod(context.Background(), PaymentMethodRequest{
		Card: domain.CardDetails{
			CardholderName: "Juan Dela Cruz",
			CardNumber:     "4343 4343 4343 4345",
			ExpMonth:       12,
			ExpYear:        2027,
			CVC:            "123",
		},
		BillingName:  "Juan Dela Cruz",
		BillingEmail: "juan@example.com",
	})
	if err != nil {
		t.Fatalf("CreatePaymentMethod: %v", err)
	}
	if id != "pm_123" {
		t.Fatalf("payment method id = %q", id)
	}
	// Secret key is sent as basic auth with an empty password.
	if gotAuth != "Basic c2tfdGVzdF9hYmM6" {
		t.Fatalf("unexpected auth header: %q", gotAuth)
	}

	attrs := gotBody["data"].(map[string]any)["attributes"].(map[string]any)
	details := attrs["details"].(map[string]any)
	if details["card_number"] != "4343434343434345" {
		t.Fatalf("card number not normalised: %v", details["card_number"])
	}
}

func TestPayMongoCreateIntentSendsMinorUnits(t *testing.T) {
	var gotBody map[string]any
	provider := newPayMongoTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment_intents" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id": "pi_456",
				"attributes": map[string]any{
					"status":     "awaiting_payment_method",
					"amount":     22550,
					"currency":   "PHP",
					"client_key": "pi_456_client",
				},
			},
		})
	}))

	intent, err := provider.CreateIntent(context.Background(), IntentRequest{
		Amount:      22550,
		Currency:    "PHP",
		Description: "Payment for order 3000123456",
	})
	if err != nil {
		t.Fatalf("CreateIntent: %v", err)
	}
	if intent.ID != "pi_456" || intent.Amount != 22550 || intent.ClientKey != "pi_456_client" {
		t.Fatalf("unexpected intent: %+v", intent)
	}

	attrs := gotBody["data"].(map[string]any)["attributes"].(map[string]any)
	if attrs["amount"].(float64) != 22550 {
		t.Fatalf("amount payload = %v", attrs["amount"])
	}
	if attrs["currency"] != "PHP" {
		t.Fatalf("currency payload = %v", attrs["currency"])
	}
}

func TestPayMongoAttachSucceeded(t *testing.T) {
	provider := newPayMongoTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/payment_intents/pi_456/attach" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id": "pi_456",
				"attributes": map[string]any{
					"status":   "succeeded",
					"amount":   22550,
					"currency": "PHP",
				},
			},
		})
	}))

	details, err := provider.AttachPaymentMethod(context.Background(), AttachRequest{
		IntentID:        "pi_456",
		PaymentMethodID: "pm_123",
	})
	if err != nil {
		t.Fatalf("AttachPaymentMethod: %v", err)
	}
	if details.Status != StatusSucceeded {
		t.Fatalf("status = %s", details.Status)
	}
	if details.IntentID != "pi_456" || details.PaymentMethodID != "pm_123" {
		t.Fatalf("unexpected details: %+v", details)
	}
}

func TestPayMongoAttachDeclined(t *testing.T) {
	provider := newPayMongoTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id": "pi_456",
				"attributes": map[string]any{
					"status": "awaiting_payment_method",
					"last_payment_error": map[string]any{
						"failed_message": "The card was declined by the issuer.",
					},
				},
			},
		})
	}))

	_, err := provider.AttachPaymentMethod(context.Background(), AttachRequest{
		IntentID:        "pi_456",
		PaymentMethodID: "pm_123",
	})

	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gatewayErr.Code != "payment_failed" {
		t.Fatalf("code = %q", gatewayErr.Code)
	}
	if gatewayErr.Message != "The card was declined by the issuer." {
		t.Fatalf("message = %q", gatewayErr.Message)
	}
}

func TestPayMongoErrorEnvelope(t *testing.T) {
	provider := newPayMongoTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"errors": []map[string]any{
				{"code": "parameter_invalid", "detail": "details.card_number format is invalid."},
			},
		})
	}))

	_, err := provider.CreatePaymentMethod(context.Background(), PaymentMethodRequest{
		Card: domain.CardDetails{CardNumber: "4111"},
	})

	var gatewayErr *GatewayError
	if !errors.As(err, &gatewayErr) {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if gatewayErr.Code != "parameter_invalid" || gatewayErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected gateway error: %+v", gatewayErr)
	}
	if gatewayErr.Temporary() {
		t.Fatalf("4xx should not be temporary")
	}
}

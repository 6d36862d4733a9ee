package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultPayMongoBaseURL = "https://api.paymongo.com/v1"
	defaultPayMongoTimeout = 20 * time.Second
	maxGatewayResponse     = 1 << 20
)

// PayMongoLogger defines the logging contract for PayMongo provider operations.
type PayMongoLogger func(ctx context.Context, event string, fields map[string]any)

// PayMongoProviderConfig configures the PayMongoProvider.
type PayMongoProviderConfig struct {
	SecretKey  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     PayMongoLogger
}

// PayMongoProvider implements the Provider interface against the PayMongo REST API.
type PayMongoProvider struct {
	baseURL    string
	authHeader string
	httpClient *http.Client
	logger     PayMongoLogger
}

// NewPayMongoProvider constructs a PayMongo Provider using the given configuration.
func NewPayMongoProvider(cfg PayMongoProviderConfig) (*PayMongoProvider, error) {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" {
		return nil, errors.New("paymongo: secret key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultPayMongoBaseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:   defaultPayMongoTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	// PayMongo authenticates with HTTP basic auth using the secret key as username.
	auth := base64.StdEncoding.EncodeToString([]byte(secretKey + ":"))

	return &PayMongoProvider{
		baseURL:    baseURL,
		authHeader: "Basic " + auth,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type paymongoResource struct {
	Data struct {
		ID         string `json:"id"`
		Attributes struct {
			Status           string         `json:"status"`
			Amount           int64          `json:"amount"`
			Currency         string         `json:"currency"`
			ClientKey        string         `json:"client_key"`
			LastPaymentError map[string]any `json:"last_payment_error"`
			NextAction       struct {
				Redirect struct {
					URL string `json:"url"`
				} `json:"redirect"`
			} `json:"next_action"`
		} `json:"attributes"`
	} `json:"data"`
}

type paymongoErrorBody struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// CreatePaymentMethod tokenizes the raw card details with PayMongo.
func (p *PayMongoProvider) CreatePaymentMethod(ctx context.Context, req PaymentMethodRequest) (string, error) {
	if p == nil {
		return "", errors.New("paymongo: provider is nil")
	}

	payload := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"type": "card",
				"details": map[string]any{
					"card_number": strings.ReplaceAll(req.Card.CardNumber, " ", ""),
					"exp_month":   req.Card.ExpMonth,
					"exp_year":    req.Card.ExpYear,
					"cvc":         req.Card.CVC,
				},
				"billing": map[string]any{
					"name":  req.BillingName,
					"email": req.BillingEmail,
				},
			},
		},
	}

	var resource paymongoResource
	if err := p.post(ctx, "/payment_methods", payload, &resource); err != nil {
		return "", err
	}

	p.logger(ctx, "payments.paymongo.method.created", map[string]any{
		"paymentMethodId": resource.Data.ID,
	})
	return resource.Data.ID, nil
}

// CreateIntent opens a payment intent for the given amount in minor units.
func (p *PayMongoProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("paymongo: provider is nil")
	}

	attributes := map[string]any{
		"amount":                 req.Amount,
		"payment_method_allowed": []string{"card"},
		"payment_method_options": map[string]any{
			"card": map[string]any{"request_three_d_secure": "any"},
		},
		"currency": strings.ToUpper(req.Currency),
	}
	if req.Description != "" {
		attributes["description"] = req.Description
	}
	if len(req.Metadata) > 0 {
		attributes["metadata"] = req.Metadata
	}

	payload := map[string]any{
		"data": map[string]any{"attributes": attributes},
	}

	var resource paymongoResource
	if err := p.post(ctx, "/payment_intents", payload, &resource); err != nil {
		return Intent{}, err
	}

	p.logger(ctx, "payments.paymongo.intent.created", map[string]any{
		"paymentIntent": resource.Data.ID,
		"amount":        resource.Data.Attributes.Amount,
	})

	return Intent{
		ID:        resource.Data.ID,
		ClientKey: resource.Data.Attributes.ClientKey,
		Status:    paymongoStatus(resource.Data.Attributes.Status),
		Amount:    resource.Data.Attributes.Amount,
		Currency:  strings.ToUpper(resource.Data.Attributes.Currency),
	}, nil
}

// AttachPaymentMethod binds the tokenized method to the intent, triggering capture.
func (p *PayMongoProvider) AttachPaymentMethod(ctx context.Context, req AttachRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("paymongo: provider is nil")
	}
	if strings.TrimSpace(req.IntentID) == "" || strings.TrimSpace(req.PaymentMethodID) == "" {
		return PaymentDetails{}, errors.New("paymongo: intent id and payment method id are required")
	}

	payload := map[string]any{
		"data": map[string]any{
			"attributes": map[string]any{
				"payment_method": req.PaymentMethodID,
			},
		},
	}

	var resource paymongoResource
	if err := p.post(ctx, "/payment_intents/"+req.IntentID+"/attach", payload, &resource); err != nil {
		return PaymentDetails{}, err
	}

	status := paymongoStatus(resource.Data.Attributes.Status)
	p.logger(ctx, "payments.paymongo.intent.attached", map[string]any{
		"paymentIntent": resource.Data.ID,
		"status":        string(status),
	})

	details := PaymentDetails{
		Provider:        "paymongo",
		IntentID:        resource.Data.ID,
		PaymentMethodID: req.PaymentMethodID,
		Status:          status,
		Amount:          resource.Data.Attributes.Amount,
		Currency:        strings.ToUpper(resource.Data.Attributes.Currency),
		NextActionURL:   resource.Data.Attributes.NextAction.Redirect.URL,
	}

	if status == StatusFailed {
		message := "payment was declined"
		if detail, ok := resource.Data.Attributes.LastPaymentError["failed_message"].(string); ok && detail != "" {
			message = detail
		}
		return details, &GatewayError{
			Provider:   "paymongo",
			StatusCode: http.StatusPaymentRequired,
			Code:       "payment_failed",
			Message:    message,
		}
	}

	return details, nil
}

func (p *PayMongoProvider) post(ctx context.Context, path string, payload, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("paymongo: encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("paymongo: build %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", p.authHeader)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paymongo: %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxGatewayResponse))
	if err != nil {
		return fmt.Errorf("paymongo: read %s response: %w", path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return paymongoError(resp.StatusCode, body)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("paymongo: decode %s response: %w", path, err)
	}
	return nil
}

func paymongoError(statusCode int, body []byte) error {
	gatewayErr := &GatewayError{
		Provider:   "paymongo",
		StatusCode: statusCode,
		Message:    "gateway request failed",
	}

	var parsed paymongoErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && len(parsed.Errors) > 0 {
		gatewayErr.Code = parsed.Errors[0].Code
		gatewayErr.Message = parsed.Errors[0].Detail
	}
	return gatewayErr
}

func paymongoStatus(status string) Status {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "succeeded":
		return StatusSucceeded
	case "awaiting_next_action":
		return StatusAwaitingAction
	case "awaiting_payment_method":
		return StatusFailed
	case "processing", "awaiting_capture", "":
		return StatusPending
	default:
		return StatusPending
	}
}

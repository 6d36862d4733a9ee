package payments

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe provider operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentMethodAPI interface {
	New(params *stripe.PaymentMethodParams) (*stripe.PaymentMethod, error)
}

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Confirm(id string, params *stripe.PaymentIntentConfirmParams) (*stripe.PaymentIntent, error)
}

type stripeClients struct {
	paymentMethods stripePaymentMethodAPI
	intents        stripePaymentIntentAPI
}

// StripeProviderConfig configures the StripeProvider.
type StripeProviderConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   StripeLogger
	Clients  *stripeClients
}

// StripeProvider implements the Provider interface using Stripe APIs.
type StripeProvider struct {
	api    stripeClients
	logger StripeLogger
}

// NewStripeProvider constructs a Stripe Provider using the given configuration.
func NewStripeProvider(cfg StripeProviderConfig) (*StripeProvider, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			paymentMethods: sc.PaymentMethods,
			intents:        sc.PaymentIntents,
		}
	}

	if clients.paymentMethods == nil || clients.intents == nil {
		return nil, errors.New("stripe: incomplete client configuration")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &StripeProvider{
		api:    clients,
		logger: logger,
	}, nil
}

// CreatePaymentMethod tokenizes the raw card details with Stripe.
func (p *StripeProvider) CreatePaymentMethod(ctx context.Context, req PaymentMethodRequest) (string, error) {
	if p == nil {
		return "", errors.New("stripe: provider is nil")
	}

	params := &stripe.PaymentMethodParams{
		Type: stripe.String(string(stripe.PaymentMethodTypeCard)),
		Card: &stripe.PaymentMethodCardParams{
			Number:   stripe.String(strings.ReplaceAll(req.Card.CardNumber, " ", "")),
			ExpMonth: stripe.Int64(int64(req.Card.ExpMonth)),
			ExpYear:  stripe.Int64(int64(req.Card.ExpYear)),
			CVC:      stripe.String(req.Card.CVC),
		},
	}
	params.Context = ctx
	if req.BillingName != "" || req.BillingEmail != "" {
		params.BillingDetails = &stripe.PaymentMethodBillingDetailsParams{}
		if req.BillingName != "" {
			params.BillingDetails.Name = stripe.String(req.BillingName)
		}
		if req.BillingEmail != "" {
			params.BillingDetails.Email = stripe.String(req.BillingEmail)
		}
	}

	method, err := p.api.paymentMethods.New(params)
	if err != nil {
		return "", stripeGatewayError("create payment method", err)
	}

	p.logger(ctx, "payments.stripe.method.created", map[string]any{
		"paymentMethodId": method.ID,
	})
	return method.ID, nil
}

// CreateIntent opens a Stripe Payment Intent for the given amount in minor units.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if p == nil {
		return Intent{}, errors.New("stripe: provider is nil")
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(strings.ToLower(req.Currency)),
		PaymentMethodTypes: stripe.StringSlice([]string{
			string(stripe.PaymentMethodTypeCard),
		}),
	}
	params.Context = ctx
	if req.Description != "" {
		params.Description = stripe.String(req.Description)
	}
	if len(req.Metadata) > 0 {
		params.Metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			params.Metadata[k] = v
		}
	}

	intent, err := p.api.intents.New(params)
	if err != nil {
		return Intent{}, stripeGatewayError("create payment intent", err)
	}

	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
	})

	return Intent{
		ID:        intent.ID,
		ClientKey: intent.ClientSecret,
		Status:    stripeStatus(intent.Status),
		Amount:    intent.Amount,
		Currency:  strings.ToUpper(string(intent.Currency)),
	}, nil
}

// AttachPaymentMethod confirms the intent with the tokenized payment method.
func (p *StripeProvider) AttachPaymentMethod(ctx context.Context, req AttachRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("stripe: provider is nil")
	}
	if strings.TrimSpace(req.IntentID) == "" || strings.TrimSpace(req.PaymentMethodID) == "" {
		return PaymentDetails{}, errors.New("stripe: intent id and payment method id are required")
	}

	params := &stripe.PaymentIntentConfirmParams{
		PaymentMethod: stripe.String(req.PaymentMethodID),
	}
	params.Context = ctx

	intent, err := p.api.intents.Confirm(req.IntentID, params)
	if err != nil {
		return PaymentDetails{}, stripeGatewayError("confirm payment intent", err)
	}

	status := stripeStatus(intent.Status)
	p.logger(ctx, "payments.stripe.intent.confirmed", map[string]any{
		"paymentIntent": intent.ID,
		"status":        string(status),
	})

	details := PaymentDetails{
		Provider:        "stripe",
		IntentID:        intent.ID,
		PaymentMethodID: req.PaymentMethodID,
		Status:          status,
		Amount:          intent.Amount,
		Currency:        strings.ToUpper(string(intent.Currency)),
	}

	if status == StatusFailed {
		return details, &GatewayError{
			Provider:   "stripe",
			StatusCode: 402,
			Code:       "payment_failed",
			Message:    "payment was declined",
		}
	}
	return details, nil
}

func stripeStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusCanceled, stripe.PaymentIntentStatusRequiresPaymentMethod:
		return StatusFailed
	case stripe.PaymentIntentStatusRequiresAction:
		return StatusAwaitingAction
	default:
		return StatusPending
	}
}

func stripeGatewayError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		statusCode := stripeErr.HTTPStatusCode
		if statusCode == 0 {
			statusCode = 502
		}
		message := stripeErr.Msg
		if message == "" {
			message = op + " failed with status " + strconv.Itoa(statusCode)
		}
		return &GatewayError{
			Provider:   "stripe",
			StatusCode: statusCode,
			Code:       string(stripeErr.Code),
			Message:    message,
		}
	}
	return fmt.Errorf("stripe: %s: %w", op, err)
}

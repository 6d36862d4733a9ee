package services

import (
	"context"
	"time"

	domain "github.com/alabites/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	CartLine      = domain.CartLine
	CartTotals    = domain.CartTotals
	CardDetails   = domain.CardDetails
	PaymentMethod = domain.PaymentMethod
	Product       = domain.Product
	UserIdentity  = domain.UserIdentity
	UserAccount   = domain.UserAccount
	Transaction   = domain.Transaction
	Order         = domain.Order
)

// CheckoutService runs the full order submission pipeline for one cart.
type CheckoutService interface {
	Checkout(ctx context.Context, cmd CheckoutCommand) (CheckoutResult, error)
}

// StockService verifies and commits product stock levels against the backend catalog.
type StockService interface {
	VerifyStock(ctx context.Context, lines []CartLine) ([]StockCheck, error)
	CommitStocks(ctx context.Context, checks []StockCheck) error
}

// PaymentHandler settles one payment method. Authorize must either collect the
// funds (or arrange collection) or return an error; it never mutates stock.
type PaymentHandler interface {
	Method() PaymentMethod
	Authorize(ctx context.Context, req PaymentRequest) (PaymentAuthorization, error)
}

// PaymentValidator is an optional PaymentHandler extension for rejecting
// malformed payment input locally, before the pipeline contacts the backend.
type PaymentValidator interface {
	ValidatePayment(card CardDetails) error
}

// OrderEventPublisher accepts order lifecycle notifications for downstream processing.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}

// Backend client surfaces, narrowed per concern for easier testing.

type ProductReader interface {
	ProductByRef(ctx context.Context, ref string) (Product, error)
}

type StockWriter interface {
	UpdateStock(ctx context.Context, productID string, stock int) error
}

type UserAccounts interface {
	UserByEmail(ctx context.Context, email string) (UserAccount, error)
	SpendCurrency(ctx context.Context, uid string, amount float64) error
	AddTransaction(ctx context.Context, uid string, txn Transaction) error
}

type OrderWriter interface {
	CreateOrder(ctx context.Context, order Order) error
}

// Command and DTO definitions ------------------------------------------------

// CheckoutCommand carries one checkout attempt. The identity is passed
// explicitly; the pipeline never reads ambient session state.
type CheckoutCommand struct {
	User   UserIdentity
	Items  []CartLine
	Method PaymentMethod
	Card   CardDetails
	Store  string
}

// CheckoutResult reports the submitted order back to the caller.
type CheckoutResult struct {
	OrderNumber   string
	Totals        CartTotals
	TransactionID string
	PaymentStatus string
	AmountPaid    float64
}

// PaymentRequest is the input to a payment handler for one order.
type PaymentRequest struct {
	User        UserIdentity
	OrderID     string
	Amount      float64
	Description string
	Card        CardDetails
}

// PaymentAuthorization reports a settled (or arranged) payment.
type PaymentAuthorization struct {
	TransactionID string
	Status        string
	AmountPaid    float64
}

// StockCheck pairs a cart line with the backend product it was verified against.
// NewStock is the absolute level the commit phase writes back.
type StockCheck struct {
	Line     CartLine
	Product  Product
	NewStock int
}

// OrderEventMessage is the payload published after an order is accepted.
type OrderEventMessage struct {
	EventID       string    `json:"eventId,omitempty"`
	EventType     string    `json:"eventType"`
	OrderNumber   string    `json:"orderNumber"`
	UID           string    `json:"uid,omitempty"`
	Email         string    `json:"email,omitempty"`
	Store         string    `json:"store,omitempty"`
	PaymentMethod string    `json:"paymentMethod"`
	Amount        float64   `json:"amount"`
	TransactionID string    `json:"transactionId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

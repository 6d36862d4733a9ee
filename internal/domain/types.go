package domain

import "time"

// PaymentMethod enumerates the checkout payment methods supported by the storefront.
type PaymentMethod string

const (
	// PaymentMethodBalance settles the order by debiting the shopper's stored TamCredits balance.
	PaymentMethodBalance PaymentMethod = "balance-debit"
	// PaymentMethodCard settles the order through the external card gateway.
	PaymentMethodCard PaymentMethod = "card"
	// PaymentMethodCounter defers settlement to a physical handoff at the store counter.
	PaymentMethodCounter PaymentMethod = "pay-at-counter"
)

// ParsePaymentMethod maps a wire value to a known PaymentMethod.
// Method tags used by earlier storefront builds are accepted as aliases.
func ParsePaymentMethod(value string) (PaymentMethod, bool) {
	switch PaymentMethod(value) {
	case PaymentMethodBalance, PaymentMethodCard, PaymentMethodCounter:
		return PaymentMethod(value), true
	}
	switch value {
	case "tamcredits":
		return PaymentMethodBalance, true
	case "payatcounter":
		return PaymentMethodCounter, true
	}
	return "", false
}

// CartLine is a single cart entry as submitted by the shopper's session.
// Quantity must be >= 1 and UnitPrice >= 0; DiscountPercent is 0-100.
type CartLine struct {
	ProductRef      string  `json:"productId"`
	Name            string  `json:"name"`
	UnitPrice       float64 `json:"price"`
	Quantity        int     `json:"quantity"`
	DiscountPercent float64 `json:"discount"`
	Store           string  `json:"store"`
}

// LineTotal returns the undiscounted extended price for the line.
func (l CartLine) LineTotal() float64 {
	return l.UnitPrice * float64(l.Quantity)
}

// LineDiscount returns the discount amount for the line.
func (l CartLine) LineDiscount() float64 {
	return l.LineTotal() * l.DiscountPercent / 100
}

// CartTotals carries the derived money amounts for a cart snapshot.
// Amounts are kept unrounded; rounding happens only when rendering.
type CartTotals struct {
	Subtotal      float64
	TotalDiscount float64
	TotalPrice    float64
}

// CardDetails holds the raw card input forwarded to the gateway during tokenization.
type CardDetails struct {
	CardholderName string `json:"cardholderName"`
	CardNumber     string `json:"cardNumber"`
	ExpMonth       int    `json:"expMonth"`
	ExpYear        int    `json:"expYear"`
	CVC            string `json:"cvc"`
}

// UserIdentity is the resolved principal for one checkout attempt.
// It is passed explicitly per invocation; the core never reads ambient session state.
type UserIdentity struct {
	UID         string
	DisplayName string
	Email       string
}

// UserAccount mirrors the backend user record consumed during balance payments.
type UserAccount struct {
	UID             string  `json:"uid"`
	FirstName       string  `json:"firstName"`
	LastName        string  `json:"lastName"`
	Email           string  `json:"email"`
	CurrencyBalance float64 `json:"currencyBalance"`
}

// Product mirrors the authoritative product record owned by the backend.
type Product struct {
	ID    string  `json:"_id"`
	PID   string  `json:"pid"`
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int     `json:"stock"`
	Store string  `json:"store"`
}

// Transaction is one append-only ledger entry recorded against a user account.
type Transaction struct {
	Type        PaymentMethod `json:"type"`
	Amount      float64       `json:"amount"`
	Description string        `json:"description"`
	OrderID     string        `json:"orderId"`
}

// OrderCustomer identifies the purchaser on an order record.
type OrderCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// OrderItem is one purchased line on an order record.
type OrderItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Quantity  int     `json:"quantity"`
	Price     float64 `json:"price"`
	Store     string  `json:"store"`
}

// OrderPaymentDetails records how an order was (or will be) settled.
type OrderPaymentDetails struct {
	Method        PaymentMethod `json:"method"`
	TransactionID string        `json:"transactionId"`
	Amount        float64       `json:"amount"`
}

// Order status values advanced by the fulfillment tooling after submission.
const (
	OrderStatusPending   = "Pending"
	OrderStatusFulfilled = "Fulfilled"
	OrderStatusCancelled = "Cancelled"
)

// Order is the persisted record of a completed checkout submission.
type Order struct {
	OrderNumber    string              `json:"orderNumber"`
	Customer       OrderCustomer       `json:"customer"`
	Items          []OrderItem         `json:"items"`
	PaymentDetails OrderPaymentDetails `json:"paymentDetails"`
	TotalAmount    float64             `json:"totalAmount"`
	OrderStatus    string              `json:"orderStatus"`
	Store          string              `json:"store"`
	CreatedAt      time.Time           `json:"createdAt,omitempty"`
}

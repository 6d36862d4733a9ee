package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrInsufficientBalance indicates the shopper's stored balance cannot cover the total.
	ErrInsufficientBalance = errors.New("services: insufficient balance")
	// ErrUnsupportedPaymentMethod indicates no handler is registered for the requested method.
	ErrUnsupportedPaymentMethod = errors.New("services: unsupported payment method")
)

// ValidationError reports rejected checkout input keyed by field name.
type ValidationError struct {
	fields map[string]string
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(fields map[string]string) *ValidationError {
	copied := make(map[string]string, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return &ValidationError{fields: copied}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e == nil || len(e.fields) == 0 {
		return "services: invalid input"
	}
	names := make([]string, 0, len(e.fields))
	for name := range e.fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "services: invalid input: " + strings.Join(names, ", ")
}

// Fields returns a copy of the rejected fields and their messages.
func (e *ValidationError) Fields() map[string]string {
	if e == nil {
		return nil
	}
	copied := make(map[string]string, len(e.fields))
	for k, v := range e.fields {
		copied[k] = v
	}
	return copied
}

// StockError reports a cart line that exceeds the available stock.
type StockError struct {
	ProductName string
	Requested   int
	Available   int
}

// Error implements the error interface.
func (e *StockError) Error() string {
	return fmt.Sprintf("services: insufficient stock for %s: requested %d, available %d", e.ProductName, e.Requested, e.Available)
}

// Phase names the checkout pipeline step in progress when a failure occurred.
type Phase string

const (
	PhaseValidating  Phase = "validating"
	PhaseVerifying   Phase = "verifying-stock"
	PhaseAuthorizing Phase = "authorizing-payment"
	PhaseCommitting  Phase = "committing-stock"
	PhaseRecording   Phase = "recording-transaction"
	PhaseCreating    Phase = "creating-order"
)

// PartialCommitError reports a failure after the payment already settled.
// The order did not reach the backend intact and needs manual reconciliation.
type PartialCommitError struct {
	Phase       Phase
	OrderNumber string
	Err         error
}

// Error implements the error interface.
func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("services: checkout failed after payment during %s for order %s: %v", e.Phase, e.OrderNumber, e.Err)
}

// Unwrap exposes the underlying failure.
func (e *PartialCommitError) Unwrap() error {
	return e.Err
}

package reconcile

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Kind classifies a reconciliation failure so transports can map it
// without parsing messages.
type Kind string

const (
	KindInvalidAmount     Kind = "invalid_amount"
	KindExceedsBalance    Kind = "exceeds_balance"
	KindAmountMismatch    Kind = "amount_mismatch"
	KindReceiptNotFound   Kind = "receipt_not_found"
	KindNotAllItemsReady  Kind = "not_all_items_ready"
	KindPaymentRequired   Kind = "payment_required"
	KindInvalidTransition Kind = "invalid_transition"
)

// Error is a validation failure returned synchronously to the caller.
// Required carries the amount the operator has to pay, when relevant.
type Error struct {
	Kind     Kind
	Message  string
	Required *decimal.Decimal
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func newAmountError(kind Kind, message string, required decimal.Decimal) *Error {
	return &Error{Kind: kind, Message: message, Required: &required}
}

// KindOf returns the Kind carried by err, or "" when err is not a
// reconciliation error.
func KindOf(err error) Kind {
	var rerr *Error
	if errors.As(err, &rerr) {
		return rerr.Kind
	}
	return ""
}

// ReceiptNotFound builds the error returned when no line item carries the
// requested receipt number.
func ReceiptNotFound(receiptNumber string) *Error {
	return newError(KindReceiptNotFound, "receipt "+receiptNumber+" not found")
}

// NonNumericAmount is the error for an amount that could not be read as a
// number.
func NonNumericAmount() *Error {
	return newError(KindInvalidAmount, "Payment amount must be a number")
}

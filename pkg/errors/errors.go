package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for the client core. Components match on these
// with errors.Is; the concrete message travels in the wrapping ClientError.
var (
	// Auth lifecycle. All four resolve locally to an absent session.
	ErrAuthCancelled     = errors.New("authorization cancelled")
	ErrAuthProviderError = errors.New("authorization provider error")
	ErrAuthStateMismatch = errors.New("authorization state mismatch")
	ErrTokenDecode       = errors.New("token decode failed")

	// Token storage.
	ErrTokenAbsent        = errors.New("no token stored")
	ErrStorageUnavailable = errors.New("token storage unavailable")

	// Credentials rejected by the backend; consumed by the session owner.
	ErrSessionInvalidated = errors.New("session invalidated")

	// Purchase flow terminals, non-retryable per attempt.
	ErrTicketUnavailable = errors.New("ticket unavailable")
	ErrPaymentDeclined   = errors.New("payment declined")
	ErrSheetCancelled    = errors.New("payment sheet cancelled")

	// Payment captured but the backend never recorded the sale. Must be
	// surfaced distinctly and escalated to a human; never retried.
	ErrConfirmationFailedAfterPayment = errors.New("payment succeeded but confirmation failed")

	// Favorites optimistic update rolled back.
	ErrReconcileFailed = errors.New("favorite reconciliation failed")

	// Operation called in a state that does not permit it.
	ErrInvalidState = errors.New("invalid state for operation")
)

// Kind classifies a failed outbound request.
type Kind string

const (
	KindNetwork   Kind = "network"
	KindServer    Kind = "server"
	KindMalformed Kind = "malformed"
)

// ClientError is a structured error carrying a machine-readable code, the
// request-failure kind where applicable, and the HTTP status for errors that
// originated in a backend response.
type ClientError struct {
	Code    string
	Message string
	Kind    Kind
	Status  int
	Err     error
}

func (e *ClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ClientError) Unwrap() error {
	return e.Err
}

// RequestFailed creates an error for an outbound request that failed at the
// HTTP level. The kind distinguishes network faults, server-side errors, and
// malformed response bodies.
func RequestFailed(kind Kind, detail string, err error) *ClientError {
	return &ClientError{
		Code:    "REQUEST_FAILED",
		Message: detail,
		Kind:    kind,
		Err:     err,
	}
}

// TicketUnavailable creates an error for a purchase intent rejected because
// the ticket is no longer for sale.
func TicketUnavailable(ticketID string) *ClientError {
	return &ClientError{
		Code:    "TICKET_UNAVAILABLE",
		Message: fmt.Sprintf("ticket %s is no longer available", ticketID),
		Err:     ErrTicketUnavailable,
	}
}

// PaymentDeclined creates an error carrying the provider's decline message.
func PaymentDeclined(providerMessage string) *ClientError {
	return &ClientError{
		Code:    "PAYMENT_DECLINED",
		Message: providerMessage,
		Err:     ErrPaymentDeclined,
	}
}

// SheetCancelled creates an error for a payment sheet dismissed by the user.
func SheetCancelled() *ClientError {
	return &ClientError{
		Code:    "PAYMENT_SHEET_CANCELLED",
		Message: "payment sheet was dismissed before completion",
		Err:     ErrSheetCancelled,
	}
}

// ConfirmationFailedAfterPayment creates the escalation error for a captured
// payment whose backend confirmation failed. The transaction id is embedded
// so support can reconcile the ledger.
func ConfirmationFailedAfterPayment(transactionID string, err error) *ClientError {
	return &ClientError{
		Code:    "CONFIRMATION_FAILED_AFTER_PAYMENT",
		Message: fmt.Sprintf("payment for transaction %s was captured but not confirmed; contact support", transactionID),
		Err:     fmt.Errorf("%w: %w", ErrConfirmationFailedAfterPayment, err),
	}
}

// ReconcileFailed creates an error for a rolled-back favorite toggle.
func ReconcileFailed(eventID string, err error) *ClientError {
	return &ClientError{
		Code:    "RECONCILE_FAILED",
		Message: fmt.Sprintf("favorite state for event %s reverted after server rejection", eventID),
		Err:     fmt.Errorf("%w: %w", ErrReconcileFailed, err),
	}
}

// InvalidState creates an error for an operation invoked outside the state
// that permits it.
func InvalidState(op, state string) *ClientError {
	return &ClientError{
		Code:    "INVALID_STATE",
		Message: fmt.Sprintf("%s is not allowed in state %s", op, state),
		Err:     ErrInvalidState,
	}
}

// AuthProvider creates an error carrying the identity provider's message.
func AuthProvider(providerMessage string) *ClientError {
	return &ClientError{
		Code:    "AUTH_PROVIDER_ERROR",
		Message: providerMessage,
		Err:     ErrAuthProviderError,
	}
}

// StorageUnavailable wraps an underlying storage fault. Callers treat it as
// token-absent; it exists as a distinct type so the fault is still loggable.
func StorageUnavailable(err error) *ClientError {
	return &ClientError{
		Code:    "STORAGE_UNAVAILABLE",
		Message: "secure token storage could not be accessed",
		Err:     fmt.Errorf("%w: %w", ErrStorageUnavailable, err),
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// IsEscalation reports whether err is the one condition in the purchase flow
// that demands human escalation rather than a retry or a fresh attempt.
func IsEscalation(err error) bool {
	return errors.Is(err, ErrConfirmationFailedAfterPayment)
}

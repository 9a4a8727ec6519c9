package purchase

import (
	"context"
	"errors"
)

// SheetOutcome is how a presented payment sheet ended.
type SheetOutcome int

const (
	// SheetCompleted means the provider captured the payment.
	SheetCompleted SheetOutcome = iota
	// SheetDismissed means the user closed the sheet without paying.
	SheetDismissed
)

// SheetProvider is the payment-sheet integration point. Implementations
// wrap a payment SDK; tests substitute a mock.
//
// Init prepares a sheet for one payment intent. Present blocks until the
// sheet is resolved: a dismissal is an outcome, not an error, while a
// declined or failed payment is returned as an error.
type SheetProvider interface {
	Init(ctx context.Context, clientSecret, merchantName string) error
	Present(ctx context.Context) (SheetOutcome, error)
}

// ErrNoSheetProvider is returned by UnsupportedSheet.
var ErrNoSheetProvider = errors.New("no payment sheet provider configured")

// UnsupportedSheet is the provider wired when the agent runs without an
// embedded payment UI. Purchases fail at sheet initialization; browsing,
// messaging, and favorites are unaffected.
type UnsupportedSheet struct{}

func (UnsupportedSheet) Init(ctx context.Context, clientSecret, merchantName string) error {
	return ErrNoSheetProvider
}

func (UnsupportedSheet) Present(ctx context.Context) (SheetOutcome, error) {
	return SheetDismissed, ErrNoSheetProvider
}

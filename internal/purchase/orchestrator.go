// Package purchase drives the buy-ticket flow: create a payment intent,
// present the payment sheet, confirm the sale. The flow is a forward-only
// state machine; a failed attempt is abandoned and retried as a new one.
package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Mattheo4427/eventy-core/internal/api"
	"github.com/Mattheo4427/eventy-core/internal/domain"
	apperrors "github.com/Mattheo4427/eventy-core/pkg/errors"
	"github.com/Mattheo4427/eventy-core/pkg/validator"
)

var outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "eventy_purchase_outcomes_total",
	Help: "Terminal purchase attempt outcomes.",
}, []string{"outcome"})

// defaultPaymentMethod is the only method the sheet flow supports today;
// the backend still requires it on every intent.
const defaultPaymentMethod = "card"

type createTransactionRequest struct {
	TicketID      string `json:"ticket_id" validate:"required"`
	Amount        int64  `json:"amount" validate:"gt=0"`
	PaymentMethod string `json:"payment_method" validate:"required"`
}

type createTransactionResponse struct {
	TransactionID string `json:"transaction_id"`
	ClientSecret  string `json:"client_secret"`
}

// Orchestrator owns one purchase attempt at a time and enforces the legal
// transitions between its stages. All methods are safe for concurrent use;
// an operation invoked in a state that does not permit it fails immediately
// with an invalid-state error, it is never queued or silently ignored.
type Orchestrator struct {
	api          *api.Client
	sheet        SheetProvider
	merchantName string
	logger       *slog.Logger

	mu          sync.Mutex
	busy        bool
	attempt     domain.PurchaseAttempt
	onConfirmed []func(domain.PurchaseAttempt)
}

// New creates an Orchestrator in the idle state.
func New(apiClient *api.Client, sheet SheetProvider, merchantName string, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		api:          apiClient,
		sheet:        sheet,
		merchantName: merchantName,
		logger:       logger,
		attempt:      domain.PurchaseAttempt{State: domain.PurchaseIdle},
	}
}

// OnConfirmed registers a callback fired after an attempt reaches the
// confirmed state. Ticket-list refreshes hang off this.
func (o *Orchestrator) OnConfirmed(fn func(domain.PurchaseAttempt)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onConfirmed = append(o.onConfirmed, fn)
}

// Attempt returns a copy of the current attempt.
func (o *Orchestrator) Attempt() domain.PurchaseAttempt {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempt
}

// State returns the current stage of the attempt.
func (o *Orchestrator) State() domain.PurchaseState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.attempt.State
}

// Begin creates a payment intent for a ticket at the listed price in minor
// currency units. It is legal from idle and from any terminal state, where
// it implicitly starts a fresh attempt. A ticket that was sold or delisted
// in the meantime surfaces as a ticket-unavailable error and leaves the
// machine idle.
func (o *Orchestrator) Begin(ctx context.Context, ticketID string, amount int64) error {
	req := createTransactionRequest{
		TicketID:      ticketID,
		Amount:        amount,
		PaymentMethod: defaultPaymentMethod,
	}
	if err := validator.Validate(req); err != nil {
		return err
	}

	if err := o.acquire("begin", domain.PurchaseIdle); err != nil {
		return err
	}
	defer o.release()

	var resp createTransactionResponse
	if err := o.api.DoJSON(ctx, http.MethodPost, "/transactions", req, &resp); err != nil {
		o.setState(domain.PurchaseIdle)
		switch api.StatusOf(err) {
		case http.StatusNotFound, http.StatusConflict, http.StatusGone:
			outcomesTotal.WithLabelValues("ticket_unavailable").Inc()
			return apperrors.TicketUnavailable(ticketID)
		}
		return fmt.Errorf("create payment intent: %w", err)
	}

	o.mu.Lock()
	o.attempt = domain.PurchaseAttempt{
		TicketID:      ticketID,
		Amount:        amount,
		TransactionID: resp.TransactionID,
		ClientSecret:  resp.ClientSecret,
		State:         domain.PurchaseIntentCreated,
	}
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "payment intent created",
		slog.String("ticket_id", ticketID),
		slog.String("transaction_id", resp.TransactionID))
	return nil
}

// PresentSheet shows the payment sheet for the current intent and, when the
// user completes it, confirms the sale with the backend. Dismissal and a
// declined payment both park the attempt in sheet-cancelled (no money moved,
// nothing to confirm) but carry distinct errors; confirm-failed is reserved
// for a failed sheet initialization and for a confirmation error after a
// captured payment, the latter with the escalation error that names the
// transaction.
func (o *Orchestrator) PresentSheet(ctx context.Context) error {
	if err := o.acquire("present sheet", domain.PurchaseIntentCreated); err != nil {
		return err
	}
	defer o.release()

	attempt := o.Attempt()
	if err := o.sheet.Init(ctx, attempt.ClientSecret, o.merchantName); err != nil {
		o.setState(domain.PurchaseConfirmFailed)
		outcomesTotal.WithLabelValues("sheet_init_failed").Inc()
		return fmt.Errorf("initialize payment sheet: %w", err)
	}
	o.setState(domain.PurchaseSheetPresented)

	outcome, err := o.sheet.Present(ctx)
	if err != nil {
		o.setState(domain.PurchaseSheetCancelled)
		outcomesTotal.WithLabelValues("payment_declined").Inc()
		o.logger.WarnContext(ctx, "payment declined",
			slog.String("transaction_id", attempt.TransactionID),
			slog.String("error", err.Error()))
		return apperrors.PaymentDeclined(err.Error())
	}
	if outcome == SheetDismissed {
		o.setState(domain.PurchaseSheetCancelled)
		outcomesTotal.WithLabelValues("sheet_cancelled").Inc()
		o.logger.InfoContext(ctx, "payment sheet dismissed",
			slog.String("transaction_id", attempt.TransactionID))
		return apperrors.SheetCancelled()
	}

	return o.confirm(ctx, attempt)
}

// confirm records the captured payment with the backend. The payment has
// already moved money, so a failure here is the escalation case: terminal,
// never retried in place, and reported with the transaction id.
func (o *Orchestrator) confirm(ctx context.Context, attempt domain.PurchaseAttempt) error {
	o.setState(domain.PurchaseConfirming)

	path := fmt.Sprintf("/transactions/%s/confirm", attempt.TransactionID)
	if err := o.api.DoJSON(ctx, http.MethodPost, path, nil, nil); err != nil {
		o.setState(domain.PurchaseConfirmFailed)
		outcomesTotal.WithLabelValues("confirm_failed_after_payment").Inc()
		o.logger.ErrorContext(ctx, "confirmation failed after captured payment",
			slog.String("transaction_id", attempt.TransactionID),
			slog.String("error", err.Error()))
		return apperrors.ConfirmationFailedAfterPayment(attempt.TransactionID, err)
	}

	o.setState(domain.PurchaseConfirmed)
	outcomesTotal.WithLabelValues("confirmed").Inc()
	o.logger.InfoContext(ctx, "purchase confirmed",
		slog.String("ticket_id", attempt.TicketID),
		slog.String("transaction_id", attempt.TransactionID))

	o.mu.Lock()
	confirmed := o.attempt
	callbacks := make([]func(domain.PurchaseAttempt), len(o.onConfirmed))
	copy(callbacks, o.onConfirmed)
	o.mu.Unlock()
	for _, fn := range callbacks {
		fn(confirmed)
	}
	return nil
}

// Reset discards a finished attempt and returns the machine to idle. It is
// legal from idle, where it is a no-op, and from any terminal state. A
// reset mid-flight is refused: an in-progress attempt must reach a terminal
// first.
func (o *Orchestrator) Reset() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return apperrors.InvalidState("reset", string(o.attempt.State))
	}
	if o.attempt.State != domain.PurchaseIdle && !o.attempt.State.IsTerminal() {
		return apperrors.InvalidState("reset", string(o.attempt.State))
	}
	o.attempt = domain.PurchaseAttempt{State: domain.PurchaseIdle}
	return nil
}

// acquire claims the machine for one operation. The operation is legal when
// the machine is exactly in want, or, for begin, in a terminal state that a
// fresh attempt may replace.
func (o *Orchestrator) acquire(op string, want domain.PurchaseState) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return apperrors.InvalidState(op, string(o.attempt.State))
	}
	state := o.attempt.State
	if state != want && !(want == domain.PurchaseIdle && state.IsTerminal()) {
		return apperrors.InvalidState(op, string(state))
	}
	if want == domain.PurchaseIdle && state.IsTerminal() {
		o.attempt = domain.PurchaseAttempt{State: domain.PurchaseIdle}
	}
	o.busy = true
	return nil
}

func (o *Orchestrator) release() {
	o.mu.Lock()
	o.busy = false
	o.mu.Unlock()
}

// setState moves the attempt forward along a legal edge. An illegal edge is
// a programming error in this package, so it panics rather than limping on
// with a corrupted machine.
func (o *Orchestrator) setState(next domain.PurchaseState) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.attempt.State == next {
		return
	}
	if !o.attempt.State.CanTransitionTo(next) && next != domain.PurchaseIdle {
		panic(fmt.Sprintf("purchase: illegal transition %s -> %s", o.attempt.State, next))
	}
	o.attempt.State = next
}

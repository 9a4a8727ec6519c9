package domain

// PurchaseState identifies a stage of the buy-ticket state machine.
// Transitions only move forward; the machine is a DAG with terminal sinks.
type PurchaseState string

const (
	PurchaseIdle           PurchaseState = "idle"
	PurchaseIntentCreated  PurchaseState = "intent_created"
	PurchaseSheetPresented PurchaseState = "sheet_presented"
	PurchaseConfirming     PurchaseState = "confirming"
	PurchaseConfirmed      PurchaseState = "confirmed"
	PurchaseSheetCancelled PurchaseState = "sheet_cancelled"
	PurchaseConfirmFailed  PurchaseState = "confirm_failed"
)

// purchaseTransitions enumerates every legal forward edge.
var purchaseTransitions = map[PurchaseState][]PurchaseState{
	PurchaseIdle:           {PurchaseIntentCreated},
	PurchaseIntentCreated:  {PurchaseSheetPresented, PurchaseConfirmFailed},
	PurchaseSheetPresented: {PurchaseConfirming, PurchaseSheetCancelled},
	PurchaseConfirming:     {PurchaseConfirmed, PurchaseConfirmFailed},
}

// CanTransitionTo reports whether moving from s to next is a legal edge.
func (s PurchaseState) CanTransitionTo(next PurchaseState) bool {
	for _, allowed := range purchaseTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s is a sink: no further transitions are
// possible and only a reset to a fresh attempt leaves it.
func (s PurchaseState) IsTerminal() bool {
	switch s {
	case PurchaseConfirmed, PurchaseSheetCancelled, PurchaseConfirmFailed:
		return true
	}
	return false
}

// PurchaseAttempt is one run of the buy-ticket state machine from intent to
// terminal outcome. A failed attempt is never retried in place; a retry is a
// new attempt.
type PurchaseAttempt struct {
	TicketID      string        `json:"ticket_id"`
	Amount        int64         `json:"amount"` // minor currency units
	TransactionID string        `json:"transaction_id,omitempty"`
	ClientSecret  string        `json:"-"`
	State         PurchaseState `json:"state"`
}

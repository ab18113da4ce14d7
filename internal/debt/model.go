package debt

import "time"

// Status of a debt
type Status string

const (
	StatusPending Status = "pending"
	StatusSettled Status = "settled"
)

// Debt is a directed obligation: DebtorID owes CreditorID AmountCents within a group.
// ExpenseID is the expense whose split produced (or last replaced) the debt.
type Debt struct {
	ID          int64     `json:"id"`
	GroupID     int64     `json:"group_id"`
	DebtorID    int64     `json:"debtor_id"`
	CreditorID  int64     `json:"creditor_id"`
	AmountCents int64     `json:"amount_cents"`
	ExpenseID   *int64    `json:"expense_id,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Obligation is a request to record that DebtorID owes CreditorID some cents
type Obligation struct {
	GroupID     int64
	DebtorID    int64
	CreditorID  int64
	AmountCents int64
	ExpenseID   *int64
}

// Outcome describes what recording an obligation did to the ledger
type Outcome string

const (
	OutcomeSkipped   Outcome = "skipped"
	OutcomeCreated   Outcome = "created"
	OutcomeReduced   Outcome = "reduced"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeReplaced  Outcome = "replaced"
)

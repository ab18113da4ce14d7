package expense

import (
	"time"

	"github.com/fkhayef/splitledger/internal/debt"
	"github.com/fkhayef/splitledger/internal/expense/split"
)

// Expense is one shared cost paid by a group member. Only the amount and
// description change after creation.
type Expense struct {
	ID          int64     `json:"id"`
	GroupID     int64     `json:"group_id"`
	PayerID     int64     `json:"payer_id"`
	Description string    `json:"description"`
	AmountCents int64     `json:"amount_cents"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Populated via JOIN
	PayerUsername string `json:"payer_username,omitempty"`
}

// ExpenseWithShares combines an expense with what each member owes the payer
// for it and the ledger rows currently attributed to it. After netting against
// other expenses the two can differ.
type ExpenseWithShares struct {
	Expense *Expense
	Shares  []split.Share
	Debts   []*debt.Debt
}

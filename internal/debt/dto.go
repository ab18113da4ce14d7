package debt

import (
	"time"

	"github.com/fkhayef/splitledger/internal/money"
)

// Response represents a debt in API responses
type Response struct {
	ID          int64  `json:"id"`
	GroupID     int64  `json:"group_id"`
	DebtorID    int64  `json:"debtor_id"`
	CreditorID  int64  `json:"creditor_id"`
	Amount      string `json:"amount"`
	AmountCents int64  `json:"amount_cents"`
	ExpenseID   *int64 `json:"expense_id,omitempty"`
	Status      Status `json:"status"`
	UpdatedAt   string `json:"updated_at"`
}

// ToResponse converts a Debt to its API representation
func (d *Debt) ToResponse() *Response {
	return &Response{
		ID:          d.ID,
		GroupID:     d.GroupID,
		DebtorID:    d.DebtorID,
		CreditorID:  d.CreditorID,
		Amount:      money.Format(d.AmountCents),
		AmountCents: d.AmountCents,
		ExpenseID:   d.ExpenseID,
		Status:      d.Status,
		UpdatedAt:   d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// ToResponses converts a list of debts
func ToResponses(debts []*Debt) []*Response {
	out := make([]*Response, len(debts))
	for i, d := range debts {
		out[i] = d.ToResponse()
	}
	return out
}
